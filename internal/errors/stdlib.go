package errors

import "errors"

// Re-exports so callers do not need both this package and stdlib errors.

func As(err error, target any) bool { return errors.As(err, target) }

func Is(err, target error) bool { return errors.Is(err, target) }

func New(text string) error { return errors.New(text) }
