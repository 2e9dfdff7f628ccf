// Package thread encodes and decodes the short token that routes mail and
// Teams replies back to the originating task. The token appears in subject
// lines and message bodies as [IG-TASK:#XXXXXX].
package thread

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinLength is the default token length; on collision the codec
	// extends to 7, then 8 characters.
	MinLength = 6
	MaxLength = 8

	// alphabet is base32 without padding: uppercase letters and digits 2-7,
	// a subset of the [A-Z0-9] wire charset.
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

var tokenPattern = regexp.MustCompile(`(?i)IG-TASK:#([A-Z0-9]{6,8})`)

// ShortIDFor derives a deterministic token of the given length from a task
// id. The same task id always yields the same token, so re-encoding after a
// crash is idempotent. Uniqueness across the active task set is enforced by
// the store on insert; callers extend length on conflict.
func ShortIDFor(taskID string, length int) string {
	if length < MinLength {
		length = MinLength
	}
	if length > MaxLength {
		length = MaxLength
	}
	sum := sha256.Sum256([]byte(taskID))
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = alphabet[int(sum[i])%len(alphabet)]
	}
	return string(out)
}

// Token renders a short id in its bracketed wire form.
func Token(shortID string) string {
	return fmt.Sprintf("[IG-TASK:#%s]", strings.ToUpper(shortID))
}

// FormatSubject appends the task token to a subject line unless the subject
// already carries one.
func FormatSubject(subject, shortID string) string {
	if tokenPattern.MatchString(subject) {
		return subject
	}
	subject = strings.TrimRight(subject, " ")
	if subject == "" {
		return Token(shortID)
	}
	return subject + " " + Token(shortID)
}

// ExtractShortID returns the first task token found in a subject or body,
// normalized to upper case. The second result reports whether one was found.
func ExtractShortID(text string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}
