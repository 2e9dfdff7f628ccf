package mover

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxFolderNameLen = 128

// FolderName derives a document-library folder name from an entity title:
// NFKD-normalize, keep only [A-Za-z0-9 ._-], collapse whitespace, truncate.
func FolderName(title string) string {
	decomposed := norm.NFKD.String(title)

	var b strings.Builder
	for _, r := range decomposed {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	name := strings.Join(strings.Fields(b.String()), " ")
	if len(name) > maxFolderNameLen {
		name = strings.TrimSpace(name[:maxFolderNameLen])
	}
	if name == "" {
		name = "untitled"
	}
	return name
}

// WithSuffix appends a short discriminator for name collisions. The combined
// name stays within the length cap.
func WithSuffix(name, shortID string) string {
	suffix := "-" + strings.ToLower(shortID)
	if len(name)+len(suffix) > maxFolderNameLen {
		name = strings.TrimSpace(name[:maxFolderNameLen-len(suffix)])
	}
	return name + suffix
}
