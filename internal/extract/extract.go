// Package extract turns uploaded documents into indexable plain text:
// plain/markdown/HTML bodies, PDF and DOCX files, with an encoding fallback
// chain and paragraph-preserving chunking for large bodies.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
)

const (
	// MaxBodySize is the hard input cap. Larger uploads are rejected
	// before any parsing allocates.
	MaxBodySize = 25 << 20

	// ChunkSize is the maximum characters per indexed chunk.
	ChunkSize = 50000
)

// Extractor converts document bytes into plain text.
type Extractor struct {
	logger logging.Logger
}

// New creates an extractor.
func New(logger logging.Logger) *Extractor {
	return &Extractor{logger: logging.OrNop(logger)}
}

// Extract converts data into plain text, dispatching on content type and
// file extension. Unknown types fall back to text decoding.
func (e *Extractor) Extract(filename, contentType string, data []byte) (string, error) {
	if len(data) > MaxBodySize {
		return "", igerrors.Permanent(fmt.Errorf("file %s exceeds %d MB limit", filename, MaxBodySize>>20))
	}

	switch kind(filename, contentType) {
	case kindHTML:
		return extractHTML(data)
	case kindPDF:
		text, err := e.extractPDF(data)
		if err != nil {
			return "", igerrors.Permanent(fmt.Errorf("parse PDF %s: %w", filename, err))
		}
		return text, nil
	case kindDOCX:
		text, err := extractDOCX(data)
		if err != nil {
			return "", igerrors.Permanent(fmt.Errorf("parse DOCX %s: %w", filename, err))
		}
		return text, nil
	default:
		return decodeText(data), nil
	}
}

type docKind int

const (
	kindText docKind = iota
	kindHTML
	kindPDF
	kindDOCX
)

func kind(filename, contentType string) docKind {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "text/html", "application/xhtml+xml":
		return kindHTML
	case "application/pdf":
		return kindPDF
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return kindDOCX
	case "text/plain", "text/markdown":
		return kindText
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return kindHTML
	case ".pdf":
		return kindPDF
	case ".docx":
		return kindDOCX
	}
	return kindText
}

// SplitChunks cuts text into pieces of at most ChunkSize characters,
// greedily filling along paragraph boundaries. Paragraphs longer than the
// limit are hard-split on rune boundaries.
func SplitChunks(text string) []string {
	return splitChunks(text, ChunkSize)
}

func splitChunks(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		runes := []rune(para)

		// Oversized paragraph: flush and hard-split.
		if len(runes) > limit {
			flush()
			for len(runes) > limit {
				chunks = append(chunks, string(runes[:limit]))
				runes = runes[limit:]
			}
			if len(runes) > 0 {
				current.WriteString(string(runes))
				currentLen = len(runes)
			}
			continue
		}

		sep := 0
		if currentLen > 0 {
			sep = 2
		}
		if currentLen+sep+len(runes) > limit {
			flush()
			sep = 0
		}
		if sep > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentLen += sep + len(runes)
	}
	flush()
	return chunks
}
