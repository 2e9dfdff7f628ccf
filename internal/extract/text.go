package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// decodeText recovers a string from bytes of unknown encoding:
// UTF-8, then UTF-16 (BOM or zero-byte heuristic), then latin-1.
// latin-1 maps every byte, so the chain cannot fail.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM

	if utf8.Valid(data) && !looksUTF16(data) {
		return normalizeNewlines(string(data))
	}

	if looksUTF16(data) {
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if isBigEndianBOM(data) {
			decoder = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		}
		if decoded, err := decoder.Bytes(data); err == nil && utf8.Valid(decoded) {
			return normalizeNewlines(string(decoded))
		}
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		// Unreachable for latin-1, but never return raw invalid bytes.
		return normalizeNewlines(string(data))
	}
	return normalizeNewlines(string(decoded))
}

func isBigEndianBOM(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF
}

func looksUTF16(data []byte) bool {
	if len(data) >= 2 && (data[0] == 0xFF && data[1] == 0xFE || isBigEndianBOM(data)) {
		return true
	}
	if len(data) < 8 {
		return false
	}
	// ASCII-heavy UTF-16 text interleaves NUL bytes.
	zeros := 0
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	for _, b := range sample {
		if b == 0 {
			zeros++
		}
	}
	return zeros > len(sample)/4
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
