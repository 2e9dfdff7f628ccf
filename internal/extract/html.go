package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	igerrors "ideagraph/internal/errors"
)

// extractHTML strips script, style, and comment nodes structurally and
// returns the visible text with collapsed whitespace.
func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decodeBytes(data)))
	if err != nil {
		return "", igerrors.Permanent(fmt.Errorf("parse HTML: %w", err))
	}

	doc.Find("script, style, noscript, iframe").Remove()

	// Force a break after block elements so their text does not run
	// together when flattened.
	doc.Find("p, div, br, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre").
		AppendHtml("\n")

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return collapseWhitespace(root.Text()), nil
}

func decodeBytes(data []byte) []byte {
	return []byte(decodeText(data))
}

// collapseWhitespace trims each line, squeezes runs of spaces, and caps
// blank runs at one empty line.
func collapseWhitespace(s string) string {
	var out []string
	blank := 0
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
