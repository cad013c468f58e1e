// SPDX-License-Identifier: MIT

package apply

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Tags whose content never belongs in a job description.
var droppedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"object":   true,
	"embed":    true,
	"svg":      true,
}

// Tags that end a line of text when rendered.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "header": true, "footer": true,
}

// sanitizeDescription strips a job description down to plain text.
// Portals deliver descriptions as HTML fragments; the model prompts
// and the keyword matcher both want the rendered text. Entities are
// decoded by the parser, block boundaries become newlines, and
// whitespace runs collapse.
func sanitizeDescription(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return collapseWhitespace(raw)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if droppedTags[n.Data] {
				return
			}
			if n.Data == "br" {
				b.WriteByte('\n')
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return collapseWhitespace(b.String())
}

// collapseWhitespace squeezes whitespace runs to a single space, or to
// a single newline when the run crossed a line break.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	newline := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pending = true
			if r == '\n' {
				newline = true
			}
			continue
		}
		if pending && b.Len() > 0 {
			if newline {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		pending = false
		newline = false
		b.WriteRune(r)
	}
	return b.String()
}
