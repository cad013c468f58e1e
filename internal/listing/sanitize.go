// SPDX-License-Identifier: MIT

package listing

import (
	"strings"

	"golang.org/x/net/html"
)

// elements whose text content never belongs in a job description
var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"head":     true,
	"svg":      true,
}

// elements that separate text blocks when flattened
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "section": true, "article": true, "table": true,
}

// SanitizeDescription flattens portal HTML into plain text. Script and
// style content is dropped, entities are decoded, and whitespace is
// collapsed. Block elements become line breaks so paragraph structure
// survives for the LLM prompts.
func SanitizeDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// The parser is tolerant, errors only surface on reader failure.
		return collapseWhitespace(raw)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if droppedElements[n.Data] {
				return
			}
			if blockElements[n.Data] {
				b.WriteByte('\n')
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return collapseWhitespace(b.String())
}

// collapseWhitespace trims every line to single-spaced words and removes
// empty lines.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
