// SPDX-License-Identifier: MIT
package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDescriptionStripsMarkup(t *testing.T) {
	raw := `<p>We build <b>Go</b> services.</p>` +
		`<script>track();</script>` +
		`<style>.hidden{display:none}</style>` +
		`<p>Benefits &amp; perks:</p>` +
		`<ul><li>Remote</li><li>Coffee</li></ul>`

	got := sanitizeDescription(raw)
	assert.Equal(t, "We build Go services.\nBenefits & perks:\nRemote\nCoffee", got)
}

func TestSanitizeDescriptionPlainText(t *testing.T) {
	got := sanitizeDescription("  Hello\n\n   world  ")
	assert.Equal(t, "Hello\nworld", got)
}

func TestSanitizeDescriptionLineBreaks(t *testing.T) {
	got := sanitizeDescription("line one<br>line two")
	assert.Equal(t, "line one\nline two", got)
}

func TestSanitizeDescriptionEmpty(t *testing.T) {
	assert.Empty(t, sanitizeDescription(""))
	assert.Empty(t, sanitizeDescription("<p>   </p>"))
}

func TestCollapseWhitespace(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"a  b", "a b"},
		{"a \n b", "a\nb"},
		{"  lead", "lead"},
		{"trail  ", "trail"},
		{"a\t b\n\nc", "a b\nc"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, collapseWhitespace(tc.in), "input %q", tc.in)
	}
}
