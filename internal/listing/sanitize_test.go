// SPDX-License-Identifier: MIT

package listing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDescription(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text unchanged",
			in:   "We are hiring a backend engineer.",
			want: "We are hiring a backend engineer.",
		},
		{
			name: "empty input",
			in:   "   ",
			want: "",
		},
		{
			name: "drops script content",
			in:   `<p>Great role</p><script>window.track("evil")</script>`,
			want: "Great role",
		},
		{
			name: "drops style content",
			in:   `<style>.x{color:red}</style><div>Requirements</div>`,
			want: "Requirements",
		},
		{
			name: "decodes entities",
			in:   "<p>C&amp;I team &gt; 5 years</p>",
			want: "C&I team > 5 years",
		},
		{
			name: "collapses whitespace",
			in:   "<p>Go,    Python\t and   SQL</p>",
			want: "Go, Python and SQL",
		},
		{
			name: "keeps block separation",
			in:   "<h2>About</h2><p>First.</p><p>Second.</p>",
			want: "About\nFirst.\nSecond.",
		},
		{
			name: "list items on own lines",
			in:   "<ul><li>Go</li><li>Kubernetes</li></ul>",
			want: "Go\nKubernetes",
		},
		{
			name: "br splits lines",
			in:   "line one<br>line two",
			want: "line one\nline two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeDescription(tt.in))
		})
	}
}

func TestSanitizeDescription_NestedMarkup(t *testing.T) {
	in := `<div class="description">
		<h3>What you'll do</h3>
		<ul>
			<li>Design <strong>reliable</strong> services</li>
			<li>Review code</li>
		</ul>
		<script type="text/javascript">var x = 1;</script>
	</div>`

	got := SanitizeDescription(in)
	assert.Contains(t, got, "What you'll do")
	assert.Contains(t, got, "Design reliable services")
	assert.Contains(t, got, "Review code")
	assert.NotContains(t, got, "var x")
	assert.NotContains(t, got, "<")
}

func TestSanitizeDescription_NoBlankLines(t *testing.T) {
	got := SanitizeDescription("<p>a</p><p></p><p>b</p>")
	for _, line := range strings.Split(got, "\n") {
		assert.NotEmpty(t, strings.TrimSpace(line))
	}
}
