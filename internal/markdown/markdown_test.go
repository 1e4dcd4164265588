package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		contains []string
		excludes []string
	}{
		{
			name:     "emphasis",
			source:   "some **bold** and *italic* text",
			contains: []string{"<strong>bold</strong>", "<em>italic</em>"},
		},
		{
			name:     "inline code and fences",
			source:   "run `ls` or:\n\n```\nmake all\n```",
			contains: []string{"<code>ls</code>", "<pre>"},
		},
		{
			name:     "strikethrough",
			source:   "this is ~~wrong~~ right",
			contains: []string{"<del>wrong</del>"},
		},
		{
			name:     "headings become bold",
			source:   "# Title\n\nbody",
			contains: []string{"<b>Title</b>"},
			excludes: []string{"<h1>", "</h1>"},
		},
		{
			name:     "list items become bullets",
			source:   "- first\n- second",
			contains: []string{"• first", "• second"},
			excludes: []string{"<li>", "<ul>"},
		},
		{
			name:     "links survive",
			source:   "see [docs](https://example.com)",
			contains: []string{`<a href="https://example.com">docs</a>`},
		},
		{
			name:     "paragraph tags are unwrapped",
			source:   "one\n\ntwo",
			contains: []string{"one", "two"},
			excludes: []string{"<p>", "</p>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToHTML(tt.source)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, got, not)
			}
		})
	}
}

func TestToHTMLCollapsesBlankLines(t *testing.T) {
	got := ToHTML("a\n\n\n\n\nb")
	assert.NotContains(t, got, "\n\n\n")
	assert.False(t, strings.HasSuffix(got, "\n"))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", Escape("a <b> & c"))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "<b>x &lt; y</b>", Bold("x < y"))
	assert.Equal(t, "<code>a &amp; b</code>", Code("a & b"))
}
