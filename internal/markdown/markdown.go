// Package markdown renders model output into the HTML subset Telegram
// accepts. It is the fallback delivery format when Telegram rejects the raw
// Markdown parse mode.
package markdown

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Telegram allows only a small tag set; everything else must be unwrapped
// before sending or the whole message is rejected.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"a":    true,
	"code": true, "pre": true,
	"blockquote": true,
	"br":         true,
}

var (
	tagPattern     = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)[^>]*>`)
	headingPattern = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	listItemOpen   = regexp.MustCompile(`<li[^>]*>`)
	hrPattern      = regexp.MustCompile(`<hr[^>]*/?>`)
	manyBlankLines = regexp.MustCompile(`\n{3,}`)
)

// ToHTML converts Markdown-ish model output into Telegram-safe HTML.
func ToHTML(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		// Model output is arbitrary text; rendering must never take the
		// reply down with it.
		slog.Warn("failed to render markdown, escaping as plain text", "error", err)
		return Escape(source)
	}
	return sanitize(buf.String())
}

// sanitize flattens block structure into newlines and strips every tag
// Telegram does not accept.
func sanitize(rendered string) string {
	out := rendered

	out = headingPattern.ReplaceAllString(out, "<b>$1</b>\n")
	out = listItemOpen.ReplaceAllString(out, "• ")
	out = hrPattern.ReplaceAllString(out, "\n")

	out = strings.ReplaceAll(out, "</p>", "\n\n")
	out = strings.ReplaceAll(out, "</li>", "\n")
	out = strings.ReplaceAll(out, "</ul>", "\n")
	out = strings.ReplaceAll(out, "</ol>", "\n")
	out = strings.ReplaceAll(out, "<br>", "\n")
	out = strings.ReplaceAll(out, "<br/>", "\n")
	out = strings.ReplaceAll(out, "<br />", "\n")

	out = tagPattern.ReplaceAllStringFunc(out, func(tag string) string {
		m := tagPattern.FindStringSubmatch(tag)
		if allowedTags[strings.ToLower(m[1])] {
			return tag
		}
		return ""
	})

	out = manyBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Escape makes arbitrary text safe to embed in a Telegram HTML message.
func Escape(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(text)
}

// Bold wraps escaped text in a bold tag.
func Bold(text string) string {
	return fmt.Sprintf("<b>%s</b>", Escape(text))
}

// Code wraps escaped text in an inline code tag.
func Code(text string) string {
	return fmt.Sprintf("<code>%s</code>", Escape(text))
}
