// ABOUTME: Markdown rendering of message content into sanitized HTML
// ABOUTME: Raw HTML and dangerous link schemes are dropped by goldmark's safe mode

package messaging

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// renderer runs without html.WithUnsafe, so raw HTML in content is omitted
// and javascript: style URLs are not linked.
var renderer = goldmark.New(
	goldmark.WithExtensions(
		extension.Linkify,
		extension.Strikethrough,
	),
)

// RenderHTML converts message content to HTML for rich clients.
// Content that fails to render falls back to an empty string.
func RenderHTML(content string) string {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(content), &buf); err != nil {
		return ""
	}
	return buf.String()
}
