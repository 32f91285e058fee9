package application

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	previewRenderer  = goldmark.New(goldmark.WithExtensions(extension.GFM))
	previewSanitizer = bluemonday.UGCPolicy()
)

// RenderBodyPreview renders a composed issue body as sanitized HTML for dry-run
// reports. Each "Key: value" paragraph gets a bold key, the epic label is shown
// as code and dependencies become a bullet list; blank values read "none".
// Paragraphs in any other shape are rendered as plain markdown. Returns empty
// string for empty input.
func RenderBodyPreview(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	var md strings.Builder
	for i, para := range strings.Split(body, "\n\n") {
		if i > 0 {
			md.WriteString("\n\n")
		}
		md.WriteString(previewParagraph(para))
	}

	var buf bytes.Buffer
	if err := previewRenderer.Convert([]byte(md.String()), &buf); err != nil {
		return previewSanitizer.Sanitize(body)
	}
	return previewSanitizer.Sanitize(buf.String())
}

func previewParagraph(para string) string {
	key, value, ok := strings.Cut(para, ":")
	if !ok || !isBodyField(key) {
		return para
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "**" + key + ":** _none_"
	}

	switch key {
	case "Epic":
		return "**Epic:** `" + value + "`"
	case "Depends on":
		var list strings.Builder
		list.WriteString("**Depends on:**\n")
		for _, dep := range strings.Split(value, ",") {
			list.WriteString("\n- " + strings.TrimSpace(dep))
		}
		return list.String()
	default:
		return "**" + key + ":** " + value
	}
}

func isBodyField(key string) bool {
	switch key {
	case "Summary", "Epic", "Depends on", "Estimate", "Project":
		return true
	}
	return false
}
