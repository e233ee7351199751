package web

import (
	"bytes"
	"encoding/json"
	"html/template"

	"github.com/Lllllllleong/earningscallsummarizer/internal/llm"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML in model output is dropped; goldmark only passes it through with html.WithUnsafe.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderBody turns one stage output into display HTML.
func renderBody(text string, format llm.Format) template.HTML {
	switch format {
	case llm.FormatMarkdown:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(text), &buf); err != nil {
			return preformatted(text)
		}
		return template.HTML(buf.String())
	case llm.FormatJSON:
		return preformatted(prettyJSON(text))
	default:
		return preformatted(text)
	}
}

// prettyJSON indents valid JSON and returns anything else unchanged.
func prettyJSON(text string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return text
	}
	return buf.String()
}

func preformatted(text string) template.HTML {
	return template.HTML("<pre>" + template.HTMLEscapeString(text) + "</pre>")
}
