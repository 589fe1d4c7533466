// Package preview renders fetched page content as a sandboxed, embeddable
// fragment with a link to the live application.
package preview

import (
	"bytes"
	"html/template"
	"strings"
)

var fragment = template.Must(template.New("preview").Parse(
	`<div class="preview">` +
		`<iframe class="preview-frame" sandbox="" title="Application preview" srcdoc="{{.Doc}}"></iframe>` +
		`{{if .URL}}<p class="preview-open"><a href="{{.URL}}" target="_blank" rel="noopener noreferrer">Open</a></p>{{end}}` +
		`</div>`))

// Document assembles the standalone document loaded into the iframe: the
// stylesheet text inside <style> followed by the body markup.
func Document(body, css string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\">")
	if css != "" {
		b.WriteString("<style>")
		b.WriteString(strings.ReplaceAll(css, "</style", `<\/style`))
		b.WriteString("</style>")
	}
	b.WriteString("</head><body>")
	b.WriteString(body)
	b.WriteString("</body></html>")
	return b.String()
}

// Render returns the preview fragment. The page runs in an iframe with an
// empty sandbox, so its scripts and forms are inert; the template escapes
// the document into the srcdoc attribute.
func Render(body, css, url string) (template.HTML, error) {
	var buf bytes.Buffer
	err := fragment.Execute(&buf, struct {
		Doc, URL string
	}{Doc: Document(body, css), URL: url})
	if err != nil {
		return "", err
	}
	// #nosec G203 -- produced by html/template with contextual escaping
	return template.HTML(buf.String()), nil
}
