// Package web renders the chat page.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"tutorchat/internal/models"
)

//go:embed templates/*.html static/*
var assets embed.FS

// ChatPage is the data behind the chat template.
type ChatPage struct {
	Session *models.Session
	// Error is an apology for the last failed message, if any.
	Error string
	// Draft is put back in the input after a failed send.
	Draft          string
	MinTemperature float64
	MaxTemperature float64
}

// Renderer turns sessions into HTML. Assistant replies are Markdown and
// are sanitized after conversion; user text is escaped verbatim.
type Renderer struct {
	tmpl   *template.Template
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
	r.policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": r.Markdown,
		"isUser":   func(role models.Role) bool { return role == models.RoleUser },
	}).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Markdown converts text to sanitized HTML. On conversion failure the
// text is shown escaped.
func (r *Renderer) Markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

func (r *Renderer) RenderChat(w io.Writer, page ChatPage) error {
	if page.MaxTemperature == 0 {
		page.MinTemperature = models.MinTemperature
		page.MaxTemperature = models.MaxTemperature
	}
	return r.tmpl.ExecuteTemplate(w, "chat.html", page)
}

// Static serves the embedded static assets under the path it is mounted on.
func Static() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
