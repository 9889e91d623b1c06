// Package templates renders the authorization result page
package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
)

//go:embed html/*.html
var content embed.FS

// TemplateError reports a page that could not be rendered
type TemplateError struct {
	Cause   error
	Message string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Templates manages the HTML templates
type Templates struct {
	authorization *template.Template
	error         *template.Template
}

var funcs = template.FuncMap{
	"json": toJSON,
}

// LoadTemplates loads and parses all HTML templates
func LoadTemplates() (*Templates, error) {
	t := &Templates{}
	var err error

	if t.authorization, err = parse("html/authorization.html"); err != nil {
		return nil, err
	}
	if t.error, err = parse("html/error.html"); err != nil {
		return nil, err
	}

	return t, nil
}

func parse(page string) (*template.Template, error) {
	tmpl, err := template.New("layout").Funcs(funcs).ParseFS(content, page, "html/layout.html")
	if err != nil {
		return nil, &TemplateError{Cause: err, Message: "parsing " + page}
	}
	return tmpl, nil
}

// AuthorizationData holds the state shown by the authorization panel.
// Exactly one of the three panels is rendered: Loading wins, then Failed,
// then a non-nil Data.
type AuthorizationData struct {
	Loading bool
	Failed  bool
	Error   any
	Data    any
}

// RenderAuthorization renders the authorization result page
func (t *Templates) RenderAuthorization(w io.Writer, data AuthorizationData) error {
	return render(w, t.authorization, data)
}

// ErrorData holds data for the error page
type ErrorData struct {
	Title   string
	Message string
}

// RenderError renders the error page
func (t *Templates) RenderError(w io.Writer, data ErrorData) error {
	return render(w, t.error, data)
}

// render executes into a buffer so a failing template never leaves a
// partial page on w
func render(w io.Writer, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return &TemplateError{Cause: err, Message: "executing " + tmpl.Name()}
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("writing page: %w", err)
	}
	return nil
}

// toJSON formats v the way the panels display payloads
func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
