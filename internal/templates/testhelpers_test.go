package templates

import (
	"html/template"
	"net/http/httptest"
	"strings"
	"testing"
)

// pageRecorder records a rendered page and counts how often headers and
// body chunks were written
type pageRecorder struct {
	*httptest.ResponseRecorder
	headerCalls int
	writes      int
}

func newPageRecorder() *pageRecorder {
	return &pageRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (p *pageRecorder) WriteHeader(code int) {
	p.headerCalls++
	p.ResponseRecorder.WriteHeader(code)
}

func (p *pageRecorder) Write(b []byte) (int, error) {
	p.writes++
	return p.ResponseRecorder.Write(b)
}

// contains reports whether the page holds every given string
func (p *pageRecorder) contains(ss ...string) bool {
	page := p.Body.String()
	for _, s := range ss {
		if !strings.Contains(page, s) {
			return false
		}
	}
	return true
}

// setupTemplates loads the embedded pages
func setupTemplates(t *testing.T) *Templates {
	t.Helper()
	templates, err := LoadTemplates()
	if err != nil {
		t.Fatalf("failed to load templates: %v", err)
	}
	return templates
}

// brokenAuthorization replaces the authorization page with one that fails
// while executing
func brokenAuthorization(t *testing.T, templates *Templates) {
	t.Helper()

	layout, err := template.New("layout").Parse(`{{define "layout"}}partial {{template "content" .}}{{end}}`)
	if err != nil {
		t.Fatalf("parsing layout: %v", err)
	}
	if _, err := layout.New("content").Parse(`{{.NonExistentField.SubField}}`); err != nil {
		t.Fatalf("parsing content: %v", err)
	}
	templates.authorization = layout
}
