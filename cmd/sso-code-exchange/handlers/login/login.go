// Package login redirects users to the SSO login page
package login

import "net/http"

// AuthCodeURLer builds the SSO authorize URL
type AuthCodeURLer interface {
	AuthCodeURL(state string) string
}

// Handler processes GET /api/oauth/login
type Handler struct {
	provider AuthCodeURLer
}

// New creates a new login redirect handler
func New(provider AuthCodeURLer) *Handler {
	return &Handler{provider: provider}
}

// ServeHTTP answers with a redirect to the authorize URL. The SSO provider
// sends the user back to the configured redirect URL with a code.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.provider.AuthCodeURL(""), http.StatusFound)
}
