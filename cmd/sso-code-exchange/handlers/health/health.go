// Package health reports whether the server's dependencies are reachable
package health

import (
	"context"
	"net/http"
	"sort"

	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/common"
)

// Checker is a dependency that can report its health
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// Handler processes health check requests
type Handler struct {
	checkers map[string]Checker
	version  string
}

// Response represents the health check response.
type Response struct {
	Status  string         `json:"status"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// New creates a new health check handler over the named checkers
func New(checkers map[string]Checker) *Handler {
	return &Handler{
		checkers: checkers,
		version:  "unknown",
	}
}

// WithVersion sets the version for health check responses
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// ServeHTTP handles health check requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := Response{
		Status:  "healthy",
		Version: h.version,
		Details: make(map[string]any, len(h.checkers)),
	}

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checkers[name].CheckHealth(r.Context()); err != nil {
			response.Status = "unhealthy"
			response.Details[name] = map[string]any{
				"status":  "unhealthy",
				"message": err.Error(),
			}
			continue
		}
		response.Details[name] = map[string]any{
			"status": "healthy",
		}
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	common.WriteJSON(w, status, response)
}
