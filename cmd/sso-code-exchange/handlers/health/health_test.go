package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type mockChecker struct {
	checkHealthFunc func(ctx context.Context) error
}

func (m *mockChecker) CheckHealth(ctx context.Context) error {
	if m.checkHealthFunc != nil {
		return m.checkHealthFunc(ctx)
	}
	return nil
}

func TestHealthHandler(t *testing.T) {
	version := "1.0.0"
	healthy := &mockChecker{}
	down := &mockChecker{checkHealthFunc: func(ctx context.Context) error {
		return errors.New("service unavailable")
	}}

	tests := []struct {
		name     string
		checkers map[string]Checker
		wantCode int
		wantBody Response
	}{
		{
			name:     "healthy system",
			checkers: map[string]Checker{"sso": healthy},
			wantCode: http.StatusOK,
			wantBody: Response{
				Status:  "healthy",
				Version: version,
				Details: map[string]any{
					"sso": map[string]any{
						"status": "healthy",
					},
				},
			},
		},
		{
			name:     "sso unhealthy",
			checkers: map[string]Checker{"sso": down, "cache": healthy},
			wantCode: http.StatusServiceUnavailable,
			wantBody: Response{
				Status:  "unhealthy",
				Version: version,
				Details: map[string]any{
					"sso": map[string]any{
						"status":  "unhealthy",
						"message": "service unavailable",
					},
					"cache": map[string]any{
						"status": "healthy",
					},
				},
			},
		},
		{
			name:     "no checkers",
			checkers: nil,
			wantCode: http.StatusOK,
			wantBody: Response{
				Status:  "healthy",
				Version: version,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := New(tt.checkers).WithVersion(version)

			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			// Check status code
			if got := w.Code; got != tt.wantCode {
				t.Errorf("Health handler status = %v, want %v", got, tt.wantCode)
			}

			// Check headers
			if got := w.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Health handler Cache-Control = %v, want no-store", got)
			}
			if got := w.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Health handler Content-Type = %v, want application/json", got)
			}

			// Check response body
			var got Response
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if diff := cmp.Diff(tt.wantBody, got); diff != "" {
				t.Errorf("Health handler response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
