// Package integration exercises a running exchange server end to end
package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

// Configuration for integration tests
const (
	// DefaultServerEndpoint is used when EXCHANGE_SERVER_URL is unset
	DefaultServerEndpoint = "http://localhost:3000"

	// Timeouts and delays
	ServiceTimeout = 60 * time.Second
	RetryInterval  = 2 * time.Second
)

// TestSuite provides shared functionality for integration tests
type TestSuite struct {
	T        *testing.T
	Client   *http.Client
	Ctx      context.Context
	Endpoint string
}

// NewSuite creates a new test suite with timeout. Redirects are not
// followed so tests can inspect them.
func NewSuite(t *testing.T) *TestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	endpoint := os.Getenv("EXCHANGE_SERVER_URL")
	if endpoint == "" {
		if os.Getenv("INTEGRATION") == "" {
			t.Skip("Skipping integration test: set INTEGRATION or EXCHANGE_SERVER_URL")
		}
		endpoint = DefaultServerEndpoint
	}

	ctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout)
	t.Cleanup(cancel)

	return &TestSuite{
		T: t,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Ctx:      ctx,
		Endpoint: endpoint,
	}
}

// WaitForServices waits until the server reports itself healthy
func (s *TestSuite) WaitForServices() error {
	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()

	for {
		lastErr := s.checkHealth()
		if lastErr == nil {
			return nil
		}

		select {
		case <-s.Ctx.Done():
			return fmt.Errorf("timeout waiting for services: %w", lastErr)
		case <-ticker.C:
		}
	}
}

func (s *TestSuite) checkHealth() error {
	req, err := http.NewRequestWithContext(s.Ctx, http.MethodGet, s.BuildURL("/health", nil), nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("checking server health: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// BuildURL creates a full URL for an endpoint of the server
func (s *TestSuite) BuildURL(path string, params url.Values) string {
	if len(params) == 0 {
		return s.Endpoint + path
	}
	return s.Endpoint + path + "?" + params.Encode()
}
