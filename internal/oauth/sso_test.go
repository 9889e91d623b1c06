package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/sso-code-exchange/internal/apierror"
)

var testToken = TokenResponse{
	TokenType:    "Bearer",
	ExpiresIn:    3600,
	AccessToken:  "access-123",
	RefreshToken: "refresh-123",
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*SSOProvider, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewSSOProvider(Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example.com/oauth/authorization",
		BaseURL:      srv.URL,
	})
	if err != nil {
		t.Fatalf("NewSSOProvider() error = %v", err)
	}
	return p, srv
}

func TestExchangeCode(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantToken  *TokenResponse
		wantKind   apierror.Kind
		wantStatus int
		wantBody   string
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			body:      `{"token_type":"Bearer","expires_in":3600,"access_token":"access-123","refresh_token":"refresh-123"}`,
			wantToken: &testToken,
		},
		{
			name:       "upstream error body passes through",
			status:     http.StatusUnauthorized,
			body:       `{"code":"invalid_grant"}`,
			wantKind:   apierror.KindUpstreamHTTP,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"code":"invalid_grant"}`,
		},
		{
			name:       "upstream error with undecodable body",
			status:     http.StatusInternalServerError,
			body:       `<html>internal error</html>`,
			wantKind:   apierror.KindUpstreamHTTP,
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"code":"unknown error"}`,
		},
		{
			name:       "upstream error without body",
			status:     http.StatusServiceUnavailable,
			wantKind:   apierror.KindUpstreamHTTP,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"code":"unknown error"}`,
		},
		{
			name:       "upstream status without body",
			status:     http.StatusNotModified,
			wantKind:   apierror.KindUpstreamHTTP,
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"code":"unknown error"}`,
		},
		{
			name:       "success status with undecodable body",
			status:     http.StatusOK,
			body:       `not json`,
			wantKind:   apierror.KindUnknown,
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"status":500,"code":"Internal Server Error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq tokenRequest
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if r.URL.Path != "/v1/oauth/token" {
					t.Errorf("path = %s, want /v1/oauth/token", r.URL.Path)
				}
				if got := r.Header.Get("Content-Type"); got != "application/json" {
					t.Errorf("Content-Type = %q, want application/json", got)
				}
				if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
					t.Errorf("decoding token request: %v", err)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			result := p.ExchangeCode(context.Background(), "code-abc")

			wantReq := tokenRequest{
				GrantType:    "authorization_code",
				ClientID:     "client-1",
				ClientSecret: "secret-1",
				RedirectURI:  "https://app.example.com/oauth/authorization",
				Code:         "code-abc",
			}
			if diff := cmp.Diff(wantReq, gotReq); diff != "" {
				t.Errorf("token request mismatch (-want +got):\n%s", diff)
			}

			if tt.wantToken != nil {
				if !result.OK() {
					t.Fatalf("ExchangeCode() failure = %v", result.Failure)
				}
				if diff := cmp.Diff(tt.wantToken, result.Token); diff != "" {
					t.Errorf("token mismatch (-want +got):\n%s", diff)
				}
				return
			}

			if result.OK() || result.Token != nil {
				t.Fatalf("ExchangeCode() = %+v, want failure", result.Token)
			}
			if result.Failure.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", result.Failure.Kind, tt.wantKind)
			}
			if result.Failure.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", result.Failure.Status, tt.wantStatus)
			}
			if got := string(result.Failure.Body); got != tt.wantBody {
				t.Errorf("Body = %s, want %s", got, tt.wantBody)
			}
		})
	}
}

func TestExchangeCodeCancelled(t *testing.T) {
	received := make(chan struct{})
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		close(received)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-received
		cancel()
	}()

	result := p.ExchangeCode(ctx, "code-abc")
	if result.OK() {
		t.Fatal("ExchangeCode() succeeded, want abort")
	}
	if result.Failure.Kind != apierror.KindAbort {
		t.Errorf("Kind = %v, want %v", result.Failure.Kind, apierror.KindAbort)
	}
	if got := string(result.Failure.Body); got != `{"code":"abort error"}` {
		t.Errorf("Body = %s, want abort error envelope", got)
	}
}

func TestExchangeCodeNetworkError(t *testing.T) {
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	result := p.ExchangeCode(context.Background(), "code-abc")
	if result.OK() {
		t.Fatal("ExchangeCode() succeeded, want failure")
	}
	if result.Failure.Kind != apierror.KindUnknown {
		t.Errorf("Kind = %v, want %v", result.Failure.Kind, apierror.KindUnknown)
	}
	if result.Failure.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", result.Failure.Status, http.StatusInternalServerError)
	}
}

func TestNewSSOProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  Config{ClientID: "id", ClientSecret: "secret", BaseURL: "https://sso.example.com"},
		},
		{
			name:    "missing client id",
			cfg:     Config{ClientSecret: "secret", BaseURL: "https://sso.example.com"},
			wantErr: true,
		},
		{
			name:    "missing client secret",
			cfg:     Config{ClientID: "id", BaseURL: "https://sso.example.com"},
			wantErr: true,
		},
		{
			name:    "missing base url",
			cfg:     Config{ClientID: "id", ClientSecret: "secret"},
			wantErr: true,
		},
		{
			name:    "relative base url",
			cfg:     Config{ClientID: "id", ClientSecret: "secret", BaseURL: "sso.example.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSSOProvider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSSOProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenURLKeepsBasePath(t *testing.T) {
	p, err := NewSSOProvider(Config{ClientID: "id", ClientSecret: "secret", BaseURL: "https://sso.example.com/api/"})
	if err != nil {
		t.Fatalf("NewSSOProvider() error = %v", err)
	}
	if want := "https://sso.example.com/api/v1/oauth/token"; p.tokenURL != want {
		t.Errorf("tokenURL = %q, want %q", p.tokenURL, want)
	}
}

func TestAuthCodeURL(t *testing.T) {
	tests := []struct {
		name         string
		authorizeURL string
		wantPrefix   string
	}{
		{
			name:       "derived from base url",
			wantPrefix: "https://sso.example.com/v1/oauth/authorize",
		},
		{
			name:         "explicit authorize url",
			authorizeURL: "https://login.example.com/authorize",
			wantPrefix:   "https://login.example.com/authorize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewSSOProvider(Config{
				ClientID:     "client-1",
				ClientSecret: "secret-1",
				RedirectURI:  "https://app.example.com/oauth/authorization",
				BaseURL:      "https://sso.example.com",
				AuthorizeURL: tt.authorizeURL,
			})
			if err != nil {
				t.Fatalf("NewSSOProvider() error = %v", err)
			}

			u, err := url.Parse(p.AuthCodeURL("state-1"))
			if err != nil {
				t.Fatalf("parsing auth url: %v", err)
			}
			if got := u.Scheme + "://" + u.Host + u.Path; got != tt.wantPrefix {
				t.Errorf("auth url = %q, want %q", got, tt.wantPrefix)
			}

			want := url.Values{
				"response_type": {"code"},
				"client_id":     {"client-1"},
				"redirect_uri":  {"https://app.example.com/oauth/authorization"},
				"state":         {"state-1"},
			}
			if diff := cmp.Diff(want, u.Query()); diff != "" {
				t.Errorf("auth url query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "reachable", status: http.StatusOK},
		{name: "not found is still reachable", status: http.StatusNotFound},
		{name: "server error", status: http.StatusServiceUnavailable, wantErr: ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			err := p.CheckHealth(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Errorf("CheckHealth() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckHealth() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenResponseRoundTrip(t *testing.T) {
	data, err := json.Marshal(testToken)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got TokenResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(testToken, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestOAuth2Token(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tok := testToken.OAuth2Token(now)

	if tok.AccessToken != testToken.AccessToken {
		t.Errorf("AccessToken = %q, want %q", tok.AccessToken, testToken.AccessToken)
	}
	if tok.RefreshToken != testToken.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", tok.RefreshToken, testToken.RefreshToken)
	}
	if want := now.Add(time.Hour); !tok.Expiry.Equal(want) {
		t.Errorf("Expiry = %v, want %v", tok.Expiry, want)
	}
}
