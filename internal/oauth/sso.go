package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/wrale/sso-code-exchange/internal/apierror"
)

const (
	// SSO endpoint paths, relative to the API base URL
	tokenPath     = "v1/oauth/token"
	authorizePath = "v1/oauth/authorize"

	// maxBodySize bounds how much of a provider response is read
	maxBodySize = 1 << 20
)

// SSOProvider implements the Provider interface for the SSO token endpoint
type SSOProvider struct {
	client       *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	baseURL      string
	tokenURL     string
	oauth        *oauth2.Config
}

// Option configures an SSOProvider
type Option func(*SSOProvider)

// WithHTTPClient sets the client used for upstream calls. The default client
// has no timeout, the request context bounds every call.
func WithHTTPClient(client *http.Client) Option {
	return func(p *SSOProvider) {
		p.client = client
	}
}

// NewSSOProvider creates a provider for the SSO API at cfg.BaseURL
func NewSSOProvider(cfg Config, opts ...Option) (*SSOProvider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", cfg.BaseURL)
	}

	tokenURL := base.JoinPath(tokenPath).String()
	authorizeURL := cfg.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = base.JoinPath(authorizePath).String()
	}

	p := &SSOProvider{
		client:       &http.Client{},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		baseURL:      base.String(),
		tokenURL:     tokenURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authorizeURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
	Code         string `json:"code"`
}

// ExchangeCode posts the authorization code to the token endpoint. It makes
// exactly one attempt and never retries.
func (p *SSOProvider) ExchangeCode(ctx context.Context, code string) Result {
	payload, err := json.Marshal(tokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURI:  p.redirectURI,
		Code:         code,
	})
	if err != nil {
		return Failed(apierror.Unknown(fmt.Errorf("encoding token request: %w", err)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return Failed(apierror.Unknown(fmt.Errorf("creating token request: %w", err)))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Failed(apierror.Classify(ctx, fmt.Errorf("sending token request: %w", err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Failed(apierror.Classify(ctx, fmt.Errorf("reading token response: %w", err)))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failed(apierror.Upstream(resp.StatusCode, body))
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return Failed(apierror.Unknown(fmt.Errorf("parsing token response: %w", err)))
	}

	return Succeeded(&token)
}

// AuthCodeURL returns the SSO login page URL for this client
func (p *SSOProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// CheckHealth verifies the SSO API answers without a server error
func (p *SSOProvider) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	return nil
}
