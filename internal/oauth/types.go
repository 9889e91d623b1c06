// Package oauth provides the authorization code exchange against the SSO provider
package oauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/wrale/sso-code-exchange/internal/apierror"
)

// GrantTypeAuthorizationCode is the only grant this package requests
const GrantTypeAuthorizationCode = "authorization_code"

// ErrProviderUnavailable is returned by health checks when the SSO provider
// cannot be reached or answers with a server error
var ErrProviderUnavailable = errors.New("sso provider unavailable")

// TokenResponse is the token payload issued by the SSO provider
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Expiry returns the absolute expiry of the access token relative to now
func (t *TokenResponse) Expiry(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// OAuth2Token converts the response into an oauth2.Token
func (t *TokenResponse) OAuth2Token(now time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry(now),
		ExpiresIn:    int64(t.ExpiresIn),
	}
}

// Result is the outcome of one exchange attempt. Exactly one of Token and
// Failure is set.
type Result struct {
	Token   *TokenResponse
	Failure *apierror.Failure
}

// OK reports whether the exchange succeeded
func (r Result) OK() bool {
	return r.Failure == nil && r.Token != nil
}

// Succeeded wraps a token into a Result
func Succeeded(token *TokenResponse) Result {
	return Result{Token: token}
}

// Failed wraps a failure into a Result
func Failed(f *apierror.Failure) Result {
	return Result{Failure: f}
}

// Provider exchanges authorization codes with an SSO provider
type Provider interface {
	// ExchangeCode trades an authorization code for tokens
	ExchangeCode(ctx context.Context, code string) Result

	// AuthCodeURL returns the provider page the user is sent to for login
	AuthCodeURL(state string) string

	// CheckHealth verifies the provider is reachable
	CheckHealth(ctx context.Context) error
}

// Config holds the client registration with the SSO provider
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	AuthorizeURL string
}
