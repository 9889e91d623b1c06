// Package callback implements the authorization code exchange endpoint
package callback

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/common"
	"github.com/wrale/sso-code-exchange/internal/apierror"
	"github.com/wrale/sso-code-exchange/internal/oauth"
	"github.com/wrale/sso-code-exchange/internal/validation"
)

// maxRequestSize bounds the accepted request body
const maxRequestSize = 64 << 10

// Exchanger trades an authorization code for tokens
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) oauth.Result
}

// Handler processes POST /api/oauth/callback
type Handler struct {
	provider     Exchanger
	validator    *validation.Validator
	cookieSecure bool
	now          func() time.Time
}

// Config contains handler configuration options
type Config struct {
	Provider     Exchanger
	Validator    *validation.Validator
	CookieSecure bool
	// Now overrides the clock used for cookie expiry
	Now func() time.Time
}

// New creates a new exchange handler
func New(cfg Config) *Handler {
	h := &Handler{
		provider:     cfg.Provider,
		validator:    cfg.Validator,
		cookieSecure: cfg.CookieSecure,
		now:          cfg.Now,
	}
	if h.validator == nil {
		h.validator = validation.New()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// ServeHTTP validates the body, performs a single upstream exchange and
// writes either the token response with the token cookie or an error
// envelope
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)

	code, failure := h.validator.DecodeCodeRequest(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if failure != nil {
		logger.Debug().Str("kind", failure.Kind.String()).Msg("rejected exchange request")
		common.WriteFailure(w, failure)
		return
	}

	result := Exchange(r.Context(), h.provider, code, logger)
	if !result.OK() {
		common.WriteFailure(w, result.Failure)
		return
	}

	common.SetTokenCookie(w, result.Token, h.now(), h.cookieSecure)
	common.WriteJSON(w, http.StatusOK, result.Token)
}

// Exchange runs one exchange and logs its failure. A result with neither
// token nor failure is reported as unknown.
func Exchange(ctx context.Context, provider Exchanger, code string, logger *zerolog.Logger) oauth.Result {
	result := provider.ExchangeCode(ctx, code)
	if result.OK() {
		logger.Info().Str("token_type", result.Token.TokenType).Int("expires_in", result.Token.ExpiresIn).Msg("authorization code exchanged")
		return result
	}
	if result.Failure == nil {
		result = oauth.Failed(apierror.Unknown(nil))
	}

	f := result.Failure
	event := logger.Warn()
	if f.Kind == apierror.KindUnknown {
		event = logger.Error()
	}
	event = event.Err(f.Cause).Str("kind", f.Kind.String()).Int("status", f.Status)
	if len(f.Body) > 0 {
		event = event.RawJSON("body", f.Body)
	}
	event.Msg("authorization code exchange failed")

	return result
}
