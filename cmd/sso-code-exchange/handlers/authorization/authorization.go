// Package authorization serves the page a user lands on after SSO login
package authorization

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/callback"
	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/common"
	"github.com/wrale/sso-code-exchange/internal/exchangeclient"
	"github.com/wrale/sso-code-exchange/internal/oauth"
	"github.com/wrale/sso-code-exchange/internal/templates"
	"github.com/wrale/sso-code-exchange/internal/validation"
)

// Handler processes GET /oauth/authorization?code=
type Handler struct {
	provider     callback.Exchanger
	templates    *templates.Templates
	validator    *validation.Validator
	cookieSecure bool
	now          func() time.Time
}

// Config contains handler configuration options
type Config struct {
	Provider     callback.Exchanger
	Templates    *templates.Templates
	Validator    *validation.Validator
	CookieSecure bool
	Now          func() time.Time
}

// New creates a new authorization page handler
func New(cfg Config) *Handler {
	h := &Handler{
		provider:     cfg.Provider,
		templates:    cfg.Templates,
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

// ServeHTTP exchanges the code from the query and renders the outcome
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	sw := h.templates.NewSafeWriter(w)

	var req validation.CodeRequest
	if q := r.URL.Query(); q.Has("code") {
		code := q.Get("code")
		req.Code = &code
	}

	var result oauth.Result
	if code, failure := h.validator.ValidateCodeRequest(req); failure != nil {
		result = oauth.Failed(failure)
	} else {
		result = callback.Exchange(r.Context(), h.provider, code, logger)
	}

	state := exchangeclient.FromResult(result)
	if result.OK() {
		common.SetTokenCookie(w, result.Token, h.now(), h.cookieSecure)
	} else {
		sw.SetStatusCode(result.Failure.Status)
	}

	w.Header().Set("Cache-Control", "no-store")
	err := h.templates.RenderAuthorization(sw, templates.AuthorizationData{
		Loading: state.IsPending(),
		Failed:  state.IsFailed(),
		Error:   state.Error,
		Data:    state.Data,
	})
	if err == nil {
		return
	}

	logger.Error().Err(err).Msg("rendering authorization page")
	if sw.Written() {
		return
	}
	sw.SetStatusCode(http.StatusInternalServerError)
	if err := h.templates.RenderError(sw, templates.ErrorData{
		Title:   "Authorization Failed",
		Message: "Unable to display the authorization result",
	}); err != nil {
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}
