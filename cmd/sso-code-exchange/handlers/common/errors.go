// Package common holds response helpers shared by the HTTP handlers
package common

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/wrale/sso-code-exchange/internal/apierror"
	"github.com/wrale/sso-code-exchange/internal/oauth"
)

// TokenCookie is the cookie holding the access token
const TokenCookie = "token"

// fallbackBody is written when a response cannot be encoded
var fallbackBody = []byte(`{"status":500,"code":"Internal Server Error"}`)

// SetJSONHeaders sets the headers of every JSON response
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteJSON encodes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		WriteJSONError(w, err)
		return
	}

	SetJSONHeaders(w)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// WriteFailure writes the envelope of f with its status
func WriteFailure(w http.ResponseWriter, f *apierror.Failure) {
	if f.Status == 0 || len(f.Body) == 0 {
		f = apierror.Unknown(f)
	}
	SetJSONHeaders(w)
	w.WriteHeader(f.Status)
	_, _ = w.Write(f.Body)
}

// WriteJSONError handles JSON encoding failures with the unknown envelope
func WriteJSONError(w http.ResponseWriter, err error) {
	SetJSONHeaders(w)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(fallbackBody)
}

// SetTokenCookie stores the access token for the browser. The cookie
// expires together with the token.
func SetTokenCookie(w http.ResponseWriter, token *oauth.TokenResponse, now time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token.AccessToken,
		Path:     "/",
		Expires:  token.Expiry(now),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Recoverer turns a panicking handler into the unknown error envelope
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				hlog.FromRequest(r).Error().Interface("panic", rvr).Msg("handler panicked")
				WriteFailure(w, apierror.Unknown(nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
