// Package apierror defines the uniform error envelope returned by the code
// exchange endpoint and the failure kinds that map onto it.
package apierror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Envelope codes that are not derived from an HTTP status
const (
	CodeUnknownError = "unknown error"
	CodeAbortError   = "abort error"
)

// StatusClientClosedRequest is reported when the caller cancels the exchange
// before the upstream call completes.
const StatusClientClosedRequest = 499

var statusLabels = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusForbidden:           "Forbidden",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusRequestTimeout:      "Request Timeout",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
	http.StatusServiceUnavailable:  "Service Unavailable",
}

// FieldError describes one violated constraint of a request
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the error body written for every failed exchange
type ErrorResponse struct {
	Status int          `json:"status,omitempty"`
	Code   string       `json:"code"`
	Errors []FieldError `json:"errors,omitempty"`
}

// StatusLabel returns the envelope code for a status, or "Unknown"
func StatusLabel(status int) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return "Unknown"
}

// New builds an envelope labelled after the given HTTP status
func New(status int, errs []FieldError) ErrorResponse {
	return ErrorResponse{
		Status: status,
		Code:   StatusLabel(status),
		Errors: errs,
	}
}

// Kind classifies why an exchange failed
type Kind int

const (
	// KindValidation means the request was rejected before any upstream call
	KindValidation Kind = iota + 1

	// KindUpstreamHTTP means the SSO provider answered with a non-2xx status
	KindUpstreamHTTP

	// KindAbort means the upstream call was cancelled before completion
	KindAbort

	// KindUnknown covers network failures and anything unexpected
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstreamHTTP:
		return "upstream_http"
	case KindAbort:
		return "abort"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure is the error variant of an exchange result. Body holds the exact
// JSON written to the caller, which for upstream errors is the provider's
// own body.
type Failure struct {
	Kind   Kind
	Status int
	Body   json.RawMessage
	Cause  error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s failure (status %d): %v", f.Kind, f.Status, f.Cause)
	}
	return fmt.Sprintf("%s failure (status %d)", f.Kind, f.Status)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Payload returns Body compacted, or nil when Body is empty or not valid
// JSON. Members outside the envelope shape are kept.
func (f *Failure) Payload() json.RawMessage {
	if len(f.Body) == 0 || !json.Valid(f.Body) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, f.Body); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Validation builds a 400 failure listing every violated constraint
func Validation(errs []FieldError) *Failure {
	return &Failure{
		Kind:   KindValidation,
		Status: http.StatusBadRequest,
		Body:   mustMarshal(New(http.StatusBadRequest, errs)),
	}
}

// Upstream builds a failure from a non-2xx provider response. A body that
// is empty or not valid JSON is replaced with the unknown error envelope.
// Statuses that cannot carry a body are reported as 502.
func Upstream(status int, body []byte) *Failure {
	f := &Failure{
		Kind:   KindUpstreamHTTP,
		Status: status,
		Cause:  fmt.Errorf("upstream returned status %d", status),
	}
	if !bodyAllowed(status) {
		f.Status = http.StatusBadGateway
		f.Body = mustMarshal(ErrorResponse{Code: CodeUnknownError})
		return f
	}
	if len(body) > 0 && json.Valid(body) {
		f.Body = json.RawMessage(body)
	} else {
		f.Body = mustMarshal(ErrorResponse{Code: CodeUnknownError})
	}
	return f
}

// bodyAllowed reports whether a response with status may have a body
func bodyAllowed(status int) bool {
	switch {
	case status < 200 || status > 599:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// Abort builds the failure for a cancelled upstream call
func Abort(status int, cause error) *Failure {
	return &Failure{
		Kind:   KindAbort,
		Status: status,
		Body:   mustMarshal(ErrorResponse{Code: CodeAbortError}),
		Cause:  cause,
	}
}

// Unknown builds the generic 500 failure
func Unknown(cause error) *Failure {
	return &Failure{
		Kind:   KindUnknown,
		Status: http.StatusInternalServerError,
		Body:   mustMarshal(New(http.StatusInternalServerError, nil)),
		Cause:  cause,
	}
}

func mustMarshal(v ErrorResponse) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// ErrorResponse only holds strings and ints
		panic(err)
	}
	return data
}

// Classify maps a transport error of a call bound to ctx onto a failure.
// Cancellation by the caller and deadline expiry are both aborts.
func Classify(ctx context.Context, err error) *Failure {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return Abort(StatusClientClosedRequest, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Abort(http.StatusGatewayTimeout, err)
	default:
		return Unknown(err)
	}
}
