package exchangeclient

import (
	"encoding/json"

	"github.com/wrale/sso-code-exchange/internal/oauth"
)

// Status is the lifecycle position of one exchange
type Status int

const (
	// StatusPending means the exchange has not settled yet
	StatusPending Status = iota + 1

	// StatusFailed means the exchange settled with an error
	StatusFailed

	// StatusSucceeded means the exchange settled with a token
	StatusSucceeded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	case StatusSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// State is what a caller observes about an exchange. Error holds the error
// body as received, or nil for a failure whose body is not JSON.
type State struct {
	Status Status               `json:"status"`
	Error  json.RawMessage      `json:"error,omitempty"`
	Data   *oauth.TokenResponse `json:"data,omitempty"`
}

// Pending returns the state of an exchange that has not settled
func Pending() State {
	return State{Status: StatusPending}
}

// FromResult derives the settled state of an exchange result
func FromResult(r oauth.Result) State {
	switch {
	case r.Failure != nil:
		return State{Status: StatusFailed, Error: r.Failure.Payload()}
	case r.Token != nil:
		return State{Status: StatusSucceeded, Data: r.Token}
	default:
		return State{Status: StatusFailed}
	}
}

// IsPending reports whether the loading panel is active
func (s State) IsPending() bool { return s.Status == StatusPending }

// IsFailed reports whether the error panel is active
func (s State) IsFailed() bool { return s.Status == StatusFailed }

// IsSucceeded reports whether the success panel is active
func (s State) IsSucceeded() bool { return s.Status == StatusSucceeded }
