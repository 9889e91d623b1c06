// Package exchangeclient calls the code exchange endpoint and tracks the
// lifecycle of each exchange by authorization code
package exchangeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/wrale/sso-code-exchange/internal/apierror"
	"github.com/wrale/sso-code-exchange/internal/oauth"
	"github.com/wrale/sso-code-exchange/internal/querycache"
)

// CallbackPath is the exchange endpoint relative to the server base URL
const CallbackPath = "/api/oauth/callback"

const maxBodySize = 1 << 20

// Client performs exchanges against one server. Calls for the same code
// that overlap share a single request, and a settled state is reused until
// the stale window elapses. Failed exchanges are never retried.
type Client struct {
	endpoint  string
	http      *http.Client
	cache     querycache.Cache
	staleTime time.Duration
	logger    zerolog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for exchanges
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithCache sets the store for settled states. The cache is shared by every
// exchange the client performs.
func WithCache(cache querycache.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithStaleTime sets how long a settled state is reused. Zero, the default,
// disables reuse.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) {
		c.staleTime = d
	}
}

// WithLogger sets the logger for cache problems
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	c := &Client{
		endpoint: u.JoinPath(CallbackPath).String(),
		http:     &http.Client{},
		cache:    querycache.NewMemoryCache(),
		logger:   zerolog.Nop(),
		inflight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Key returns the cache key of the exchange for code
func Key(code string) string {
	return "authorization:" + code
}

// Exchange returns the settled state of the exchange for code, performing
// the request unless a fresh state is cached. The context of the call that
// starts a shared request bounds that request; cancelling it settles every
// waiter with an abort error.
func (c *Client) Exchange(ctx context.Context, code string) State {
	key := Key(code)
	if st, ok := c.cached(ctx, key); ok {
		return st
	}

	c.begin(key)
	defer c.end(key)

	v, _, _ := c.group.Do(key, func() (any, error) {
		// a request that settled since the check above may have been cached
		if st, ok := c.cached(ctx, key); ok {
			return st, nil
		}
		result := c.fetch(ctx, code)
		st := FromResult(result)
		// a cancelled request has not settled
		if result.Failure == nil || result.Failure.Kind != apierror.KindAbort {
			c.store(ctx, key, st)
		}
		return st, nil
	})
	return v.(State)
}

// Peek returns the current state for code without starting a request. It
// reports false when no exchange is in flight and nothing is cached.
func (c *Client) Peek(ctx context.Context, code string) (State, bool) {
	key := Key(code)

	c.mu.Lock()
	pending := c.inflight[key] > 0
	c.mu.Unlock()
	if pending {
		return Pending(), true
	}

	return c.cached(ctx, key)
}

// Invalidate drops the cached state for code so the next Exchange
// performs a new request
func (c *Client) Invalidate(ctx context.Context, code string) error {
	if err := c.cache.Del(ctx, Key(code)); err != nil {
		return fmt.Errorf("invalidating exchange: %w", err)
	}
	return nil
}

func (c *Client) begin(key string) {
	c.mu.Lock()
	c.inflight[key]++
	c.mu.Unlock()
}

func (c *Client) end(key string) {
	c.mu.Lock()
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

func (c *Client) cached(ctx context.Context, key string) (State, bool) {
	if c.staleTime <= 0 {
		return State{}, false
	}

	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, querycache.ErrMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("reading cached exchange")
		}
		return State{}, false
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("decoding cached exchange")
		return State{}, false
	}
	return st, true
}

func (c *Client) store(ctx context.Context, key string, st State) {
	if c.staleTime <= 0 {
		return
	}

	data, err := json.Marshal(st)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("encoding exchange for cache")
		return
	}
	if err := c.cache.Set(ctx, key, data, c.staleTime); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("caching exchange")
	}
}

type codeRequest struct {
	Code string `json:"code"`
}

// fetch performs one exchange request. Error bodies are kept verbatim so an
// undecodable body surfaces as a failure without payload.
func (c *Client) fetch(ctx context.Context, code string) oauth.Result {
	payload, err := json.Marshal(codeRequest{Code: code})
	if err != nil {
		return oauth.Failed(&apierror.Failure{Kind: apierror.KindUnknown, Cause: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return oauth.Failed(&apierror.Failure{Kind: apierror.KindUnknown, Cause: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return oauth.Failed(transportFailure(ctx, fmt.Errorf("sending exchange request: %w", err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return oauth.Failed(transportFailure(ctx, fmt.Errorf("reading exchange response: %w", err)))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return oauth.Failed(&apierror.Failure{
			Kind:   apierror.KindUpstreamHTTP,
			Status: resp.StatusCode,
			Body:   body,
			Cause:  fmt.Errorf("exchange returned status %d", resp.StatusCode),
		})
	}

	var token oauth.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return oauth.Failed(&apierror.Failure{
			Kind:   apierror.KindUnknown,
			Status: resp.StatusCode,
			Cause:  fmt.Errorf("parsing exchange response: %w", err),
		})
	}
	return oauth.Succeeded(&token)
}

// transportFailure keeps the abort envelope for cancellations and drops the
// payload of every other transport error
func transportFailure(ctx context.Context, err error) *apierror.Failure {
	f := apierror.Classify(ctx, err)
	if f.Kind != apierror.KindAbort {
		f.Body = nil
	}
	return f
}
