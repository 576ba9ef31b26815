package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/redact"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/supabase-community/postgrest-go"
)

const restPath = "/rest/v1"

// Config holds the connection settings for a Supabase project.
type Config struct {
	URL    string // project URL, e.g. https://abc.supabase.co
	APIKey string // service role or anon key
	Schema string // PostgREST schema; empty means public

	// HTTPClient is optional; only its Transport is used.
	HTTPClient *http.Client
}

// client issues PostgREST requests through postgrest-go. It is safe for
// concurrent use: every call gets its own postgrest.Client bound to the
// caller's context.
type client struct {
	restURL string
	apiKey  string
	schema  string
	base    http.RoundTripper
	logger  *slog.Logger
}

func newClient(cfg Config, logger *slog.Logger) *client {
	var base http.RoundTripper = http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}
	return &client{
		restURL: strings.TrimRight(cfg.URL, "/") + restPath,
		apiKey:  cfg.APIKey,
		schema:  cfg.Schema,
		base:    base,
		logger:  logger,
	}
}

// callTransport binds a request to ctx and remembers the response status,
// which postgrest-go does not report back.
type callTransport struct {
	ctx  context.Context
	base http.RoundTripper

	mu     sync.Mutex
	status int
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.status = resp.StatusCode
	t.mu.Unlock()
	return resp, nil
}

func (t *callTransport) lastStatus() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// query is one PostgREST request built on a fresh postgrest.Client.
type query func(c *postgrest.Client) *postgrest.FilterBuilder

// exec runs q and decodes the response into out when out is non-nil.
func (c *client) exec(ctx context.Context, method, table string, q query, out any) error {
	rt := &callTransport{ctx: ctx, base: c.base}
	pc := postgrest.NewClient(c.restURL, c.schema, nil)
	if pc.ClientError != nil {
		return fmt.Errorf("%w: invalid project url: %s", domain.ErrUpstreamUnavailable, redact.Error(pc.ClientError))
	}
	pc.SetApiKey(c.apiKey).SetAuthToken(c.apiKey)
	pc.Transport.Parent = rt

	fb := q(pc)
	var err error
	if out != nil {
		_, err = fb.ExecuteTo(out)
	} else {
		_, _, err = fb.Execute()
	}
	if err == nil {
		return nil
	}

	status := rt.lastStatus()
	if status == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %s", domain.ErrUpstreamUnavailable, method, table, redact.Error(err))
	}
	if status < 300 {
		return fmt.Errorf("failed to decode %s response: %w", table, err)
	}
	return c.statusError(method, table, status, err)
}

// statusError classifies a non-2xx response. Server errors and rejected
// credentials mean the store cannot be used right now; constraint and
// shape errors mean the row itself was refused.
func (c *client) statusError(method, table string, status int, err error) error {
	detail := redact.Error(err)
	c.logger.Warn("postgrest request failed",
		"method", method,
		"table", table,
		"status", status,
		"error", detail)

	switch {
	case status >= 500,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrUpstreamUnavailable, method, table, status)
	case status == http.StatusConflict,
		status == http.StatusBadRequest,
		status == http.StatusUnprocessableEntity:
		return store.NewStoreError(table, strings.ToLower(method), detail, store.ErrInvalidEntity)
	default:
		return store.NewStoreError(table, strings.ToLower(method), fmt.Sprintf("status %d: %s", status, detail), nil)
	}
}
