// Package dispatch executes platform resource requests on behalf of
// authenticated users. It attaches the right authorization for the chosen
// scheme, classifies platform responses onto the shared error taxonomy, and
// retries exactly once through a forced refresh when a bearer token is
// rejected mid-lifetime.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mintfolio/xauth/auth"
	"github.com/mintfolio/xauth/instrumentation"
	"github.com/mintfolio/xauth/internal/util"
	"github.com/mintfolio/xauth/oauth1"
	"github.com/mintfolio/xauth/platform"
	"github.com/mintfolio/xauth/storage"
)

// DefaultCallTimeout bounds one dispatched call including any single refresh
// retry.
const DefaultCallTimeout = 30 * time.Second

// Scheme selects the authorization scheme for a dispatched request.
type Scheme int

const (
	// SchemeOAuth2 signs with the user's bearer access token.
	SchemeOAuth2 Scheme = iota

	// SchemeOAuth1 signs with application-level OAuth 1.0a credentials. Only
	// the legacy media endpoints still require it.
	SchemeOAuth1
)

func (s Scheme) String() string {
	switch s {
	case SchemeOAuth2:
		return "oauth2"
	case SchemeOAuth1:
		return "oauth1"
	default:
		return "unknown"
	}
}

// Result is a successful platform response.
type Result struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// TokenSource supplies valid bearer credentials per user. Implemented by
// auth.Refresher.
type TokenSource interface {
	EnsureValid(ctx context.Context, userID string) (*storage.Credential, error)
	ForceRefresh(ctx context.Context, userID string) (*storage.Credential, error)
}

// Dispatcher executes operations against the platform.
type Dispatcher struct {
	tokens  TokenSource
	client  platform.Client
	signer  *oauth1.Signer
	timeout time.Duration
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	instr   *instrumentation.Instrumentation
}

// Config configures a Dispatcher. Tokens and Client are required; Signer is
// required only when OAuth 1.0a operations will be dispatched.
type Config struct {
	Tokens TokenSource
	Client platform.Client
	Signer *oauth1.Signer

	// Timeout bounds each Call. Defaults to DefaultCallTimeout when zero.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Instr   *instrumentation.Instrumentation
}

// New creates a new dispatcher.
func New(cfg *Config) (*Dispatcher, error) {
	if cfg == nil || cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("platform client is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		tokens:  cfg.Tokens,
		client:  cfg.Client,
		signer:  cfg.Signer,
		timeout: timeout,
		logger:  logger,
		metrics: cfg.Metrics,
		instr:   cfg.Instr,
	}, nil
}

// Call dispatches one operation for the user. The response classification:
// 2xx returns a Result; 429 returns RateLimitedError carrying any
// Retry-After; a 401 under OAuth2 forces one refresh and retry before
// yielding ErrUnauthorized; anything else becomes PlatformError. Transport
// failures become NetworkError. Rate limited calls are never retried here.
func (d *Dispatcher) Call(ctx context.Context, userID string, op platform.Operation, body []byte, scheme Scheme) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := d.instr.StartSpan(ctx, "dispatch.call",
		attribute.String("operation", op.Name),
		attribute.String("scheme", scheme.String()),
	)
	defer span.End()

	start := time.Now()
	result, err := d.call(ctx, userID, op, body, scheme)

	statusCode := 0
	if result != nil {
		statusCode = result.StatusCode
	}
	d.metrics.RecordDispatch(ctx, op.Name, statusCode, time.Since(start))

	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanAttributes(span, attribute.Int("http.status_code", statusCode))
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

func (d *Dispatcher) call(ctx context.Context, userID string, op platform.Operation, body []byte, scheme Scheme) (*Result, error) {
	switch scheme {
	case SchemeOAuth1:
		return d.callOAuth1(ctx, op, body)
	case SchemeOAuth2:
		return d.callOAuth2(ctx, userID, op, body)
	default:
		return nil, fmt.Errorf("unknown authorization scheme %d", scheme)
	}
}

func (d *Dispatcher) callOAuth2(ctx context.Context, userID string, op platform.Operation, body []byte) (*Result, error) {
	cred, err := d.tokens.EnsureValid(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := d.roundTrip(ctx, op, body, func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+cred.Token.AccessToken)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return classify(op, resp, d.logger)
	}

	// The platform rejected a token we believed valid: revoked out of band or
	// expired under clock drift. One forced refresh, one retry.
	d.logger.Debug("Bearer token rejected, forcing refresh", "operation", op.Name)
	cred, err = d.tokens.ForceRefresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err = d.roundTrip(ctx, op, body, func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+cred.Token.AccessToken)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("request rejected after refresh: %w", auth.ErrUnauthorized)
	}
	return classify(op, resp, d.logger)
}

func (d *Dispatcher) callOAuth1(ctx context.Context, op platform.Operation, body []byte) (*Result, error) {
	if d.signer == nil {
		return nil, fmt.Errorf("no OAuth 1.0a credentials configured")
	}

	resp, err := d.roundTrip(ctx, op, body, d.signer.Sign)
	if err != nil {
		return nil, err
	}

	// OAuth 1.0a credentials are static application credentials; a refresh
	// retry cannot help.
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("signed request rejected: %w", auth.ErrUnauthorized)
	}
	return classify(op, resp, d.logger)
}

// roundTrip builds, authorizes, and executes one request. The authorize
// callback runs after headers are set and before the request leaves.
func (d *Dispatcher) roundTrip(ctx context.Context, op platform.Operation, body []byte, authorize func(*http.Request) error) (*response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, op.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if len(body) > 0 && op.ContentType != "" {
		req.Header.Set("Content-Type", op.ContentType)
	}

	if err := authorize(req); err != nil {
		return nil, fmt.Errorf("failed to authorize request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &auth.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &auth.NetworkError{Err: err}
	}

	return &response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header,
	}, nil
}

// response is a fully drained platform response, safe to inspect after the
// transport connection is released.
type response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// classify maps a drained response onto the error taxonomy.
func classify(op platform.Operation, resp *response, logger *slog.Logger) (*Result, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Result{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Header:     resp.Header,
		}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		logger.Debug("Platform rate limited request",
			"operation", op.Name, "retry_after", retryAfter)
		return nil, &auth.RateLimitedError{RetryAfter: retryAfter}

	default:
		logger.Debug("Platform returned error",
			"operation", op.Name,
			"status", resp.StatusCode,
			"body", util.SafeTruncate(string(resp.Body), 256))
		return nil, &auth.PlatformError{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}
}

// parseRetryAfter handles both Retry-After forms: delta seconds and an HTTP
// date. Absent or unparseable values yield zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
