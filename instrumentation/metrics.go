package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Refresh outcomes recorded on the token refresh counter.
const (
	RefreshOutcomeRefreshed      = "refreshed"
	RefreshOutcomeReauthRequired = "reauthorization_required"
	RefreshOutcomeError          = "error"
)

// Metrics holds the metric instruments for the subsystem. All recording
// methods are nil-safe.
type Metrics struct {
	meter metric.Meter

	loginsStarted   metric.Int64Counter
	loginsCompleted metric.Int64Counter
	loginsFailed    metric.Int64Counter
	tokenRefreshes  metric.Int64Counter

	dispatchRequests metric.Int64Counter
	dispatchDuration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error

	if m.loginsStarted, err = meter.Int64Counter(
		"xauth.logins.started",
		metric.WithDescription("Login attempts initiated"),
	); err != nil {
		return nil, err
	}

	if m.loginsCompleted, err = meter.Int64Counter(
		"xauth.logins.completed",
		metric.WithDescription("Logins completed successfully"),
	); err != nil {
		return nil, err
	}

	if m.loginsFailed, err = meter.Int64Counter(
		"xauth.logins.failed",
		metric.WithDescription("Logins that failed after initiation"),
	); err != nil {
		return nil, err
	}

	if m.tokenRefreshes, err = meter.Int64Counter(
		"xauth.token.refreshes",
		metric.WithDescription("Token refresh attempts by outcome"),
	); err != nil {
		return nil, err
	}

	if m.dispatchRequests, err = meter.Int64Counter(
		"xauth.dispatch.requests",
		metric.WithDescription("Platform requests dispatched"),
	); err != nil {
		return nil, err
	}

	if m.dispatchDuration, err = meter.Float64Histogram(
		"xauth.dispatch.duration",
		metric.WithDescription("Platform request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordLoginStarted increments the started-logins counter.
func (m *Metrics) RecordLoginStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.loginsStarted.Add(ctx, 1)
}

// RecordLoginCompleted increments the completed-logins counter.
func (m *Metrics) RecordLoginCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.loginsCompleted.Add(ctx, 1)
}

// RecordLoginFailed increments the failed-logins counter with the failure
// reason.
func (m *Metrics) RecordLoginFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.loginsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordTokenRefresh increments the refresh counter with its outcome.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordDispatch records one dispatched platform request with its operation,
// response status class, and duration.
func (m *Metrics) RecordDispatch(ctx context.Context, operation string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status_class", statusClass(statusCode)),
	)
	m.dispatchRequests.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RegisterStorageSizeCallbacks registers observable gauges backed by the
// given size functions.
func (m *Metrics) RegisterStorageSizeCallbacks(credentials, logins func() int64) error {
	if m == nil {
		return nil
	}

	if _, err := m.meter.Int64ObservableGauge(
		"xauth.storage.credentials",
		metric.WithDescription("Stored user credentials"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(credentials())
			return nil
		}),
	); err != nil {
		return fmt.Errorf("failed to register credentials gauge: %w", err)
	}

	if _, err := m.meter.Int64ObservableGauge(
		"xauth.storage.pending_logins",
		metric.WithDescription("Pending login attempts"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(logins())
			return nil
		}),
	); err != nil {
		return fmt.Errorf("failed to register pending logins gauge: %w", err)
	}

	return nil
}

func statusClass(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
