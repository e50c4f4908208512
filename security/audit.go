package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. User
// identifiers are hashed before logging so audit trails can be correlated
// without exposing them.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	UserID    string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginStarted logs the start of a login attempt.
func (a *Auditor) LogLoginStarted(ipAddress string) {
	a.LogEvent(Event{
		Type:      "login_started",
		IPAddress: ipAddress,
	})
}

// LogLoginCompleted logs a successful login completion.
func (a *Auditor) LogLoginCompleted(userID, ipAddress string, scopes []string) {
	a.LogEvent(Event{
		Type:      "login_completed",
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scopes": scopes,
		},
	})
}

// LogStateMismatch logs a rejected callback. The reason is deliberately not
// broken down further; the audit trail must not reveal which part of the
// state check failed.
func (a *Auditor) LogStateMismatch(ipAddress string) {
	a.LogEvent(Event{
		Type:      "state_mismatch",
		IPAddress: ipAddress,
	})
}

// LogTokenRefreshed logs a credential refresh.
func (a *Auditor) LogTokenRefreshed(userID string, rotated bool) {
	a.LogEvent(Event{
		Type:   "token_refreshed",
		UserID: userID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogReauthorizationRequired logs that a user's refresh token was rejected
// and their stored credential discarded.
func (a *Auditor) LogReauthorizationRequired(userID, reason string) {
	a.LogEvent(Event{
		Type:   "reauthorization_required",
		UserID: userID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
