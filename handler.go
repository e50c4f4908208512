package xauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/mintfolio/xauth/auth"
)

// SessionBinder attaches a freshly minted user identifier to the host
// application's session, typically by setting a session cookie. It runs
// after a login completes and before the success redirect.
type SessionBinder interface {
	BindUser(w http.ResponseWriter, r *http.Request, userID string) error
}

// SessionBinderFunc adapts a function to the SessionBinder interface.
type SessionBinderFunc func(w http.ResponseWriter, r *http.Request, userID string) error

// BindUser implements SessionBinder.
func (f SessionBinderFunc) BindUser(w http.ResponseWriter, r *http.Request, userID string) error {
	return f(w, r, userID)
}

// Handler serves the login endpoints over HTTP.
type Handler struct {
	auth     *Auth
	sessions SessionBinder
	logger   *slog.Logger
}

// NewHandler creates an HTTP handler for the wired subsystem.
func NewHandler(a *Auth, sessions SessionBinder) (*Handler, error) {
	if a == nil {
		return nil, fmt.Errorf("auth subsystem is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session binder is required")
	}
	if a.config.HTTP.SuccessRedirectURL == "" {
		return nil, fmt.Errorf("success redirect URL is required")
	}
	return &Handler{
		auth:     a,
		sessions: sessions,
		logger:   a.logger,
	}, nil
}

// ServeBeginLogin initiates a login and redirects the user to the platform
// authorization URL.
func (h *Handler) ServeBeginLogin(w http.ResponseWriter, r *http.Request) {
	ip := h.clientIP(r)

	if !h.allow(ip) {
		h.auth.auditor.LogRateLimitExceeded(ip)
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	authz, err := h.auth.Service.BeginLogin(r.Context())
	if err != nil {
		h.logger.Error("Failed to begin login", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to begin login")
		return
	}

	h.auth.auditor.LogLoginStarted(ip)

	http.Redirect(w, r, authz.AuthURL, http.StatusFound)
}

// ServeCallback completes a login from the platform redirect. The state is
// validated before anything else; replayed or unknown states fail without a
// platform round trip.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ip := h.clientIP(r)
	query := r.URL.Query()

	// The platform reports user denial and its own failures via an error
	// parameter instead of a code.
	if errCode := query.Get("error"); errCode != "" {
		h.logger.Info("Login denied at platform", "error", errCode)
		writeError(w, http.StatusBadRequest, "access_denied", "authorization was not granted")
		return
	}

	userID, cred, err := h.auth.Service.CompleteLogin(r.Context(), query.Get("state"), query.Get("code"))
	if err != nil {
		h.writeCompleteLoginError(w, ip, err)
		return
	}

	h.auth.auditor.LogLoginCompleted(userID, ip, cred.Scopes)

	if err := h.sessions.BindUser(w, r, userID); err != nil {
		h.logger.Error("Failed to bind user session", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to establish session")
		return
	}

	http.Redirect(w, r, h.auth.config.HTTP.SuccessRedirectURL, http.StatusFound)
}

func (h *Handler) writeCompleteLoginError(w http.ResponseWriter, ip string, err error) {
	switch {
	case errors.Is(err, auth.ErrStateMismatch):
		h.auth.auditor.LogStateMismatch(ip)
		writeError(w, http.StatusBadRequest, "state_mismatch", "login request could not be validated")
	case errors.Is(err, auth.ErrInvalidGrant):
		writeError(w, http.StatusBadRequest, "invalid_grant", "authorization code was rejected")
	default:
		h.logger.Error("Failed to complete login", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to complete login")
	}
}

func (h *Handler) allow(ip string) bool {
	if h.auth.limiter == nil {
		return true
	}
	return h.auth.limiter.Allow(ip)
}

// clientIP extracts the client IP, honoring X-Forwarded-For only when the
// deployment says a trusted proxy sets it.
func (h *Handler) clientIP(r *http.Request) string {
	if h.auth.config.HTTP.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			// First address is the original client.
			if idx := strings.IndexByte(fwd, ','); idx >= 0 {
				fwd = fwd[:idx]
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": message,
	})
}
