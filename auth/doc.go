// Package auth implements the login and credential lifecycle: PKCE
// authorization, authorization code exchange, proactive token refresh with
// per-user coalescing, and the error taxonomy shared with dispatching.
package auth
