// Package security provides security primitives for the xauth library:
// credential expiry checks, cryptographically random flow secrets,
// encryption at rest, per-identifier rate limiting, and audit logging.
package security
