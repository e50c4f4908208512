// Package util holds small helpers shared across packages.
package util

// SafeTruncate returns s cut to at most max bytes, with an ellipsis marker
// when anything was cut. Used to keep untrusted response bodies out of logs
// at full length.
func SafeTruncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
