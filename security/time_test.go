package security

import (
	"testing"
	"time"
)

func TestNeedsRefresh(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		margin    time.Duration
		want      bool
	}{
		{
			name:      "well within lifetime",
			expiresAt: time.Now().Add(2 * time.Hour),
			margin:    60 * time.Second,
			want:      false,
		},
		{
			name:      "already expired",
			expiresAt: time.Now().Add(-1 * time.Minute),
			margin:    60 * time.Second,
			want:      true,
		},
		{
			name:      "inside the margin",
			expiresAt: time.Now().Add(30 * time.Second),
			margin:    60 * time.Second,
			want:      true,
		},
		{
			name:      "just outside the margin",
			expiresAt: time.Now().Add(60*time.Second + 500*time.Millisecond),
			margin:    60 * time.Second,
			want:      false,
		},
		{
			name:      "zero expiry never refreshes",
			expiresAt: time.Time{},
			margin:    60 * time.Second,
			want:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsRefresh(tc.expiresAt, tc.margin); got != tc.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNeedsRefreshBoundaryIsInclusive(t *testing.T) {
	margin := 60 * time.Second
	// Pin the boundary far enough out that the time between computing it and
	// checking it cannot flip the result.
	expiresAt := time.Now().Add(margin - 200*time.Millisecond)
	if !NeedsRefresh(expiresAt, margin) {
		t.Error("expected expiry at the margin boundary to need refresh")
	}
}

func TestIsExpiredWithGracePeriod(t *testing.T) {
	if IsExpiredWithGracePeriod(time.Now().Add(-1*time.Second), 5*time.Second) {
		t.Error("expected instant inside grace period to not be expired")
	}
	if !IsExpiredWithGracePeriod(time.Now().Add(-10*time.Second), 5*time.Second) {
		t.Error("expected instant past grace period to be expired")
	}
	if IsExpiredWithGracePeriod(time.Time{}, 5*time.Second) {
		t.Error("expected zero time to never expire")
	}
}
