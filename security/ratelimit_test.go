package security

import "testing"

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("expected request %d within burst to be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("expected request beyond burst to be denied")
	}
}

func TestRateLimiterIsolatesIdentifiers(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") {
		t.Fatal("expected first identifier to be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("expected first identifier to be throttled")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("expected second identifier to have its own bucket")
	}
	if rl.ActiveLimiters() != 2 {
		t.Errorf("expected 2 active limiters, got %d", rl.ActiveLimiters())
	}
}

func TestRateLimiterEvictsAtCapacity(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.maxEntries = 5
	defer rl.Stop()

	for i := 0; i < 10; i++ {
		rl.Allow(string(rune('a' + i)))
	}
	if got := rl.ActiveLimiters(); got > 5 {
		t.Errorf("expected at most 5 active limiters, got %d", got)
	}
}
