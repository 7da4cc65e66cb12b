package utils

import (
	"net/http"
	"sync"
	"testing"
	"time"
)

func quotaHeader(limit, remaining, reset string) http.Header {
	h := http.Header{}
	if limit != "" {
		h.Set("x-ratelimit-limit", limit)
	}
	if remaining != "" {
		h.Set("x-ratelimit-remaining", remaining)
	}
	if reset != "" {
		h.Set("x-ratelimit-reset", reset)
	}
	return h
}

// TestRateLimitTracker_Defaults checks the state before any response is seen
func TestRateLimitTracker_Defaults(t *testing.T) {
	tracker := NewRateLimitTracker()

	if tracker.HasData() {
		t.Error("new tracker should have no data")
	}
	if tracker.IsRateLimited() {
		t.Error("new tracker must not report rate limited")
	}
	if tracker.Limit() != 0 || tracker.Remaining() != 0 || tracker.Reset() != 0 {
		t.Errorf("new tracker should be all zero, got %+v", tracker.Snapshot())
	}
	if !tracker.ResetTime().Equal(time.Unix(0, 0)) {
		t.Errorf("ResetTime() = %v, want epoch", tracker.ResetTime())
	}
	if tracker.ResetTime().Location() != time.UTC {
		t.Error("ResetTime() should be UTC")
	}
}

// TestRateLimitTracker_Update covers the all-or-nothing update rule
func TestRateLimitTracker_Update(t *testing.T) {
	tests := []struct {
		name    string
		header  http.Header
		updated bool
	}{
		{"all_present", quotaHeader("240", "239", "1700000000"), true},
		{"padded_values", quotaHeader(" 240", "239 ", "1700000000"), true},
		{"missing_limit", quotaHeader("", "239", "1700000000"), false},
		{"missing_remaining", quotaHeader("240", "", "1700000000"), false},
		{"missing_reset", quotaHeader("240", "239", ""), false},
		{"non_integer_limit", quotaHeader("lots", "239", "1700000000"), false},
		{"float_reset", quotaHeader("240", "239", "1700000000.5"), false},
		{"no_headers", http.Header{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewRateLimitTracker()
			if got := tracker.Update(tt.header); got != tt.updated {
				t.Fatalf("Update() = %v, want %v", got, tt.updated)
			}
			if tracker.HasData() != tt.updated {
				t.Errorf("HasData() = %v, want %v", tracker.HasData(), tt.updated)
			}
			if tt.updated {
				if tracker.Limit() != 240 || tracker.Remaining() != 239 || tracker.Reset() != 1700000000 {
					t.Errorf("unexpected state %+v", tracker.Snapshot())
				}
			}
		})
	}
}

// TestRateLimitTracker_PartialUpdateKeepsState checks that bad headers never clobber good data
func TestRateLimitTracker_PartialUpdateKeepsState(t *testing.T) {
	tracker := NewRateLimitTracker()
	if !tracker.Update(quotaHeader("100", "5", "2000")) {
		t.Fatal("initial update should succeed")
	}

	before := tracker.Snapshot()
	for _, h := range []http.Header{
		quotaHeader("100", "", "2000"),
		quotaHeader("100", "x", "2000"),
		{},
	} {
		if tracker.Update(h) {
			t.Errorf("Update(%v) should fail", h)
		}
		if tracker.Snapshot() != before {
			t.Errorf("state changed from %+v to %+v", before, tracker.Snapshot())
		}
	}
	if !tracker.HasData() {
		t.Error("HasData must not regress to false")
	}
}

func TestRateLimitTracker_IsRateLimited(t *testing.T) {
	tests := []struct {
		remaining string
		limited   bool
	}{
		{"0", true},
		{"1", false},
		{"120", false},
	}

	for _, tt := range tests {
		t.Run(tt.remaining, func(t *testing.T) {
			tracker := NewRateLimitTracker()
			tracker.Update(quotaHeader("240", tt.remaining, "1700000000"))
			if tracker.IsRateLimited() != tt.limited {
				t.Errorf("IsRateLimited() = %v, want %v", tracker.IsRateLimited(), tt.limited)
			}
		})
	}
}

func TestRateLimitTracker_SecondsUntilReset(t *testing.T) {
	now := time.Unix(1000, 0)
	tracker := NewRateLimitTrackerWithClock(func() time.Time { return now })

	if got := tracker.SecondsUntilReset(); got != 0 {
		t.Errorf("SecondsUntilReset() with reset in the past = %v, want 0", got)
	}

	tracker.Update(quotaHeader("240", "10", "1030"))
	if got := tracker.SecondsUntilReset(); got != 30 {
		t.Errorf("SecondsUntilReset() = %v, want 30", got)
	}

	now = time.Unix(1100, 0)
	if got := tracker.SecondsUntilReset(); got != 0 {
		t.Errorf("SecondsUntilReset() after reset = %v, want 0", got)
	}
}

func TestRetryDelay(t *testing.T) {
	now := time.Unix(1000, 0)

	tests := []struct {
		name  string
		reset string
		delay time.Duration
		ok    bool
	}{
		{"future_reset", "1002", 2500 * time.Millisecond, true},
		{"reset_now", "1000", 500 * time.Millisecond, true},
		{"reset_past", "990", 0, true},
		{"missing", "", 0, false},
		{"malformed", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, ok := RetryDelay(quotaHeader("", "", tt.reset), now)
			if ok != tt.ok || delay != tt.delay {
				t.Errorf("RetryDelay() = (%v, %v), want (%v, %v)", delay, ok, tt.delay, tt.ok)
			}
		})
	}
}

// TestRateLimitTracker_ConcurrentAccess runs readers alongside the writer
func TestRateLimitTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewRateLimitTracker()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tracker.Update(quotaHeader("240", "100", "1700000000"))
		}()
		go func() {
			defer wg.Done()
			_ = tracker.IsRateLimited()
			_ = tracker.SecondsUntilReset()
		}()
	}
	wg.Wait()

	if !tracker.HasData() {
		t.Error("tracker should have data after concurrent updates")
	}
}
