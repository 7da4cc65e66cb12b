package utils

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"irfetch/internal"
)

// Quota headers sent by the data API on most responses
const (
	HeaderRateLimitLimit     = "X-Ratelimit-Limit"
	HeaderRateLimitRemaining = "X-Ratelimit-Remaining"
	HeaderRateLimitReset     = "X-Ratelimit-Reset"
)

// resetGrace is added to the server-reported reset instant before retrying a 429
const resetGrace = 500 * time.Millisecond

// RateLimitTracker holds the last complete quota report seen from the service.
// Partial or malformed header sets never overwrite it.
type RateLimitTracker struct {
	mutex sync.RWMutex
	state internal.RateLimitState
	now   func() time.Time
}

// NewRateLimitTracker creates a tracker with no quota data
func NewRateLimitTracker() *RateLimitTracker {
	return NewRateLimitTrackerWithClock(time.Now)
}

// NewRateLimitTrackerWithClock creates a tracker that reads the current time from now
func NewRateLimitTrackerWithClock(now func() time.Time) *RateLimitTracker {
	if now == nil {
		now = time.Now
	}
	return &RateLimitTracker{now: now}
}

// Update overwrites the state when all three quota headers are present and
// integer-valued. It returns false and leaves the state untouched otherwise.
func (r *RateLimitTracker) Update(header http.Header) bool {
	limit, ok := headerInt(header, HeaderRateLimitLimit)
	if !ok {
		return false
	}
	remaining, ok := headerInt(header, HeaderRateLimitRemaining)
	if !ok {
		return false
	}
	reset, ok := headerInt(header, HeaderRateLimitReset)
	if !ok {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.state = internal.RateLimitState{
		Limit:     int(limit),
		Remaining: int(remaining),
		Reset:     reset,
		HasData:   true,
	}
	return true
}

// Snapshot returns a copy of the current state
func (r *RateLimitTracker) Snapshot() internal.RateLimitState {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.state
}

// Limit returns the quota size of the current window
func (r *RateLimitTracker) Limit() int {
	return r.Snapshot().Limit
}

// Remaining returns the requests left in the current window
func (r *RateLimitTracker) Remaining() int {
	return r.Snapshot().Remaining
}

// Reset returns the reset instant as epoch seconds
func (r *RateLimitTracker) Reset() int64 {
	return r.Snapshot().Reset
}

// ResetTime returns the reset instant in UTC
func (r *RateLimitTracker) ResetTime() time.Time {
	return r.Snapshot().ResetTime()
}

// SecondsUntilReset returns the time left until the window resets, never negative
func (r *RateLimitTracker) SecondsUntilReset() float64 {
	delta := r.ResetTime().Sub(r.now()).Seconds()
	if delta < 0 {
		return 0
	}
	return delta
}

// IsRateLimited reports whether the quota is known to be exhausted.
// A tracker without data is never rate limited; treat that as unknown.
func (r *RateLimitTracker) IsRateLimited() bool {
	return r.Snapshot().IsRateLimited()
}

// HasData reports whether any complete quota report has been seen
func (r *RateLimitTracker) HasData() bool {
	return r.Snapshot().HasData
}

// RetryDelay computes how long to wait after a 429 response: the reported
// reset instant minus now plus a 500ms grace. A non-positive result means
// retry immediately. ok is false when the reset header is missing or malformed.
func RetryDelay(header http.Header, now time.Time) (delay time.Duration, ok bool) {
	reset, ok := headerInt(header, HeaderRateLimitReset)
	if !ok {
		return 0, false
	}
	delay = time.Unix(reset, 0).Sub(now) + resetGrace
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

func headerInt(header http.Header, name string) (int64, bool) {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
