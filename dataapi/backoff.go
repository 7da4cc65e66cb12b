package dataapi

import (
	"context"
	"math"
	"net/http"
	"time"

	"irfetch/internal"
	"irfetch/utils"
)

// SleepFunc blocks for d or until ctx is done, whichever comes first
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff is the wait policy shared by login and resource resolution
type backoff struct {
	retry  *utils.RetryConfig
	sleep  SleepFunc
	now    func() time.Time
	logger *internal.SecureLogger
}

func newBackoff(retry *utils.RetryConfig, sleep SleepFunc, now func() time.Time, logger *internal.SecureLogger) *backoff {
	if retry == nil {
		retry = utils.DefaultRetryConfig()
	}
	if sleep == nil {
		sleep = sleepContext
	}
	if now == nil {
		now = time.Now
	}
	return &backoff{retry: retry, sleep: sleep, now: now, logger: logger}
}

// maxAttempts is the request budget per call, counting 401 relogins and 429 waits
func (b *backoff) maxAttempts() int {
	if b.retry.MaxAttempts < 1 {
		return 1
	}
	return b.retry.MaxAttempts
}

// rateLimitDelay uses the server-reported reset when present, exponential backoff otherwise
func (b *backoff) rateLimitDelay(header http.Header, attempt int) time.Duration {
	if delay, ok := utils.RetryDelay(header, b.now()); ok {
		return delay
	}
	return b.retry.CalculateDelay(attempt)
}

func (b *backoff) waitRateLimit(ctx context.Context, header http.Header, attempt int) error {
	delay := b.rateLimitDelay(header, attempt)
	b.log().Warn("Rate limited, waiting %.1f seconds (attempt %d/%d)", delay.Seconds(), attempt, b.maxAttempts())
	if delay <= 0 {
		return nil
	}
	return b.sleep(ctx, delay)
}

// retryAfterSeconds rounds the reported wait up to whole seconds for error reporting
func (b *backoff) retryAfterSeconds(header http.Header) int {
	delay, ok := utils.RetryDelay(header, b.now())
	if !ok {
		return 0
	}
	return int(math.Ceil(delay.Seconds()))
}

func (b *backoff) log() *internal.SecureLogger {
	if b.logger != nil {
		return b.logger
	}
	return internal.GetLogger()
}
