package extract

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ts4z/trz/varz"
)

var (
	attemptsCounter = varz.NewInt("attempts")
	retriesCounter  = varz.NewInt("retries")
)

// Policy controls how rate-limited upstream calls are retried.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Jitter      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Base:        time.Second,
		Cap:         time.Minute,
		Jitter:      250 * time.Millisecond,
	}
}

// Retryable reports whether err looks like a rate limit or quota error.
// Nothing else is worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.Status == 429 || ue.Code == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

func suggestedDelay(err error) time.Duration {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.RetryAfter
	}
	return 0
}

// Do calls fn until it succeeds, returns a non-retryable error, or runs
// out of attempts.  The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	exp := retry.NewExponential(base)
	if p.Cap > 0 {
		exp = retry.WithCappedDuration(p.Cap, exp)
	}

	var suggested time.Duration
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := exp.Next()
		if stop {
			return 0, true
		}
		if suggested > 0 {
			d = suggested
		}
		if p.Jitter > 0 {
			d += rand.N(p.Jitter)
		}
		return d, false
	})
	backoff := retry.WithMaxRetries(uint64(max(1, p.MaxAttempts)-1), next)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptsCounter.Add(1)
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		suggested = suggestedDelay(err)
		retriesCounter.Add(1)
		return retry.RetryableError(err)
	})
}
