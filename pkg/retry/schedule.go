package retry

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/fivetwenty-io/restkit/internal/constants"
	"github.com/fivetwenty-io/restkit/pkg/category"
)

// Attempt describes the retry about to be scheduled.
type Attempt struct {
	// Number is 1 for the first retry, 2 for the second, and so on.
	Number int
	// Err is the failure that triggered this retry.
	Err error
}

// Schedule returns the wait before the retry described by a, or false to stop.
type Schedule func(a Attempt) (time.Duration, bool)

// RetryAfterer is implemented by failures that advertise how long to wait.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Constant waits d before every retry.
func Constant(d time.Duration) Schedule {
	return func(Attempt) (time.Duration, bool) {
		return d, true
	}
}

// Exponential waits base, 2×base, 4×base, ... saturating instead of overflowing.
func Exponential(base time.Duration) Schedule {
	return func(a Attempt) (time.Duration, bool) {
		exponent := max(a.Number-1, 0)

		return saturate(float64(base) * math.Pow(constants.ExponentialBackoffBase, float64(exponent))), true
	}
}

// WithCap limits every delay of s to ceiling.
func WithCap(ceiling time.Duration, s Schedule) Schedule {
	return func(a Attempt) (time.Duration, bool) {
		delay, ok := s(a)

		return min(delay, ceiling), ok
	}
}

// WithFloor raises every delay of s to at least floor.
func WithFloor(floor time.Duration, s Schedule) Schedule {
	return func(a Attempt) (time.Duration, bool) {
		delay, ok := s(a)

		return max(delay, floor), ok
	}
}

// WithThrottleFloor raises the delay to at least floor when the failure is a
// throttling failure, including on the very first retry.
func WithThrottleFloor(floor time.Duration, s Schedule) Schedule {
	return func(a Attempt) (time.Duration, bool) {
		delay, ok := s(a)
		if ok && category.Has(a.Err, category.Throttling) {
			delay = max(delay, floor)
		}

		return delay, ok
	}
}

// WithRetryAfter waits at least as long as the failure's advertised
// RetryAfter, when it has one.
func WithRetryAfter(s Schedule) Schedule {
	return func(a Attempt) (time.Duration, bool) {
		delay, ok := s(a)

		var hinted RetryAfterer
		if ok && errors.As(a.Err, &hinted) {
			delay = max(delay, hinted.RetryAfter())
		}

		return delay, ok
	}
}

// WithJitter perturbs each delay uniformly within ±factor of its value.
// factor is clamped to [0, 1].
func WithJitter(factor float64, s Schedule) Schedule {
	factor = min(max(factor, 0), 1)

	return func(a Attempt) (time.Duration, bool) {
		delay, ok := s(a)
		if !ok || delay <= 0 || factor == 0 {
			return delay, ok
		}

		scale := 1 + factor*(2*rand.Float64()-1)

		return saturate(float64(delay) * scale), ok
	}
}

// WithMaxRetries stops after n retries, that is n+1 attempts in total.
func WithMaxRetries(n int, s Schedule) Schedule {
	return func(a Attempt) (time.Duration, bool) {
		if a.Number > n {
			return 0, false
		}

		return s(a)
	}
}

// saturate converts a float delay to a Duration, clamping at the int64 range.
func saturate(delay float64) time.Duration {
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(delay)
}
