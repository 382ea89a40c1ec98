// Package retry repeats a failing action according to a Policy: a predicate
// deciding which failures are worth another attempt, and a Schedule deciding
// how long to wait before each retry and when to give up.
//
// Policies are plain values. Each call to Do starts with a fresh attempt
// counter, so one policy can be shared by any number of concurrent calls.
//
//	out, err := retry.Do(ctx, retry.Throttling(), func(ctx context.Context) (*Database, error) {
//	  return getDatabase.Call(ctx, client, in)
//	})
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/fivetwenty-io/restkit/internal/constants"
	"github.com/fivetwenty-io/restkit/pkg/category"
)

// Policy decides whether and when a failed action is attempted again.
type Policy struct {
	// ShouldRetry reports whether a failure may be retried. Nil never retries.
	ShouldRetry func(err error) bool
	// Schedule computes the wait before each retry. Nil never retries.
	Schedule Schedule
	// OnRetry, when set, is called before each wait.
	OnRetry func(a Attempt, delay time.Duration)
}

// New returns a policy retrying failures accepted by shouldRetry on schedule.
func New(shouldRetry func(error) bool, schedule Schedule) *Policy {
	return &Policy{ShouldRetry: shouldRetry, Schedule: schedule}
}

// WithOnRetry returns a copy of p that calls fn before each wait.
func (p *Policy) WithOnRetry(fn func(a Attempt, delay time.Duration)) *Policy {
	clone := *p
	clone.OnRetry = fn

	return &clone
}

// Default retries transient failures with jittered exponential backoff from
// a short base, waits at least 500ms after a throttling failure, and gives up
// after a bounded number of retries.
func Default() *Policy {
	return New(category.IsTransient, DefaultSchedule(constants.DefaultRetryMax))
}

// DefaultSchedule is the schedule of Default with a configurable retry budget.
func DefaultSchedule(maxRetries int) Schedule {
	return WithMaxRetries(maxRetries,
		WithThrottleFloor(constants.ThrottlingRetryFloor,
			WithRetryAfter(
				WithCap(constants.DefaultRetryWaitMax,
					WithJitter(constants.DefaultJitterFactor,
						Exponential(constants.DefaultRetryBase))))))
}

// Throttling retries throttling failures only, without an attempt limit.
func Throttling() *Policy {
	return New(func(err error) bool {
		return category.Has(err, category.Throttling)
	}, unboundedSchedule())
}

// Transient retries any transient failure, without an attempt limit.
func Transient() *Policy {
	return New(category.IsTransient, unboundedSchedule())
}

// Never performs a single attempt.
func Never() *Policy {
	return New(func(error) bool { return false }, nil)
}

func unboundedSchedule() Schedule {
	return WithThrottleFloor(constants.ThrottlingRetryFloor,
		WithRetryAfter(
			WithCap(constants.ExtendedRetryWaitMax,
				WithJitter(constants.DefaultJitterFactor,
					Exponential(constants.DefaultRetryBase)))))
}

// Do runs action until it succeeds, the policy declines a failure, or the
// schedule stops. The last failure is returned unchanged. Cancelling ctx
// interrupts a pending wait and returns ctx.Err(). A nil policy uses Default.
func Do[T any](ctx context.Context, policy *Policy, action func(ctx context.Context) (T, error)) (T, error) {
	if policy == nil {
		policy = Default()
	}

	var zero T

	for number := 1; ; number++ {
		value, err := action(ctx)
		if err == nil {
			return value, nil
		}

		if !policy.retryable(ctx, err) {
			return zero, err
		}

		attempt := Attempt{Number: number, Err: err}

		delay, ok := policy.Schedule(attempt)
		if !ok {
			return zero, err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay)
		}

		err = wait(ctx, delay)
		if err != nil {
			return zero, err
		}
	}
}

// Run is Do for actions without a result.
func Run(ctx context.Context, policy *Policy, action func(ctx context.Context) error) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})

	return err
}

func (p *Policy) retryable(ctx context.Context, err error) bool {
	if p.ShouldRetry == nil || p.Schedule == nil {
		return false
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}

	return p.ShouldRetry(err)
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
