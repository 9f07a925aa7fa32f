// Package retry provides the single retry primitive used for both extraction
// and delivery: bounded attempts with a fixed delay between them.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy defines retry behavior
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `yaml:"max_retries" json:"max_retries" mapstructure:"max_retries"`
	// RetryInterval is the fixed delay between attempts
	RetryInterval time.Duration `yaml:"retry_interval" json:"retry_interval" mapstructure:"retry_interval"`
	// FailOnError aborts on the first failure instead of retrying
	FailOnError bool `yaml:"fail_on_error" json:"fail_on_error" mapstructure:"fail_on_error"`
}

// AttemptFailure is notified of every failed attempt (1-based) before the
// executor decides whether to continue.
type AttemptFailure func(attempt int, err error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs operations under a Policy
type Executor struct {
	policy Policy
	sleep  Sleeper
}

// NewExecutor creates an executor for policy
func NewExecutor(policy Policy) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Executor{policy: policy, sleep: Sleep}
}

// WithSleeper returns a copy of the executor using s to wait between attempts
func (e *Executor) WithSleeper(s Sleeper) *Executor {
	clone := *e
	clone.sleep = s
	return &clone
}

// Policy returns the executor's policy
func (e *Executor) Policy() Policy {
	return e.policy
}

// Attempts returns the total number of attempts the policy allows
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Do runs op under the executor's policy.
//
// With FailOnError the first failure is returned immediately. Otherwise
// failures are swallowed until attempts run out, after which Do returns
// ok=false and a nil error: there is no result and the caller decides how to
// proceed. Context cancellation during a wait is always returned.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error), onFailure AttemptFailure) (T, bool, error) {
	var zero T
	attempts := e.policy.Attempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.policy.RetryInterval); err != nil {
				return zero, false, fmt.Errorf("retry cancelled: %w", err)
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, true, nil
		}

		if onFailure != nil {
			onFailure(attempt, err)
		}

		if e.policy.FailOnError {
			return zero, false, err
		}
	}

	return zero, false, nil
}

// Sleep waits for d with context cancellation
func Sleep(ctx context.Context, d time.Duration) error {
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

// DefaultPolicy returns the policy used when a pipeline declares none
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    0,
		RetryInterval: time.Second,
		FailOnError:   true,
	}
}
