package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Executor runs operations under a Policy
type Executor struct {
	policy *Policy
}

// NewExecutor creates a new Executor. A nil policy means NewPolicy().
func NewExecutor(policy *Policy) *Executor {
	if policy == nil {
		policy = NewPolicy()
	}
	return &Executor{policy: policy}
}

// Policy returns the policy the executor was built with
func (e *Executor) Policy() *Policy {
	return e.policy
}

// Execute calls operation until it succeeds, the attempts are exhausted, ctx
// is done or the policy rejects the error. The last operation error is returned.
func (e *Executor) Execute(ctx context.Context, operation func() error) error {
	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if !e.policy.ShouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, e.backOff(ctx))
}

func (e *Executor) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.policy.InitialInterval
	exp.Multiplier = e.policy.BackoffCoefficient
	exp.MaxInterval = e.policy.MaximumInterval
	// attempts bound the loop, not wall time
	exp.MaxElapsedTime = 0

	retries := uint64(0)
	if e.policy.MaximumAttempts > 1 {
		retries = uint64(e.policy.MaximumAttempts - 1)
	}

	return backoff.WithContext(backoff.WithMaxRetries(exp, retries), ctx)
}
