package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeadlineError reports that an operation did not finish within its limit.
// It matches context.DeadlineExceeded under errors.Is.
type DeadlineError struct {
	Op    string
	Limit time.Duration
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("%s did not answer within %v", e.Op, e.Limit)
}

func (e *DeadlineError) Unwrap() error { return context.DeadlineExceeded }

// Within runs fn with a context that expires after limit and returns as soon
// as the limit passes, even if fn ignores its context. A deadline error that
// fn returns itself is reported as a *DeadlineError too, so callers see one
// error shape whichever side noticed first. A limit <= 0 runs fn unbounded.
func Within(ctx context.Context, op string, limit time.Duration, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(bounded)
	}()

	var err error
	select {
	case err = <-done:
	case <-bounded.Done():
		err = bounded.Err()
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &DeadlineError{Op: op, Limit: limit}
	}
	return fmt.Errorf("%s: %w", op, err)
}
