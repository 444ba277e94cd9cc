package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Retry = %v after %d calls; want nil after 3", err, calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), "broken", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Errorf("Retry = %v after %d calls", err, calls)
	}
}

func TestRetry_Permanent(t *testing.T) {
	boom := errors.New("bad credentials")
	calls := 0
	err := Retry(context.Background(), "login", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		calls++
		return Permanent(boom)
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("Retry = %v after %d calls; want one attempt", err, calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry = %v; want context.Canceled", err)
	}
}

func TestComputeDelay_Capped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10, JitterFraction: 0.1}
	if d := computeDelay(5, cfg); d != 3*time.Second {
		t.Errorf("delay = %v; want the 3s cap", d)
	}
}

func TestBreaker(t *testing.T) {
	var transitions []string
	b := NewBreaker("test", BreakerConfig{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }
	fail := func() error { return errors.New("down") }

	b.Do(fail)
	if b.State() != StateClosed {
		t.Fatalf("state after one failure = %v", b.State())
	}
	b.Do(fail)
	if b.State() != StateOpen {
		t.Fatalf("state after threshold = %v", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker let a call through: err=%v called=%v", err, called)
	}

	now = now.Add(time.Minute)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("call after cooldown: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state after successful call = %v; want closed", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if !slices.Equal(transitions, want) {
		t.Errorf("transitions = %v; want %v", transitions, want)
	}
}

func TestBreaker_HalfOpen(t *testing.T) {
	b := NewBreaker("half-open", BreakerConfig{FailureThreshold: 3, Cooldown: time.Second})
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		b.Do(func() error { return errors.New("down") })
	}
	now = now.Add(time.Second)

	err := b.Do(func() error {
		if err := b.Do(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("second call during the trial call = %v; want ErrCircuitOpen", err)
		}
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("failed trial call error was swallowed")
	}
	if b.State() != StateOpen {
		t.Errorf("state after failed trial call = %v; want open", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	changes := 0
	b := NewBreaker("reset", BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Hour,
		OnStateChange:    func(from, to State) { changes++ },
	})
	b.Do(func() error { return errors.New("down") })
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state after Reset = %v", b.State())
	}
	b.Reset()
	if changes != 2 {
		t.Errorf("state changes = %d; want 2", changes)
	}
}

func TestWithin(t *testing.T) {
	cases := []struct {
		name  string
		ctx   func() context.Context
		fn    func(ctx context.Context) error
		check func(error) bool
	}{
		{
			name:  "fast",
			ctx:   context.Background,
			fn:    func(ctx context.Context) error { return nil },
			check: func(err error) bool { return err == nil },
		},
		{
			name: "honours context",
			ctx:  context.Background,
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			check: isDeadline,
		},
		{
			name: "ignores context",
			ctx:  context.Background,
			fn: func(ctx context.Context) error {
				time.Sleep(200 * time.Millisecond)
				return nil
			},
			check: isDeadline,
		},
		{
			name: "wrapped deadline",
			ctx:  context.Background,
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				return fmt.Errorf("dial: %w", ctx.Err())
			},
			check: isDeadline,
		},
		{
			name: "parent cancelled",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			check: func(err error) bool { return errors.Is(err, context.Canceled) },
		},
		{
			name:  "plain error",
			ctx:   context.Background,
			fn:    func(ctx context.Context) error { return errors.New("refused") },
			check: func(err error) bool { return err != nil && err.Error() == "ping: refused" },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Within(tc.ctx(), "ping", 10*time.Millisecond, tc.fn)
			if !tc.check(err) {
				t.Errorf("Within = %v", err)
			}
		})
	}
}

func isDeadline(err error) bool {
	var de *DeadlineError
	return errors.As(err, &de) && de.Op == "ping" && errors.Is(err, context.DeadlineExceeded)
}
