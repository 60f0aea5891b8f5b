package shutdown

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adrender/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.Discard()
}

func TestRegister(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	mgr.Register("test", func(ctx context.Context) error { return nil })

	if len(mgr.handlers) != 1 {
		t.Errorf("expected 1 handler, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "test" {
		t.Errorf("expected handler name 'test', got %s", mgr.handlers[0].Name)
	}
}

func TestRegisterSimple(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var called bool
	mgr.RegisterSimple("simple", func() { called = true })
	mgr.Shutdown()

	if !called {
		t.Error("expected simple handler to be called")
	}
}

func TestShutdown(t *testing.T) {
	t.Run("runs handlers in LIFO order", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 5*time.Second)

		var mu sync.Mutex
		var order []int
		for i := 1; i <= 3; i++ {
			mgr.Register("handler", func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}

		mgr.Shutdown()

		if !slices.Equal(order, []int{3, 2, 1}) {
			t.Errorf("expected [3 2 1], got %v", order)
		}
	})

	t.Run("handles handler errors gracefully", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 5*time.Second)

		var after bool
		mgr.RegisterSimple("after", func() { after = true })
		mgr.Register("failing", func(ctx context.Context) error { return context.DeadlineExceeded })

		mgr.Shutdown()
		if !after {
			t.Error("expected later handlers to run after a failure")
		}
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 5*time.Second)

		var calls atomic.Int32
		mgr.RegisterSimple("count", func() { calls.Add(1) })
		mgr.Shutdown()
		mgr.Shutdown()

		if calls.Load() != 1 {
			t.Errorf("expected one call, got %d", calls.Load())
		}
	})
}

func TestDone(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	select {
	case <-mgr.Done():
		t.Error("expected done channel to not be closed initially")
	default:
	}

	mgr.Shutdown()

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("expected done channel to be closed after shutdown")
	}
}

func TestContextCanceledBeforeHandlers(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	ctx := mgr.Context()

	select {
	case <-ctx.Done():
		t.Error("expected context to not be canceled initially")
	default:
	}

	var sawCanceled bool
	mgr.RegisterSimple("check", func() { sawCanceled = ctx.Err() != nil })
	mgr.Shutdown()

	if !sawCanceled {
		t.Error("expected context to be canceled when handlers run")
	}
}

func TestWaitWithContext(t *testing.T) {
	mgr := NewManager(newTestLogger(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	returned := make(chan struct{})
	go func() {
		mgr.WaitWithContext(ctx)
		close(returned)
	}()
	cancel()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("expected WaitWithContext to return after cancel")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(newTestLogger(), 100*time.Millisecond)

	mgr.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	start := time.Now()
	mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
}
