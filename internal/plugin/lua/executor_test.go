package lua

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func startExecutor(t *testing.T, s *State) *Executor {
	t.Helper()
	exec := NewExecutor(s, 8)
	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx)
	t.Cleanup(func() {
		exec.Close()
		cancel()
		exec.Wait()
	})
	return exec
}

func TestExecutorExecute(t *testing.T) {
	s := newTestState(t)
	exec := startExecutor(t, s)
	ctx := context.Background()

	err := exec.Execute(ctx, func(ctx context.Context, s *State) error {
		return s.DoString(ctx, "counter = 41 + 1")
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var got lua.LValue
	err = exec.Execute(ctx, func(ctx context.Context, s *State) error {
		got = s.L.GetGlobal("counter")
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != lua.LNumber(42) {
		t.Errorf("counter = %v, want 42", got)
	}
}

func TestExecutorSerializes(t *testing.T) {
	s := newTestState(t)
	exec := startExecutor(t, s)
	ctx := context.Background()

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Execute(ctx, func(ctx context.Context, s *State) error {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Errorf("max concurrent jobs = %d, want 1", maxRunning)
	}
}

func TestExecutorTimeoutInterruptsScript(t *testing.T) {
	s := newTestState(t)
	exec := startExecutor(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := exec.Execute(ctx, func(ctx context.Context, s *State) error {
		return s.DoString(ctx, "while true do end")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want DeadlineExceeded", err)
	}

	// The loop was interrupted, so the executor accepts more work.
	done := make(chan error, 1)
	go func() {
		done <- exec.Execute(context.Background(), func(ctx context.Context, s *State) error {
			return nil
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Execute() after timeout error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor still blocked by interrupted script")
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	s := newTestState(t)
	exec := startExecutor(t, s)

	err := exec.Execute(context.Background(), func(ctx context.Context, s *State) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("Execute() error = nil after panic")
	}
}

func TestExecutorGo(t *testing.T) {
	s := newTestState(t)
	exec := startExecutor(t, s)

	errs := make(chan error, 1)
	err := exec.Go(func(ctx context.Context, s *State) error {
		return errors.New("async failure")
	}, func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("Go() error = %v", err)
	}

	select {
	case err := <-errs:
		if err == nil || err.Error() != "async failure" {
			t.Errorf("onErr got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onErr not called")
	}
}

func TestExecutorClosed(t *testing.T) {
	s := newTestState(t)
	exec := NewExecutor(s, 1)
	exec.Close()
	exec.Close()

	if !exec.IsClosed() {
		t.Error("IsClosed() = false")
	}
	err := exec.Execute(context.Background(), func(ctx context.Context, s *State) error { return nil })
	if !IsClosedErr(err) {
		t.Errorf("Execute() error = %v, want ErrExecutorClosed", err)
	}
	if err := exec.Go(func(ctx context.Context, s *State) error { return nil }, nil); !IsClosedErr(err) {
		t.Errorf("Go() error = %v, want ErrExecutorClosed", err)
	}
}
