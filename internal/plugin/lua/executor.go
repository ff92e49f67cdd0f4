package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// job is a unit of work run on the executor goroutine.
type job struct {
	ctx    context.Context
	fn     func(ctx context.Context, s *State) error
	onErr  func(error)
	result chan error
}

// Executor owns a State and runs all work against it on one goroutine.
//
//	exec := lua.NewExecutor(state, 64)
//	go exec.Run(ctx)
//	defer exec.Close()
//
//	err := exec.Execute(ctx, func(ctx context.Context, s *lua.State) error {
//	    _, err := s.CallField(ctx, mod, "onPlay")
//	    return err
//	})
type Executor struct {
	state *State
	queue chan *job
	done  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewExecutor creates an executor for state. queueSize bounds the number of
// pending jobs; non-positive sizes use a default of 64.
func NewExecutor(state *State, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Executor{
		state:   state,
		queue:   make(chan *job, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run processes jobs until ctx is cancelled or Close is called.
// Pending jobs are failed with the reason the loop stopped.
func (e *Executor) Run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			e.drain(ctx.Err())
			return
		case <-e.done:
			e.drain(ErrExecutorClosed)
			return
		case j := <-e.queue:
			err := e.run(j)
			if err != nil && j.onErr != nil {
				j.onErr(err)
			}
			j.result <- err
		}
	}
}

func (e *Executor) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("lua panic: %w", rerr)
				return
			}
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx, e.state)
}

func (e *Executor) drain(err error) {
	for {
		select {
		case j := <-e.queue:
			j.result <- err
		default:
			return
		}
	}
}

// Execute runs fn on the executor goroutine and waits for it to finish.
//
// fn receives ctx; passing it to State.Call lets a cancelled ctx interrupt
// the running script. If ctx ends first, Execute returns ctx.Err() without
// waiting further.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context, s *State) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	j := &job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- j:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-j.result:
		return err
	}
}

// Go queues fn without waiting for it. onErr, if non-nil, receives a
// non-nil result on the executor goroutine.
func (e *Executor) Go(fn func(ctx context.Context, s *State) error, onErr func(error)) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	j := &job{ctx: context.Background(), fn: fn, onErr: onErr, result: make(chan error, 1)}

	select {
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the executor. It does not wait for the Run loop to exit;
// use Wait for that.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// Wait blocks until the Run loop has exited.
func (e *Executor) Wait() {
	<-e.stopped
}

// IsClosed returns true if Close has been called.
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}

// IsClosedErr reports whether err means the executor was closed.
func IsClosedErr(err error) bool {
	return errors.Is(err, ErrExecutorClosed)
}
