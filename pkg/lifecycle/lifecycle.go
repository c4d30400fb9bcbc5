// Package lifecycle coordinates startup hooks, background workers and
// graceful shutdown for the systems hosted by one process.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdownTimeout reports shutdown hooks still running when the timeout
// expired.
var ErrShutdownTimeout = errors.New("shutdown timeout")

// Coordinator tracks two groups of goroutines. Startup hooks gate readiness;
// shutdown hooks and workers started with Go are awaited by Shutdown.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	starting sync.WaitGroup
	running  sync.WaitGroup
	ready    atomic.Bool
}

func New() *Coordinator {
	c := &Coordinator{}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Context is cancelled when Shutdown begins.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn now. Readiness waits for it.
func (c *Coordinator) OnStartup(fn func()) {
	c.starting.Go(fn)
}

// OnShutdown runs fn now and Shutdown waits for it to return. Hooks wait on
// <-Context().Done() before releasing their resources.
func (c *Coordinator) OnShutdown(fn func()) {
	c.running.Go(fn)
}

// Go runs a worker that must return once ctx is cancelled.
func (c *Coordinator) Go(fn func(ctx context.Context)) {
	c.running.Go(func() { fn(c.ctx) })
}

func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// WaitForStartup blocks until every startup hook has returned, then marks
// the process ready.
func (c *Coordinator) WaitForStartup() {
	c.starting.Wait()
	c.ready.Store(c.ctx.Err() == nil)
}

// Shutdown withdraws readiness, cancels Context and waits up to timeout for
// hooks and workers to finish.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.ready.Store(false)
	c.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.running.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: hooks still running after %s", ErrShutdownTimeout, timeout)
	}
}
