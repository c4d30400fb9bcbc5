package lifecycle_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/aura/pkg/lifecycle"
)

func TestReadiness(t *testing.T) {
	lc := lifecycle.New()
	assert.False(t, lc.Ready())

	var started atomic.Int32
	for range 3 {
		lc.OnStartup(func() { started.Add(1) })
	}

	lc.WaitForStartup()
	assert.True(t, lc.Ready())
	assert.Equal(t, int32(3), started.Load())

	require.NoError(t, lc.Shutdown(time.Second))
	assert.False(t, lc.Ready(), "shutdown clears readiness")
}

func TestShutdownRunsHooksAfterCancel(t *testing.T) {
	lc := lifecycle.New()

	var cleaned atomic.Bool
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		cleaned.Store(true)
	})
	lc.WaitForStartup()

	require.NoError(t, lc.Shutdown(5*time.Second))
	assert.True(t, cleaned.Load())
	assert.ErrorIs(t, lc.Context().Err(), context.Canceled)
}

func TestShutdownWaitsForBackgroundWork(t *testing.T) {
	lc := lifecycle.New()

	var drained atomic.Bool
	lc.Go(func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		drained.Store(true)
	})
	lc.WaitForStartup()

	require.NoError(t, lc.Shutdown(time.Second))
	assert.True(t, drained.Load())
}

func TestShutdownTimeout(t *testing.T) {
	lc := lifecycle.New()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		time.Sleep(500 * time.Millisecond)
	})
	lc.WaitForStartup()

	err := lc.Shutdown(50 * time.Millisecond)
	assert.ErrorIs(t, err, lifecycle.ErrShutdownTimeout)
}
