package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTryGoRejectsWhenSaturated(t *testing.T) {
	g := NewGroup(1, testLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, g.TryGo("hold", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	err := g.TryGo("rejected", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrSaturated)

	close(release)
	require.NoError(t, g.Shutdown(context.Background()))
}

func TestGoBlocksUntilSlotFrees(t *testing.T) {
	g := NewGroup(1, testLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, g.TryGo("hold", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	var ran atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	err := g.Go(context.Background(), "queued", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, g.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}

func TestShutdownDrainsInFlightTasks(t *testing.T) {
	g := NewGroup(2, testLogger())

	var completed atomic.Int32
	for i := 0; i < 2; i++ {
		require.NoError(t, g.TryGo("work", func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			completed.Add(1)
			return nil
		}))
	}

	require.NoError(t, g.Shutdown(context.Background()))
	assert.Equal(t, int32(2), completed.Load())

	err := g.TryGo("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownCancelsAfterDeadline(t *testing.T) {
	g := NewGroup(1, testLogger())

	sawCancel := make(chan struct{})
	require.NoError(t, g.TryGo("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		close(sawCancel)
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-sawCancel:
	case <-time.After(time.Second):
		t.Fatal("task never observed cancellation")
	}
}

func TestTaskErrorsAreContained(t *testing.T) {
	g := NewGroup(2, testLogger())

	require.NoError(t, g.TryGo("failing", func(ctx context.Context) error {
		return errors.New("provider unavailable")
	}))
	require.NoError(t, g.TryGo("healthy", func(ctx context.Context) error { return nil }))

	require.NoError(t, g.Shutdown(context.Background()))
}
