package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoRecordsFirstErrorAndPanics(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("fails", func(context.Context) error { return errors.New("bind: address in use") })
	s.Go("panics", func(context.Context) error { panic("nil deref") })
	s.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Stop(ctx)
	require.Error(t, err)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "fails", snap[0].Name)
	require.Equal(t, 1, snap[1].Panics)
	for _, ts := range snap {
		require.False(t, ts.Running)
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("boom", func(context.Context) error { return errors.New("boom") })
	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
	require.ErrorContains(t, s.Wait(context.Background()), "boom")
}

func TestGoRestart(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("watch", time.Millisecond, 4*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("watcher closed")
		}
		return nil
	})
	require.NoError(t, s.Wait(context.Background()))
	require.Equal(t, int32(3), runs.Load())
	snap := s.Snapshot()
	require.Equal(t, 2, snap[0].Restarts)
}

func TestWaitTimeout(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	block := make(chan struct{})
	defer close(block)
	s.Go("stuck", func(context.Context) error { <-block; return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
