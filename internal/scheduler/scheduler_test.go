package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunNow(t *testing.T) {
	s := New(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.Register("crawl", time.Hour, func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	runID, err := s.RunNow(context.Background(), "crawl")
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	require.Equal(t, int32(1), runs.Load())
}

func TestRunNow_UnknownJob(t *testing.T) {
	s := New(zap.NewNop())
	_, err := s.RunNow(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNow_PropagatesJobError(t *testing.T) {
	s := New(zap.NewNop())
	boom := errors.New("boom")
	require.NoError(t, s.Register("enrich", time.Hour, func(context.Context) error { return boom }))
	_, err := s.RunNow(context.Background(), "enrich")
	require.ErrorIs(t, err, boom)
}

func TestRunNow_SingleFlight(t *testing.T) {
	s := New(zap.NewNop())
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("crawl", time.Hour, func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "crawl")
		done <- err
	}()
	<-started

	_, err := s.RunNow(context.Background(), "crawl")
	require.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestRegister_Validation(t *testing.T) {
	s := New(zap.NewNop())
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Register("a", time.Second, noop))
	require.Error(t, s.Register("a", time.Second, noop))
	require.Error(t, s.Register("b", 10*time.Millisecond, noop))
	require.Equal(t, []string{"a"}, s.Jobs())
}

func TestStartStop_FiresOnInterval(t *testing.T) {
	s := New(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.Register("tick", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestStop_WaitsForRunsAndRefusesNewOnes(t *testing.T) {
	s := New(zap.NewNop())
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Register("enrich", time.Hour, func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}))

	go func() { _, _ = s.RunNow(context.Background(), "enrich") }()
	<-started

	var stopped atomic.Bool
	go func() {
		s.Stop()
		stopped.Store(true)
	}()
	require.Eventually(t, func() bool {
		_, err := s.RunNow(context.Background(), "enrich")
		return errors.Is(err, ErrStopped)
	}, time.Second, 5*time.Millisecond)
	require.False(t, stopped.Load())

	close(release)
	require.Eventually(t, stopped.Load, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), runs.Load())
}
