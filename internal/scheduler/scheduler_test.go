package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type tickerFunc func(ctx context.Context) (engine.TickReport, error)

func (f tickerFunc) Tick(ctx context.Context) (engine.TickReport, error) { return f(ctx) }

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(tickerFunc(nil), Config{Spec: "every tuesday"}, nil)
	assert.Error(t, err)
}

func TestScheduler_FiresTicks(t *testing.T) {
	var mu sync.Mutex
	var reports []engine.TickReport
	s, err := New(tickerFunc(func(context.Context) (engine.TickReport, error) {
		return engine.TickReport{TickID: "t"}, nil
	}), Config{Spec: "@every 1s"}, func(r engine.TickReport, err error) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	assert.False(t, s.Next().IsZero())
	require.Eventually(t, func() bool { return s.Runs() >= 1 }, 3*time.Second, 20*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "t", reports[0].TickID)
}

func TestScheduler_StopCancelsInFlightTick(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var gotErr error
	s, err := New(tickerFunc(func(ctx context.Context) (engine.TickReport, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return engine.TickReport{}, ctx.Err()
	}), Config{Spec: "@every 1s"}, func(_ engine.TickReport, err error) { gotErr = err })
	require.NoError(t, err)
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("tick never started")
	}
	s.Stop()
	assert.ErrorIs(t, gotErr, context.Canceled)
	assert.Equal(t, int64(1), s.Runs())
}

func TestScheduler_TimeoutBoundsTick(t *testing.T) {
	done := make(chan error, 1)
	s, err := New(tickerFunc(func(ctx context.Context) (engine.TickReport, error) {
		<-ctx.Done()
		return engine.TickReport{}, ctx.Err()
	}), Config{Spec: "@every 1s", Timeout: 50 * time.Millisecond}, func(_ engine.TickReport, err error) {
		select {
		case done <- err:
		default:
		}
	})
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("tick never finished")
	}
}
