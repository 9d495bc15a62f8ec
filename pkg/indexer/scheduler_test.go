package indexer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_TicksUntilStopped(t *testing.T) {
	defer leaktest.Check(t)()

	var heads atomic.Int64
	src := &mockSource{
		BlockNumberFunc: func(context.Context) (uint64, error) {
			return uint64(100 + heads.Add(1)), nil
		},
	}
	mock := clock.NewMock()
	ix := New(Config{Interval: time.Minute}, []Network{testNetwork(t, "sepolia", src, contractA)},
		newMockWriter(), newMockCursors(), zap.NewNop(), WithClock(mock))

	ix.Start(context.Background())

	require.Eventually(t, ix.Ready, time.Second, 5*time.Millisecond, "first pass runs immediately")
	require.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return heads.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond, "ticks trigger further passes")

	ix.Stop()
	ix.Stop()

	seen := heads.Load()
	mock.Add(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, heads.Load(), "no pass after Stop")
}

func TestScheduler_StopsWithContext(t *testing.T) {
	defer leaktest.Check(t)()

	src := &mockSource{
		BlockNumberFunc: func(ctx context.Context) (uint64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}
	ix := New(Config{Interval: time.Minute}, []Network{testNetwork(t, "sepolia", src, contractA)},
		newMockWriter(), newMockCursors(), zap.NewNop(), WithClock(clock.NewMock()))

	ctx, cancel := context.WithCancel(context.Background())
	ix.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		ix.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the context ended")
	}
}
