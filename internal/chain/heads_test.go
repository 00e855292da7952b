package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	errc chan error
}

func (s *fakeSub) Unsubscribe()      {}
func (s *fakeSub) Err() <-chan error { return s.errc }

// fakeHeads pushes the given block numbers, then fails the subscription.
type fakeHeads struct {
	blocks []int64
	err    error
}

func (f *fakeHeads) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSub{errc: make(chan error, 1)}
	go func() {
		for _, n := range f.blocks {
			ch <- &types.Header{Number: big.NewInt(n)}
			time.Sleep(20 * time.Millisecond)
		}
		s.errc <- errors.New("connection reset")
	}()
	return s, nil
}

func TestFollowHeads(t *testing.T) {
	t.Parallel()

	t.Run("delivers_heads_until_error", func(t *testing.T) {
		var got []int64
		seen, err := FollowHeads(context.Background(), &fakeHeads{blocks: []int64{1, 2, 3}}, func(_ context.Context, h *types.Header) {
			got = append(got, h.Number.Int64())
		})
		require.ErrorContains(t, err, "connection reset")
		assert.Equal(t, 3, seen)
		assert.Equal(t, []int64{1, 2, 3}, got)
	})

	t.Run("subscribe_error", func(t *testing.T) {
		_, err := FollowHeads(context.Background(), &fakeHeads{err: errors.New("no ws")}, func(context.Context, *types.Header) {})
		assert.ErrorContains(t, err, "no ws")
	})

	t.Run("context_cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sub := &fakeHeads{}
		_, err := FollowHeads(ctx, sub, func(context.Context, *types.Header) {})
		assert.Error(t, err)
	})
}

func TestHeadWatcherBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// dial refused, subscribe refused, two heads, then subscribe refused
	// until the watcher is stopped
	var dials, closes int
	w := headWatcher{
		dial: func(ctx context.Context, wsURL string) (HeadSubscriber, func(), error) {
			assert.Equal(t, "wss://base.example/ws", wsURL)
			dials++
			closer := func() { closes++ }
			switch dials {
			case 1:
				return nil, nil, errors.New("dial refused")
			case 3:
				return &fakeHeads{blocks: []int64{5, 6}}, closer, nil
			default:
				return &fakeHeads{err: errors.New("subscribe refused")}, closer, nil
			}
		},
		baseDelay: 100 * time.Millisecond,
		maxDelay:  300 * time.Millisecond,
	}
	var waits []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 6 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	var got []int64
	err := w.run(ctx, "wss://base.example/ws", func(_ context.Context, h *types.Header) {
		got = append(got, h.Number.Int64())
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{5, 6}, got)
	assert.Equal(t, 6, dials)
	assert.Equal(t, 5, closes)

	want := []time.Duration{100, 200, 100, 200, 300, 300}
	require.Len(t, waits, len(want))
	for i, base := range want {
		base *= time.Millisecond
		assert.GreaterOrEqual(t, waits[i], base*4/5, "wait %d", i)
		assert.LessOrEqual(t, waits[i], base*6/5, "wait %d", i)
	}
}

func TestHeadWatcherStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := headWatcher{
		dial: func(ctx context.Context, wsURL string) (HeadSubscriber, func(), error) {
			return nil, nil, ctx.Err()
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			t.Fatal("must not wait after cancel")
			return nil
		},
		baseDelay: time.Second,
		maxDelay:  time.Second,
	}
	err := w.run(ctx, "wss://base.example/ws", func(context.Context, *types.Header) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJitterDuration(t *testing.T) {
	t.Parallel()
	for i := 0; i < 100; i++ {
		d := jitterDuration(time.Second)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), jitterDuration(0))
}
