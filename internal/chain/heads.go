package chain

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// WatchHeads calls fn for each new block seen over a websocket endpoint,
// reconnecting with backoff until ctx is done. Heads that arrive while fn
// runs are coalesced into the latest one.
func WatchHeads(ctx context.Context, wsURL string, fn func(context.Context, *types.Header)) error {
	w := headWatcher{
		dial:      dialHeads,
		sleep:     sleepWithContext,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
	}
	return w.run(ctx, wsURL, fn)
}

func dialHeads(ctx context.Context, wsURL string) (HeadSubscriber, func(), error) {
	client, err := ethclient.DialContext(ctx, wsURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// headWatcher redials after every lost subscription. The delay doubles up to
// maxDelay and drops back to baseDelay once a connection delivered heads.
type headWatcher struct {
	dial      func(ctx context.Context, wsURL string) (HeadSubscriber, func(), error)
	sleep     func(ctx context.Context, d time.Duration) error
	baseDelay time.Duration
	maxDelay  time.Duration
}

func (w headWatcher) run(ctx context.Context, wsURL string, fn func(context.Context, *types.Header)) error {
	delay := w.baseDelay
	for {
		sub, closeFn, err := w.dial(ctx, wsURL)
		if err == nil {
			var seen int
			seen, err = FollowHeads(ctx, sub, fn)
			closeFn()
			if seen > 0 {
				delay = w.baseDelay
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := jitterDuration(delay)
		log.Printf("[warn] head subscription lost, retrying in %s: %v", wait, err)
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}

// FollowHeads runs one subscription until it fails or ctx is done and
// returns how many heads were handled.
func FollowHeads(ctx context.Context, sub HeadSubscriber, fn func(context.Context, *types.Header)) (int, error) {
	heads := make(chan *types.Header, 16)
	s, err := sub.SubscribeNewHead(ctx, heads)
	if err != nil {
		return 0, err
	}
	defer s.Unsubscribe()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return seen, ctx.Err()
		case err := <-s.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return seen, err
		case h := <-heads:
			for drained := false; !drained; {
				select {
				case next := <-heads:
					h = next
				default:
					drained = true
				}
			}
			seen++
			fn(ctx, h)
		}
	}
}

func jitterDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := d / 5 // +/-20%
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(rand.Int63n(int64(j*2)+1))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
