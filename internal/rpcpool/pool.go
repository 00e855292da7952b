// Package rpcpool connects to the first JSON-RPC endpoint that answers.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const DefaultProbeTimeout = 8 * time.Second

// ErrNoEndpoint is returned when no endpoint answered.
var ErrNoEndpoint = errors.New("no RPC endpoint answered")

// Client is the part of a chain client the pool needs to probe it.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

type DialFunc[C Client] func(ctx context.Context, url string) (C, error)

// Conn is a client that answered its probe.
type Conn[C Client] struct {
	Client C
	URL    string
	Block  uint64
}

// ValidateURL accepts http(s) and ws(s) URLs and rejects unfilled templates.
func ValidateURL(rpcURL string) error {
	u := strings.TrimSpace(rpcURL)
	if u == "" {
		return fmt.Errorf("empty RPC URL")
	}
	if !strings.HasPrefix(u, "ws") && !strings.HasPrefix(u, "http") {
		return fmt.Errorf("RPC URL must be wss://... or http(s)://..., got %q", u)
	}
	if strings.Contains(u, "YOUR_KEY") {
		return fmt.Errorf("RPC URL still contains placeholder YOUR_KEY")
	}
	return nil
}

// First tries urls in order and returns the first endpoint whose dial and
// BlockNumber both succeed within probeTimeout. Clients that fail the probe
// are closed. When none answers the error wraps ErrNoEndpoint and every
// per-endpoint failure.
func First[C Client](ctx context.Context, urls []string, probeTimeout time.Duration, dial DialFunc[C]) (Conn[C], error) {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	var errs []error
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if err := ValidateURL(u); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		log.Printf("[rpc] trying %s", u)
		conn, err := probe(ctx, u, probeTimeout, dial)
		if err != nil {
			log.Printf("[rpc] %s failed: %v", u, err)
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		log.Printf("[rpc] connected to %s (block %d)", u, conn.Block)
		return conn, nil
	}
	if len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no RPC URLs configured"))
	}
	return Conn[C]{}, fmt.Errorf("%w: %w", ErrNoEndpoint, errors.Join(errs...))
}

func probe[C Client](ctx context.Context, u string, timeout time.Duration, dial DialFunc[C]) (Conn[C], error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := dial(pctx, u)
	if err != nil {
		return Conn[C]{}, fmt.Errorf("dial: %w", err)
	}
	block, err := c.BlockNumber(pctx)
	if err != nil {
		c.Close()
		return Conn[C]{}, fmt.Errorf("block number: %w", err)
	}
	return Conn[C]{Client: c, URL: u, Block: block}, nil
}

// Dial is First over go-ethereum clients.
func Dial(ctx context.Context, urls []string, probeTimeout time.Duration) (Conn[*ethclient.Client], error) {
	return First(ctx, urls, probeTimeout, ethclient.DialContext)
}
