// Package chain opens the RPC connection and signer shared by the tools.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/harshkas4na/VolatilityProtection/internal/config"
	"github.com/harshkas4na/VolatilityProtection/internal/erc20"
	"github.com/harshkas4na/VolatilityProtection/internal/hedge"
	"github.com/harshkas4na/VolatilityProtection/internal/journal"
	"github.com/harshkas4na/VolatilityProtection/internal/rpcpool"
	"github.com/harshkas4na/VolatilityProtection/internal/txutil"
	"github.com/harshkas4na/VolatilityProtection/internal/units"
)

type Session struct {
	Client  *ethclient.Client
	URL     string
	ChainID *big.Int

	// Key, From and Sender are zero for read-only sessions.
	Key    *ecdsa.PrivateKey
	From   common.Address
	Sender *txutil.Sender
}

// Connect dials the first configured endpoint that answers and reads the
// chain id. With a nil key the session is read-only.
func Connect(ctx context.Context, cfg config.Config, key *ecdsa.PrivateKey) (*Session, error) {
	conn, err := rpcpool.Dial(ctx, cfg.Endpoints(), cfg.RPCProbeTimeout)
	if err != nil {
		return nil, err
	}
	chainID, err := conn.Client.ChainID(ctx)
	if err != nil {
		conn.Client.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	log.Printf("[rpc] chain id: %s", chainID)

	s := &Session{Client: conn.Client, URL: conn.URL, ChainID: chainID}
	if key != nil {
		s.Key = key
		s.Sender = txutil.NewSender(conn.Client, key, chainID)
		s.From = s.Sender.From()
	}
	return s, nil
}

// ConnectWithKey is Connect with the key from PRIVATE_KEY.
func ConnectWithKey(ctx context.Context, cfg config.Config) (*Session, error) {
	key, _, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	return Connect(ctx, cfg, key)
}

func (s *Session) Close() {
	if s != nil && s.Client != nil {
		s.Client.Close()
	}
}

// Flow returns a hedge flow that signs and sends with the session key
// against router. store may be nil.
func (s *Session) Flow(router common.Address, j *journal.Writer, store hedge.OrderStore, opts hedge.Options) (*hedge.Flow, error) {
	if s.Sender == nil {
		return nil, fmt.Errorf("PRIVATE_KEY required")
	}
	if !s.ChainID.IsInt64() {
		return nil, fmt.Errorf("chain id %s out of range", s.ChainID)
	}
	return &hedge.Flow{
		Key:     s.Key,
		ChainID: s.ChainID.Int64(),
		Router:  router,
		Caller:  s.Client,
		Tx:      s.Sender,
		Journal: j,
		Store:   store,
		Options: opts,
	}, nil
}

// ParseAmount converts a human amount of asset into base units using the
// token's decimals.
func (s *Session) ParseAmount(ctx context.Context, asset common.Address, raw string) (*big.Int, error) {
	tok := erc20.New(asset, s.Client)
	dec, err := tok.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	v, err := units.ParseUnits(raw, int32(dec))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", raw)
	}
	log.Printf("[rpc] %s %s = %s base units", units.FormatUnits(v, int32(dec)), tok.Symbol(ctx), v)
	return v, nil
}
