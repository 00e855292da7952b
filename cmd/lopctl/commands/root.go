package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/harshkas4na/VolatilityProtection/internal/chain"
	"github.com/harshkas4na/VolatilityProtection/internal/config"
	"github.com/harshkas4na/VolatilityProtection/internal/lop"
	"github.com/harshkas4na/VolatilityProtection/internal/orderfile"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
)

var (
	cfg    config.Config
	dbPath string
	rpcURL string
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lopctl",
		Short:         "Inspect and manage signed 1inch limit orders",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if dbPath != "" {
				loaded.OrderDB = dbPath
			}
			if rpcURL != "" {
				loaded.RPCURLs = []string{rpcURL}
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "", "order database path (default ORDER_DB or data/orders.db)")
	root.PersistentFlags().StringVar(&rpcURL, "rpc", "", "RPC URL (overrides RPC_URLS)")

	root.AddCommand(orderCmd(), extensionCmd(), predicateCmd(), statusCmd(), cancelCmd(), ordersCmd())
	return root
}

func openStore() (*orderstore.Store, error) {
	return orderstore.Open(cfg.OrderDB)
}

// loadOrder resolves ref as a signed order file, or failing that as the hash
// of a stored order.
func loadOrder(ctx context.Context, ref string) (*lop.SignedOrder, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("order reference required")
	}
	if _, err := os.Stat(ref); err == nil {
		so, _, err := orderfile.Load(ref)
		return so, err
	}

	hash, err := parseHash(ref)
	if err != nil {
		return nil, fmt.Errorf("%q is neither an order file nor an order hash", ref)
	}
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	rec, err := store.Get(ctx, hash)
	if errors.Is(err, orderstore.ErrNotFound) {
		return nil, fmt.Errorf("order %s not in %s", hash.Hex(), cfg.OrderDB)
	}
	if err != nil {
		return nil, err
	}
	return rec.Order, nil
}

func parseHash(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func connect(ctx context.Context) (*chain.Session, error) {
	return chain.Connect(ctx, cfg, nil)
}
