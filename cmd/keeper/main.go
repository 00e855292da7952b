package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/harshkas4na/VolatilityProtection/internal/chain"
	"github.com/harshkas4na/VolatilityProtection/internal/config"
	"github.com/harshkas4na/VolatilityProtection/internal/ethutil"
	"github.com/harshkas4na/VolatilityProtection/internal/hedge"
	"github.com/harshkas4na/VolatilityProtection/internal/journal"
	"github.com/harshkas4na/VolatilityProtection/internal/orderfile"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
	"github.com/harshkas4na/VolatilityProtection/internal/telemetry"
)

type args struct {
	interval          time.Duration
	wsURL             string
	limit             int
	maxAttempts       int
	makers            []common.Address
	imports           []string
	importKind        string
	dryRun            bool
	gasLimit          uint64
	unlimitedApproval bool
	db                string
	journal           string
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	a, err := parseArgs(cfg)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Printf("Shutting down...")
		cancel()
	}()

	shutdown, err := telemetry.Setup(ctx, "keeper", cfg.OTelEndpoint)
	if err != nil {
		log.Printf("[warn] telemetry: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("[warn] telemetry shutdown: %v", err)
		}
	}()

	if err := run(ctx, cfg, a); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[fatal] %v", err)
		os.Exit(1)
	}
}

func parseArgs(cfg config.Config) (args, error) {
	var (
		a          args
		everyFlag  string
		makersFlag string
		importFlag string
	)
	flag.StringVar(&everyFlag, "every", "", "Sweep interval (e.g. 30s). Empty = sweep once.")
	flag.StringVar(&a.wsURL, "ws", "", "WebSocket RPC URL; sweep on every new block instead of --every")
	flag.IntVar(&a.limit, "limit", 100, "Max pending orders per sweep")
	flag.IntVar(&a.maxAttempts, "max-attempts", hedge.DefaultMaxAttempts, "Failed fills before an order is marked failed")
	flag.StringVar(&makersFlag, "makers", "", "Only fill orders from these makers (comma/space-separated)")
	flag.StringVar(&importFlag, "import", "", "Signed order file(s) to add to the store before sweeping (comma-separated)")
	flag.StringVar(&a.importKind, "import-kind", hedge.KindVolatility, "Kind recorded for imported orders")
	flag.BoolVar(&a.dryRun, "dry-run", false, "Check and estimate only; do not send fills")
	flag.Uint64Var(&a.gasLimit, "gas-limit", 500_000, "Gas limit for fill transactions")
	flag.BoolVar(&a.unlimitedApproval, "unlimited-approval", true, "Approve MaxUint256 of the taker asset")
	flag.StringVar(&a.db, "db", cfg.OrderDB, "Order database path (ORDER_DB)")
	flag.StringVar(&a.journal, "journal", cfg.JournalPath, "JSONL journal path (JOURNAL_PATH); empty disables")
	flag.Parse()

	if s := strings.TrimSpace(everyFlag); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return a, fmt.Errorf("invalid --every duration %q: %w", everyFlag, err)
		}
		if d <= 0 {
			return a, fmt.Errorf("--every must be positive")
		}
		a.interval = d
	}
	if strings.TrimSpace(makersFlag) != "" {
		makers, err := ethutil.ParseAddressList(makersFlag)
		if err != nil {
			return a, fmt.Errorf("--makers: %w", err)
		}
		a.makers = makers
	}
	a.imports = ethutil.SplitList(importFlag)
	if a.wsURL = strings.TrimSpace(a.wsURL); a.wsURL != "" {
		if !strings.HasPrefix(a.wsURL, "ws://") && !strings.HasPrefix(a.wsURL, "wss://") {
			return a, fmt.Errorf("--ws must be ws:// or wss:// (got %q)", a.wsURL)
		}
	}
	return a, nil
}

func run(ctx context.Context, cfg config.Config, a args) error {
	router, err := cfg.LOP()
	if err != nil {
		return err
	}

	store, err := orderstore.Open(a.db)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, path := range a.imports {
		if err := importOrder(ctx, store, path, a.importKind); err != nil {
			return err
		}
	}

	sess, err := chain.ConnectWithKey(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	j := journal.New(a.journal)
	defer func() {
		if err := j.Close(); err != nil {
			log.Printf("[warn] journal close: %v", err)
		}
	}()

	flow, err := sess.Flow(router, j, store, hedge.Options{
		DryRun:            a.dryRun,
		GasLimit:          a.gasLimit,
		UnlimitedApproval: a.unlimitedApproval,
	})
	if err != nil {
		return err
	}

	log.Printf("Keeper → 1inch LOP %s (chain %s)", router.Hex(), sess.ChainID)
	log.Printf("Taker: %s", sess.From.Hex())
	log.Printf("Store: %s", a.db)
	flow.Connected(sess.URL)
	if len(a.makers) > 0 {
		log.Printf("Makers: %s", ethutil.JoinHex(a.makers))
	}
	if a.dryRun {
		log.Printf("Mode: dry-run (no transactions)")
	}

	opts := hedge.SweepOptions{MaxAttempts: a.maxAttempts, Limit: a.limit, Makers: a.makers}
	sweep := func() error {
		stats, err := flow.Sweep(ctx, store, opts)
		log.Printf("[keeper] sweep %s", stats)
		if errors.Is(err, hedge.ErrInsufficientBalance) {
			log.Printf("[warn] %v; waiting for funds", err)
			return nil
		}
		return err
	}

	if a.wsURL != "" {
		log.Printf("Sweeping on new heads from %s", a.wsURL)
		err := chain.WatchHeads(ctx, a.wsURL, func(ctx context.Context, h *types.Header) {
			log.Printf("[keeper] block %s", h.Number)
			if err := sweep(); err != nil && ctx.Err() == nil {
				log.Printf("[warn] sweep failed: %v", err)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if a.interval == 0 {
		return sweep()
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		if err := sweep(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[warn] sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func importOrder(ctx context.Context, store *orderstore.Store, path, kind string) error {
	so, found, err := orderfile.Load(path)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("--import: %s not found", path)
	}
	rec, err := store.Save(ctx, kind, so)
	if errors.Is(err, orderstore.ErrAlreadyExists) {
		log.Printf("[keeper] %s already stored", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	log.Printf("[keeper] imported %s hash=%s maker=%s", path, rec.Hash.Hex(), rec.Order.Order.Maker.Hex())
	return nil
}
