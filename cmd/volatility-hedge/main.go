package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/harshkas4na/VolatilityProtection/internal/chain"
	"github.com/harshkas4na/VolatilityProtection/internal/config"
	"github.com/harshkas4na/VolatilityProtection/internal/hedge"
	"github.com/harshkas4na/VolatilityProtection/internal/journal"
	"github.com/harshkas4na/VolatilityProtection/internal/lop"
	"github.com/harshkas4na/VolatilityProtection/internal/orderfile"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
	"github.com/harshkas4na/VolatilityProtection/internal/telemetry"
)

type args struct {
	making            string
	taking            string
	threshold         uint
	dryRun            bool
	gasLimit          uint64
	unlimitedApproval bool
	skipPreflight     bool
	resume            bool
	db                string
	journal           string
	out               string
}

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	a := parseArgs(cfg)

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

	shutdown, err := telemetry.Setup(ctx, "volatility-hedge", cfg.OTelEndpoint)
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

	if err := run(ctx, cfg, a); err != nil {
		if errors.Is(err, hedge.ErrInsufficientBalance) {
			log.Printf("[warn] %v; fund the wallet and rerun", err)
			return
		}
		log.Printf("[fatal] %v", err)
		os.Exit(1)
	}
}

func parseArgs(cfg config.Config) args {
	var a args
	flag.StringVar(&a.making, "making", "0.1", "Maker asset amount (human units, DAI by default)")
	flag.StringVar(&a.taking, "taking", "0.1", "Taker asset amount (human units, USDC by default)")
	flag.UintVar(&a.threshold, "threshold", hedge.DefaultVolatilityThreshold, "Volatility threshold passed to checkVolatility (uint24)")
	flag.BoolVar(&a.dryRun, "dry-run", false, "Sign and check only; print the fill calldata instead of sending")
	flag.Uint64Var(&a.gasLimit, "gas-limit", 500_000, "Gas limit for the fill transaction")
	flag.BoolVar(&a.unlimitedApproval, "unlimited-approval", true, "Approve MaxUint256 instead of the exact amount")
	flag.BoolVar(&a.skipPreflight, "skip-preflight", false, "Send the fill even if checkPredicate is false")
	flag.BoolVar(&a.resume, "resume", false, "Reuse the order in --out instead of signing a new one")
	flag.StringVar(&a.db, "db", cfg.OrderDB, "Order database path (ORDER_DB)")
	flag.StringVar(&a.journal, "journal", cfg.JournalPath, "JSONL journal path (JOURNAL_PATH); empty disables")
	flag.StringVar(&a.out, "out", "out/volatility-order.json", "Where to write the signed order")
	flag.Parse()
	return a
}

func run(ctx context.Context, cfg config.Config, a args) error {
	router, err := cfg.LOP()
	if err != nil {
		return err
	}
	checker, err := cfg.VolatilityChecker()
	if err != nil {
		return err
	}
	hook, err := cfg.DynamicFeeHook()
	if err != nil {
		return err
	}
	makerAsset, takerAsset, err := cfg.Assets(config.BaseDAI, config.BaseUSDC)
	if err != nil {
		return err
	}
	if a.threshold > 1<<24-1 {
		return fmt.Errorf("--threshold %d does not fit uint24", a.threshold)
	}

	sess, err := chain.ConnectWithKey(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	store, err := orderstore.Open(a.db)
	if err != nil {
		return err
	}
	defer store.Close()

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
		SkipPreflight:     a.skipPreflight,
	})
	if err != nil {
		return err
	}

	log.Printf("Volatility hedge → 1inch LOP %s (chain %s)", router.Hex(), sess.ChainID)
	log.Printf("Wallet: %s", sess.From.Hex())
	log.Printf("Checker: %s hook: %s threshold: %d", checker.Hex(), hook.Hex(), a.threshold)
	flow.Connected(sess.URL)
	if a.dryRun {
		log.Printf("Mode: dry-run (no transactions)")
	}

	var so *lop.SignedOrder
	if a.resume {
		loaded, found, err := orderfile.Load(a.out)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("--resume: no order at %s", a.out)
		}
		if loaded.Order.Maker != sess.From || loaded.Router != router {
			return fmt.Errorf("--resume: %s was signed by %s for %s", a.out, loaded.Order.Maker.Hex(), loaded.Router.Hex())
		}
		so = loaded
		log.Printf("Resuming order from %s", a.out)
	} else {
		plan, err := buildPlan(ctx, sess, makerAsset, takerAsset, checker, hook, a)
		if err != nil {
			return err
		}
		so, err = flow.Sign(ctx, plan)
		if err != nil {
			return err
		}
		if err := orderfile.Save(a.out, so); err != nil {
			return fmt.Errorf("write %s: %w", a.out, err)
		}
		log.Printf("Signed order written to %s", a.out)
	}

	res, err := flow.Execute(ctx, so, nil)
	if err != nil {
		return err
	}
	if res.Tx != nil {
		fmt.Printf("order_hash: %s\nfill_tx: %s\n", res.OrderHash.Hex(), res.Tx.Hash().Hex())
	} else {
		fmt.Printf("order_hash: %s\n", res.OrderHash.Hex())
	}
	return nil
}

func buildPlan(ctx context.Context, sess *chain.Session, makerAsset, takerAsset, checker, hook common.Address, a args) (hedge.Plan, error) {
	making, err := sess.ParseAmount(ctx, makerAsset, a.making)
	if err != nil {
		return hedge.Plan{}, fmt.Errorf("--making: %w", err)
	}
	taking, err := sess.ParseAmount(ctx, takerAsset, a.taking)
	if err != nil {
		return hedge.Plan{}, fmt.Errorf("--taking: %w", err)
	}
	pred, err := hedge.VolatilityPredicate(checker, hook, uint32(a.threshold))
	if err != nil {
		return hedge.Plan{}, err
	}
	return hedge.Plan{
		Kind:         hedge.KindVolatility,
		MakerAsset:   makerAsset,
		TakerAsset:   takerAsset,
		MakingAmount: making,
		TakingAmount: taking,
		Predicate:    pred,
	}, nil
}
