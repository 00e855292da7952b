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
	"github.com/harshkas4na/VolatilityProtection/internal/ethutil"
	"github.com/harshkas4na/VolatilityProtection/internal/hedge"
	"github.com/harshkas4na/VolatilityProtection/internal/journal"
	"github.com/harshkas4na/VolatilityProtection/internal/orderfile"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
	"github.com/harshkas4na/VolatilityProtection/internal/telemetry"
)

type args struct {
	making            string
	taking            string
	rvmID             string
	skipArm           bool
	dryRun            bool
	gasLimit          uint64
	unlimitedApproval bool
	skipPreflight     bool
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

	shutdown, err := telemetry.Setup(ctx, "trader-hedge", cfg.OTelEndpoint)
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
	flag.StringVar(&a.making, "making", "0.1", "Maker asset amount (human units, USDC by default)")
	flag.StringVar(&a.taking, "taking", "0.1", "Taker asset amount (human units, DAI by default)")
	flag.StringVar(&a.rvmID, "rvm-id", "", "Reactive VM id passed to demoSetter (default: wallet address)")
	flag.BoolVar(&a.skipArm, "skip-arm", false, "Do not send demoSetter; assume the hedge is already armed")
	flag.BoolVar(&a.dryRun, "dry-run", false, "Sign and check only; print the fill calldata instead of sending")
	flag.Uint64Var(&a.gasLimit, "gas-limit", 500_000, "Gas limit for the fill transaction")
	flag.BoolVar(&a.unlimitedApproval, "unlimited-approval", false, "Approve MaxUint256 instead of the exact amount")
	flag.BoolVar(&a.skipPreflight, "skip-preflight", false, "Send the fill even if checkPredicate is false")
	flag.StringVar(&a.db, "db", cfg.OrderDB, "Order database path (ORDER_DB)")
	flag.StringVar(&a.journal, "journal", cfg.JournalPath, "JSONL journal path (JOURNAL_PATH); empty disables")
	flag.StringVar(&a.out, "out", "out/trader-hedge-order.json", "Where to write the signed order")
	flag.Parse()
	return a
}

func run(ctx context.Context, cfg config.Config, a args) error {
	router, err := cfg.LOP()
	if err != nil {
		return err
	}
	hedgeContract, err := cfg.TraderHedgeLOP()
	if err != nil {
		return err
	}
	makerAsset, takerAsset, err := cfg.Assets(config.BaseUSDC, config.BaseDAI)
	if err != nil {
		return err
	}

	sess, err := chain.ConnectWithKey(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	rvmID := sess.From
	if a.rvmID != "" {
		if rvmID, err = ethutil.ParseAddress("--rvm-id", a.rvmID); err != nil {
			return err
		}
	}

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

	log.Printf("Trader hedge → 1inch LOP %s (chain %s)", router.Hex(), sess.ChainID)
	log.Printf("Wallet: %s", sess.From.Hex())
	log.Printf("Hedge contract: %s", hedgeContract.Hex())
	flow.Connected(sess.URL)
	if a.dryRun {
		log.Printf("Mode: dry-run (no transactions)")
	}

	plan, err := buildPlan(ctx, sess, makerAsset, takerAsset, hedgeContract, rvmID, a)
	if err != nil {
		return err
	}
	so, err := flow.Sign(ctx, plan)
	if err != nil {
		return err
	}
	if err := orderfile.Save(a.out, so); err != nil {
		return fmt.Errorf("write %s: %w", a.out, err)
	}
	log.Printf("Signed order written to %s", a.out)

	res, err := flow.Execute(ctx, so, plan.Arm)
	if err != nil {
		return err
	}
	fmt.Printf("order_hash: %s\n", res.OrderHash.Hex())
	if res.Tx != nil {
		fmt.Printf("fill_tx: %s\n", res.Tx.Hash().Hex())
	}
	return nil
}

func buildPlan(ctx context.Context, sess *chain.Session, makerAsset, takerAsset, hedgeContract, rvmID common.Address, a args) (hedge.Plan, error) {
	making, err := sess.ParseAmount(ctx, makerAsset, a.making)
	if err != nil {
		return hedge.Plan{}, fmt.Errorf("--making: %w", err)
	}
	taking, err := sess.ParseAmount(ctx, takerAsset, a.taking)
	if err != nil {
		return hedge.Plan{}, fmt.Errorf("--taking: %w", err)
	}
	pred, err := hedge.HedgeActivePredicate(hedgeContract, sess.From)
	if err != nil {
		return hedge.Plan{}, err
	}
	plan := hedge.Plan{
		Kind:         hedge.KindTraderHedge,
		MakerAsset:   makerAsset,
		TakerAsset:   takerAsset,
		MakingAmount: making,
		TakingAmount: taking,
		Predicate:    pred,
	}
	if !a.skipArm {
		data, err := hedge.ArmHedgeCalldata(rvmID, sess.From)
		if err != nil {
			return hedge.Plan{}, err
		}
		plan.Arm = &hedge.ArmStep{Contract: hedgeContract, Calldata: data}
	}
	return plan, nil
}
