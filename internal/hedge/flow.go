// Package hedge builds predicate-gated limit orders and walks them from
// signing to an on-chain fill.
package hedge

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harshkas4na/VolatilityProtection/internal/erc20"
	"github.com/harshkas4na/VolatilityProtection/internal/journal"
	"github.com/harshkas4na/VolatilityProtection/internal/lop"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
	"github.com/harshkas4na/VolatilityProtection/internal/telemetry"
	"github.com/harshkas4na/VolatilityProtection/internal/txutil"
	"github.com/harshkas4na/VolatilityProtection/internal/units"
)

var (
	// ErrInsufficientBalance means the account cannot cover its side of the
	// order. Callers treat it as a clean stop, not a failure.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPredicateFalse      = errors.New("order predicate is false")
	ErrNotFillable         = errors.New("order is not fillable")
	ErrArmFailed           = errors.New("arming hedge failed")
)

const (
	KindVolatility  = "volatility"
	KindTraderHedge = "trader-hedge"
)

// Transactor is what the flow needs from a key-holding sender. *txutil.Sender
// implements it.
type Transactor interface {
	erc20.Transactor
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error)
	Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error)
	Wait(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error)
}

// OrderStore records orders a flow signs and fills. *orderstore.Store
// implements it.
type OrderStore interface {
	Save(ctx context.Context, kind string, so *lop.SignedOrder) (orderstore.Record, error)
	MarkFilled(ctx context.Context, hash, tx common.Hash) error
	MarkCancelled(ctx context.Context, hash, tx common.Hash) error
}

// Plan is the order a flow signs.
type Plan struct {
	Kind         string
	MakerAsset   common.Address
	TakerAsset   common.Address
	MakingAmount *big.Int
	TakingAmount *big.Int
	Predicate    []byte
	// Traits overrides the default single-fill traits.
	Traits *lop.MakerTraits
	// Arm, when set, is sent before filling. A failure aborts the flow.
	Arm *ArmStep
}

type ArmStep struct {
	Contract common.Address
	Calldata []byte
}

type Options struct {
	DryRun            bool
	GasLimit          uint64
	UnlimitedApproval bool
	// SkipPreflight sends the fill even when checkPredicate reports false.
	SkipPreflight bool
	WaitTimeout   time.Duration
}

// Flow holds the connections and key shared by every step.
type Flow struct {
	Key     *ecdsa.PrivateKey
	ChainID int64
	Router  common.Address
	Caller  ethereum.ContractCaller
	Tx      Transactor
	Journal *journal.Writer
	Store   OrderStore
	Options Options

	runID string
	now   func() time.Time
}

// FillResult describes the fill step. In dry-run mode Tx and Receipt are nil.
type FillResult struct {
	OrderHash   common.Hash
	Calldata    []byte
	Traits      lop.TakerTraits
	GasEstimate uint64
	Tx          *types.Transaction
	Receipt     *types.Receipt
}

func (f *Flow) router() *lop.Contract { return lop.NewContract(f.Router, f.Caller) }

func (f *Flow) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

func (f *Flow) run() string {
	if f.runID == "" {
		f.runID = strconv.FormatInt(f.clock().UnixNano(), 36)
	}
	return f.runID
}

func (f *Flow) gasLimit() uint64 {
	if f.Options.GasLimit == 0 {
		return txutil.DefaultGasLimit
	}
	return f.Options.GasLimit
}

func (f *Flow) waitTimeout() time.Duration {
	if f.Options.WaitTimeout <= 0 {
		return txutil.DefaultWaitTimeout
	}
	return f.Options.WaitTimeout
}

func (f *Flow) record(step, status string, orderHash common.Hash, tx common.Hash, err error, fields map[string]any) {
	ev := journal.Event{Run: f.run(), Step: step, Status: status, Fields: fields}
	if (orderHash != common.Hash{}) {
		ev.OrderHash = orderHash.Hex()
	}
	if (tx != common.Hash{}) {
		ev.TxHash = tx.Hex()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if werr := f.Journal.Record(ev); werr != nil {
		log.Printf("[warn] journal: %v", werr)
	}
}

// Connected journals the connect step. Only the host of rpcURL is kept so
// API keys in the path or query stay out of the journal.
func (f *Flow) Connected(rpcURL string) {
	endpoint := rpcURL
	if u, err := url.Parse(rpcURL); err == nil && u.Host != "" {
		endpoint = u.Host
	}
	f.record("connect", journal.StatusOK, common.Hash{}, common.Hash{}, nil, map[string]any{
		"rpc":      endpoint,
		"chain_id": f.ChainID,
		"router":   f.Router.Hex(),
		"wallet":   f.Tx.From().Hex(),
		"dry_run":  f.Options.DryRun,
	})
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "hedge."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Sign builds the order for plan, signs it and stores it when a store is set.
func (f *Flow) Sign(ctx context.Context, plan Plan) (so *lop.SignedOrder, err error) {
	ctx, span := startSpan(ctx, "sign", attribute.String("kind", plan.Kind))
	defer func() { endSpan(span, err) }()

	maker := f.Tx.From()
	o, err := lop.NewOrder(lop.OrderParams{
		Maker:        maker,
		MakerAsset:   plan.MakerAsset,
		TakerAsset:   plan.TakerAsset,
		MakingAmount: plan.MakingAmount,
		TakingAmount: plan.TakingAmount,
		Traits:       plan.Traits,
	}, lop.Extension{Predicate: plan.Predicate})
	if err != nil {
		f.record("build", journal.StatusFailed, common.Hash{}, common.Hash{}, err, nil)
		return nil, fmt.Errorf("build order: %w", err)
	}
	sig, err := lop.SignOrder(f.Key, o, f.ChainID, f.Router)
	if err != nil {
		f.record("sign", journal.StatusFailed, common.Hash{}, common.Hash{}, err, nil)
		return nil, fmt.Errorf("sign order: %w", err)
	}
	so = &lop.SignedOrder{
		ChainID:   f.ChainID,
		Router:    f.Router,
		Order:     o,
		Extension: lop.Extension{Predicate: plan.Predicate},
		Signature: sig,
	}
	hash, err := so.Hash()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order_hash", hash.Hex()))
	log.Printf("[hedge] order signed hash=%s maker=%s salt=%s", hash.Hex(), maker.Hex(), o.Salt.String())
	if len(plan.Predicate) > 0 {
		log.Printf("[hedge] predicate=%s", hexutil.Encode(plan.Predicate))
	}
	f.record("sign", journal.StatusOK, hash, common.Hash{}, nil, map[string]any{
		"kind":          plan.Kind,
		"maker_asset":   plan.MakerAsset.Hex(),
		"taker_asset":   plan.TakerAsset.Hex(),
		"making_amount": plan.MakingAmount.String(),
		"taking_amount": plan.TakingAmount.String(),
	})

	if f.Store != nil {
		if _, err := f.Store.Save(ctx, plan.Kind, so); err != nil && !errors.Is(err, orderstore.ErrAlreadyExists) {
			return so, fmt.Errorf("store order: %w", err)
		}
	}
	return so, nil
}

// Arm sends the arming transaction and waits for it.
func (f *Flow) Arm(ctx context.Context, arm ArmStep) (receipt *types.Receipt, err error) {
	ctx, span := startSpan(ctx, "arm", attribute.String("contract", arm.Contract.Hex()))
	defer func() { endSpan(span, err) }()

	log.Printf("[hedge] arming hedge via %s for %s", arm.Contract.Hex(), f.Tx.From().Hex())
	receipt, err = f.Tx.SendAndWait(ctx, arm.Contract, arm.Calldata, 0)
	if err != nil {
		f.record("arm", journal.StatusFailed, common.Hash{}, common.Hash{}, err, nil)
		return receipt, fmt.Errorf("%w: %w", ErrArmFailed, err)
	}
	log.Printf("[hedge] hedge armed tx=%s", receipt.TxHash.Hex())
	f.record("arm", journal.StatusOK, common.Hash{}, receipt.TxHash, nil, nil)
	return receipt, nil
}

// Prepare checks that the account holds both sides of a self-filled order
// and that the router may pull them, approving where it may not.
func (f *Flow) Prepare(ctx context.Context, so *lop.SignedOrder) error {
	if err := f.PrepareMaker(ctx, so); err != nil {
		return err
	}
	return f.PrepareTaker(ctx, so)
}

// PrepareMaker covers the maker asset. The sender must be the maker.
func (f *Flow) PrepareMaker(ctx context.Context, so *lop.SignedOrder) (err error) {
	ctx, span := startSpan(ctx, "prepare_maker")
	defer func() { endSpan(span, err) }()

	hash, err := so.Hash()
	if err != nil {
		return err
	}
	if so.Order.Maker != f.Tx.From() {
		return fmt.Errorf("sender %s is not the maker %s", f.Tx.From().Hex(), so.Order.Maker.Hex())
	}
	return f.prepareSide(ctx, hash, "maker", so.Order.MakerAsset, so.Order.MakingAmount)
}

// PrepareTaker covers the taker asset the sender pays when filling.
func (f *Flow) PrepareTaker(ctx context.Context, so *lop.SignedOrder) (err error) {
	ctx, span := startSpan(ctx, "prepare_taker")
	defer func() { endSpan(span, err) }()

	hash, err := so.Hash()
	if err != nil {
		return err
	}
	return f.prepareSide(ctx, hash, "taker", so.Order.TakerAsset, so.Order.TakingAmount)
}

func (f *Flow) prepareSide(ctx context.Context, orderHash common.Hash, side string, asset common.Address, amount *big.Int) error {
	owner := f.Tx.From()
	token := erc20.New(asset, f.Caller)
	symbol := token.Symbol(ctx)
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return err
	}

	bal, err := token.BalanceOf(ctx, owner)
	if err != nil {
		return err
	}
	log.Printf("[hedge] %s balance: %s %s", symbol, units.FormatUnits(bal, int32(decimals)), symbol)
	if bal.Cmp(amount) < 0 {
		err := fmt.Errorf("%w: %s side needs %s %s, have %s", ErrInsufficientBalance, side,
			units.FormatUnits(amount, int32(decimals)), symbol, units.FormatUnits(bal, int32(decimals)))
		f.record("balance", journal.StatusFailed, orderHash, common.Hash{}, err, map[string]any{"asset": asset.Hex()})
		return err
	}
	f.record("balance", journal.StatusOK, orderHash, common.Hash{}, nil, map[string]any{"asset": asset.Hex(), "balance": bal.String()})

	if f.Options.DryRun {
		return nil
	}
	receipt, err := token.EnsureAllowance(ctx, f.Tx, f.Router, amount, f.Options.UnlimitedApproval)
	if err != nil {
		f.record("approve", journal.StatusFailed, orderHash, common.Hash{}, err, map[string]any{"asset": asset.Hex()})
		return err
	}
	if receipt == nil {
		log.Printf("[hedge] %s allowance already sufficient", symbol)
		f.record("approve", journal.StatusSkipped, orderHash, common.Hash{}, nil, map[string]any{"asset": asset.Hex()})
		return nil
	}
	log.Printf("[hedge] approved %s spending tx=%s", symbol, receipt.TxHash.Hex())
	f.record("approve", journal.StatusOK, orderHash, receipt.TxHash, nil, map[string]any{"asset": asset.Hex()})
	return nil
}

// CheckFillable reads the order's on-chain state and evaluates its predicate.
// It returns ErrNotFillable or ErrPredicateFalse when a fill would revert.
func (f *Flow) CheckFillable(ctx context.Context, so *lop.SignedOrder) error {
	hash, err := so.Hash()
	if err != nil {
		return err
	}
	st, err := f.router().Status(ctx, so.Order, hash, f.clock().Unix())
	if err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	if !st.Fillable() {
		return fmt.Errorf("%w: remaining=%s invalidated=%v expired=%v", ErrNotFillable, st.Remaining, st.Invalidated, st.Expired)
	}
	ok, err := f.router().CheckPredicate(ctx, so.Extension.Predicate)
	if err != nil {
		return fmt.Errorf("check predicate: %w", err)
	}
	if !ok {
		return ErrPredicateFalse
	}
	return nil
}

// Fill submits a full fill of so. Gas estimation failures are logged and the
// transaction is still sent with the configured gas limit.
func (f *Flow) Fill(ctx context.Context, so *lop.SignedOrder) (FillResult, error) {
	return f.fill(ctx, so, !f.Options.SkipPreflight)
}

func (f *Flow) fill(ctx context.Context, so *lop.SignedOrder, preflight bool) (res FillResult, err error) {
	ctx, span := startSpan(ctx, "fill")
	defer func() { endSpan(span, err) }()

	res.OrderHash, err = so.Hash()
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.String("order_hash", res.OrderHash.Hex()))

	if err := so.Verify(); err != nil {
		return res, fmt.Errorf("verify order: %w", err)
	}
	if preflight {
		if err := f.CheckFillable(ctx, so); err != nil {
			f.record("preflight", journal.StatusFailed, res.OrderHash, common.Hash{}, err, nil)
			if !f.Options.DryRun {
				return res, err
			}
			log.Printf("[warn] dry-run: a fill now would revert: %v", err)
		} else {
			log.Printf("[hedge] predicate satisfied, order fillable")
			f.record("preflight", journal.StatusOK, res.OrderHash, common.Hash{}, nil, nil)
		}
	}

	res.Calldata, res.Traits, err = so.FillParams().Calldata()
	if err != nil {
		f.record("calldata", journal.StatusFailed, res.OrderHash, common.Hash{}, err, nil)
		return res, fmt.Errorf("fill calldata: %w", err)
	}
	log.Printf("[hedge] fill calldata built (%d bytes, takerTraits=%s)", len(res.Calldata), hexutil.EncodeBig(res.Traits.Big()))

	gas, gasErr := f.Tx.EstimateGas(ctx, f.Router, res.Calldata)
	if gasErr != nil {
		log.Printf("[warn] gas estimation failed: %v", gasErr)
		f.record("estimate", journal.StatusFailed, res.OrderHash, common.Hash{}, gasErr, nil)
	} else {
		res.GasEstimate = gas
		log.Printf("[hedge] gas estimate: %d", gas)
		f.record("estimate", journal.StatusOK, res.OrderHash, common.Hash{}, nil, map[string]any{"gas": gas})
	}

	if f.Options.DryRun {
		log.Printf("[hedge] dry-run: to=%s data=%s", f.Router.Hex(), hexutil.Encode(res.Calldata))
		f.record("fill", journal.StatusSkipped, res.OrderHash, common.Hash{}, nil, map[string]any{"dry_run": true})
		return res, nil
	}

	res.Tx, err = f.Tx.Send(ctx, f.Router, res.Calldata, f.gasLimit())
	if err != nil {
		f.record("fill", journal.StatusFailed, res.OrderHash, common.Hash{}, err, nil)
		return res, err
	}
	log.Printf("[hedge] fill sent tx=%s, waiting for confirmation", res.Tx.Hash().Hex())

	res.Receipt, err = f.Tx.Wait(ctx, res.Tx, f.waitTimeout())
	if err != nil {
		f.record("fill", journal.StatusFailed, res.OrderHash, res.Tx.Hash(), err, nil)
		return res, err
	}
	log.Printf("[hedge] order filled tx=%s block=%s gasUsed=%d", res.Tx.Hash().Hex(), res.Receipt.BlockNumber, res.Receipt.GasUsed)
	f.record("fill", journal.StatusOK, res.OrderHash, res.Tx.Hash(), nil, map[string]any{"gas_used": res.Receipt.GasUsed})

	if f.Store != nil {
		if err := f.Store.MarkFilled(ctx, res.OrderHash, res.Tx.Hash()); err != nil && !errors.Is(err, orderstore.ErrNotFound) {
			log.Printf("[warn] store mark filled: %v", err)
		}
	}
	return res, nil
}

// Cancel invalidates so on-chain. Only the maker can cancel.
func (f *Flow) Cancel(ctx context.Context, so *lop.SignedOrder) (receipt *types.Receipt, err error) {
	ctx, span := startSpan(ctx, "cancel")
	defer func() { endSpan(span, err) }()

	hash, err := so.Hash()
	if err != nil {
		return nil, err
	}
	if so.Order.Maker != f.Tx.From() {
		return nil, fmt.Errorf("only the maker %s can cancel, sender is %s", so.Order.Maker.Hex(), f.Tx.From().Hex())
	}
	data, err := lop.CancelOrderCalldata(so.Order.MakerTraits, hash)
	if err != nil {
		return nil, err
	}
	if f.Options.DryRun {
		log.Printf("[hedge] dry-run: to=%s data=%s", f.Router.Hex(), hexutil.Encode(data))
		return nil, nil
	}
	receipt, err = f.Tx.SendAndWait(ctx, f.Router, data, 0)
	if err != nil {
		f.record("cancel", journal.StatusFailed, hash, common.Hash{}, err, nil)
		return receipt, fmt.Errorf("cancel %s: %w", hash.Hex(), err)
	}
	log.Printf("[hedge] order cancelled hash=%s tx=%s", hash.Hex(), receipt.TxHash.Hex())
	f.record("cancel", journal.StatusOK, hash, receipt.TxHash, nil, nil)
	if f.Store != nil {
		if err := f.Store.MarkCancelled(ctx, hash, receipt.TxHash); err != nil && !errors.Is(err, orderstore.ErrNotFound) {
			log.Printf("[warn] store mark cancelled: %v", err)
		}
	}
	return receipt, nil
}

// Run signs plan and executes it.
func (f *Flow) Run(ctx context.Context, plan Plan) (*lop.SignedOrder, FillResult, error) {
	ctx, span := startSpan(ctx, "run", attribute.String("kind", plan.Kind), attribute.Bool("dry_run", f.Options.DryRun))
	defer span.End()

	so, err := f.Sign(ctx, plan)
	if err != nil {
		return nil, FillResult{}, err
	}
	res, err := f.Execute(ctx, so, plan.Arm)
	return so, res, err
}

// Execute arms the hedge when arm is set, prepares both sides and fills.
func (f *Flow) Execute(ctx context.Context, so *lop.SignedOrder, arm *ArmStep) (FillResult, error) {
	if arm != nil {
		if f.Options.DryRun {
			log.Printf("[hedge] dry-run: skipping arm via %s", arm.Contract.Hex())
		} else if _, err := f.Arm(ctx, *arm); err != nil {
			return FillResult{}, err
		}
	}
	if err := f.Prepare(ctx, so); err != nil {
		return FillResult{}, err
	}
	return f.Fill(ctx, so)
}
