package hedge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshkas4na/VolatilityProtection/internal/journal"
	"github.com/harshkas4na/VolatilityProtection/internal/lop"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
)

var (
	dai  = common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb")
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	selBalanceOf = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selAllowance = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	selDecimals  = crypto.Keccak256([]byte("decimals()"))[:4]
)

func word(v *big.Int) []byte { return common.LeftPadBytes(v.Bytes(), 32) }

// fakeChain answers eth_calls for two tokens and the router.
type fakeChain struct {
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	decimals   map[common.Address]uint8
	predicate  bool
	cancelled  bool
	// predicateCalls counts checkPredicate reads.
	predicateCalls int
}

func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	to := *msg.To
	sel := msg.Data[:4]
	if to == lop.MainnetAddress {
		router := lop.RouterABI()
		m, err := router.MethodById(sel)
		if err != nil {
			return nil, err
		}
		switch m.Name {
		case "checkPredicate":
			c.predicateCalls++
			return m.Outputs.Pack(c.predicate)
		case "bitInvalidatorForOrder", "rawRemainingInvalidatorForOrder":
			if c.cancelled {
				return m.Outputs.Pack(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
			}
			return m.Outputs.Pack(big.NewInt(0))
		}
		return nil, errors.New("unexpected router call " + m.Name)
	}
	switch string(sel) {
	case string(selBalanceOf):
		return word(c.balances[to]), nil
	case string(selAllowance):
		a := c.allowances[to]
		if a == nil {
			a = new(big.Int)
		}
		return word(a), nil
	case string(selDecimals):
		return word(big.NewInt(int64(c.decimals[to]))), nil
	}
	return nil, errors.New("execution reverted")
}

type sent struct {
	to   common.Address
	data []byte
	gas  uint64
}

type fakeTx struct {
	from      common.Address
	sent      []sent
	estimate  error
	failTo    map[common.Address]error
	approveOn *fakeChain
}

func (f *fakeTx) From() common.Address { return f.from }

func (f *fakeTx) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return nil, nil
}

func (f *fakeTx) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	if f.estimate != nil {
		return 0, f.estimate
	}
	return 180_000, nil
}

func (f *fakeTx) Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	if err := f.failTo[to]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, sent{to: to, data: data, gas: gasLimit})
	if f.approveOn != nil && len(data) >= 4 && string(data[:4]) == string(crypto.Keccak256([]byte("approve(address,uint256)"))[:4]) {
		f.approveOn.allowances[to] = new(big.Int).SetBytes(data[36:68])
	}
	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.sent)), To: &to, Gas: gasLimit, Data: data}), nil
}

func (f *fakeTx) Wait(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(7), GasUsed: 150_000}, nil
}

func (f *fakeTx) SendAndWait(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, error) {
	tx, err := f.Send(ctx, to, data, gasLimit)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx, tx, 0)
}

type fixture struct {
	flow    *Flow
	chain   *fakeChain
	tx      *fakeTx
	store   *orderstore.Store
	journal string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	maker := crypto.PubkeyToAddress(key.PublicKey)

	chain := &fakeChain{
		balances:   map[common.Address]*big.Int{dai: big.NewInt(1e18), usdc: big.NewInt(1_000_000)},
		allowances: map[common.Address]*big.Int{},
		decimals:   map[common.Address]uint8{dai: 18, usdc: 6},
		predicate:  true,
	}
	tx := &fakeTx{from: maker, failTo: map[common.Address]error{}, approveOn: chain}

	dir := t.TempDir()
	store, err := orderstore.Open(filepath.Join(dir, "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	jpath := filepath.Join(dir, "journal.jsonl")
	jw := journal.New(jpath)
	t.Cleanup(func() { _ = jw.Close() })

	return &fixture{
		flow: &Flow{
			Key:     key,
			ChainID: 8453,
			Router:  lop.MainnetAddress,
			Caller:  chain,
			Tx:      tx,
			Journal: jw,
			Store:   store,
		},
		chain:   chain,
		tx:      tx,
		store:   store,
		journal: jpath,
	}
}

func volatilityPlan(t *testing.T) Plan {
	t.Helper()
	pred, err := VolatilityPredicate(checker, hook, DefaultVolatilityThreshold)
	require.NoError(t, err)
	return Plan{
		Kind:         KindVolatility,
		MakerAsset:   dai,
		TakerAsset:   usdc,
		MakingAmount: big.NewInt(1e17),
		TakingAmount: big.NewInt(100_000),
		Predicate:    pred,
	}
}

func readJournal(t *testing.T, path string) []journal.Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []journal.Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev journal.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}
	return out
}

func TestRunFillsVolatilityOrder(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	so, res, err := fx.flow.Run(ctx, volatilityPlan(t))
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, uint64(180_000), res.GasEstimate)

	// approve DAI, approve USDC, fill
	require.Len(t, fx.tx.sent, 3)
	assert.Equal(t, dai, fx.tx.sent[0].to)
	assert.Equal(t, usdc, fx.tx.sent[1].to)
	fill := fx.tx.sent[2]
	assert.Equal(t, lop.MainnetAddress, fill.to)
	assert.Equal(t, uint64(500_000), fill.gas)
	assert.Equal(t, lop.RouterABI().Methods["fillOrderArgs"].ID, fill.data[:4])
	assert.True(t, so.Order.MakerTraits.HasExtension())

	rec, err := fx.store.Get(ctx, res.OrderHash)
	require.NoError(t, err)
	assert.Equal(t, orderstore.StatusFilled, rec.Status)
	assert.Equal(t, res.Tx.Hash(), rec.TxHash)

	var steps []string
	for _, ev := range readJournal(t, fx.journal) {
		steps = append(steps, ev.Step+":"+ev.Status)
	}
	assert.Equal(t, []string{
		"sign:ok",
		"balance:ok", "approve:ok",
		"balance:ok", "approve:ok",
		"preflight:ok", "estimate:ok", "fill:ok",
	}, steps)

	t.Run("second_run_skips_approvals", func(t *testing.T) {
		fx.tx.sent = nil
		_, _, err := fx.flow.Run(ctx, volatilityPlan(t))
		require.NoError(t, err)
		require.Len(t, fx.tx.sent, 1)
		assert.Equal(t, lop.MainnetAddress, fx.tx.sent[0].to)
	})
}

func TestConnectedJournalsEndpointHost(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.flow.Options.DryRun = true

	fx.flow.Connected("https://base-mainnet.g.alchemy.com/v2/secret-key?x=1")
	events := readJournal(t, fx.journal)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "connect", ev.Step)
	assert.Equal(t, journal.StatusOK, ev.Status)
	assert.Equal(t, "base-mainnet.g.alchemy.com", ev.Fields["rpc"])
	assert.Equal(t, float64(8453), ev.Fields["chain_id"])
	assert.Equal(t, fx.tx.from.Hex(), ev.Fields["wallet"])
	assert.Equal(t, true, ev.Fields["dry_run"])

	b, err := os.ReadFile(fx.journal)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret-key")

	t.Run("same_run_as_later_steps", func(t *testing.T) {
		_, err := fx.flow.Sign(context.Background(), volatilityPlan(t))
		require.NoError(t, err)
		events := readJournal(t, fx.journal)
		require.Len(t, events, 2)
		assert.Equal(t, events[0].Run, events[1].Run)
	})
}

func TestPrepareRejectsMissingOrder(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	assert.Error(t, fx.flow.PrepareMaker(ctx, &lop.SignedOrder{}))
	assert.Error(t, fx.flow.PrepareTaker(ctx, &lop.SignedOrder{}))
	assert.Empty(t, fx.tx.sent)
}

func TestRunInsufficientBalance(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.chain.balances[dai] = big.NewInt(1)

	_, _, err := fx.flow.Run(context.Background(), volatilityPlan(t))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "0.1")
	assert.Empty(t, fx.tx.sent)
}

func TestRunPredicateFalse(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.chain.predicate = false

	_, _, err := fx.flow.Run(context.Background(), volatilityPlan(t))
	require.ErrorIs(t, err, ErrPredicateFalse)
	for _, s := range fx.tx.sent {
		assert.NotEqual(t, lop.MainnetAddress, s.to, "fill must not be sent")
	}

	t.Run("skip_preflight_sends_anyway", func(t *testing.T) {
		fx.flow.Options.SkipPreflight = true
		fx.tx.sent = nil
		_, res, err := fx.flow.Run(context.Background(), volatilityPlan(t))
		require.NoError(t, err)
		assert.NotNil(t, res.Tx)
	})
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.flow.Options.DryRun = true
	fx.chain.predicate = false

	plan := volatilityPlan(t)
	plan.Arm = &ArmStep{Contract: common.HexToAddress("0xbeef"), Calldata: []byte{1}}
	_, res, err := fx.flow.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, fx.tx.sent)
	assert.Nil(t, res.Tx)
	assert.NotEmpty(t, res.Calldata)
}

func TestRunGasEstimateFailureNotFatal(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.tx.estimate = errors.New("execution reverted")
	fx.flow.Options.GasLimit = 300_000

	_, res, err := fx.flow.Run(context.Background(), volatilityPlan(t))
	require.NoError(t, err)
	assert.Zero(t, res.GasEstimate)
	assert.Equal(t, uint64(300_000), fx.tx.sent[len(fx.tx.sent)-1].gas)
}

func TestRunTraderHedgeArmFailureAborts(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)

	hedgeContract := common.HexToAddress("0x00000000000000000000000000000000000beef0")
	pred, err := HedgeActivePredicate(hedgeContract, fx.tx.from)
	require.NoError(t, err)
	armData, err := ArmHedgeCalldata(common.Address{}, fx.tx.from)
	require.NoError(t, err)
	fx.tx.failTo[hedgeContract] = errors.New("not authorized")

	plan := Plan{
		Kind:         KindTraderHedge,
		MakerAsset:   usdc,
		TakerAsset:   dai,
		MakingAmount: big.NewInt(100_000),
		TakingAmount: big.NewInt(1e17),
		Predicate:    pred,
		Arm:          &ArmStep{Contract: hedgeContract, Calldata: armData},
	}
	_, _, err = fx.flow.Run(context.Background(), plan)
	require.ErrorIs(t, err, ErrArmFailed)
	assert.Empty(t, fx.tx.sent)

	t.Run("armed_then_filled", func(t *testing.T) {
		delete(fx.tx.failTo, hedgeContract)
		_, res, err := fx.flow.Run(context.Background(), plan)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(fx.tx.sent), 2)
		assert.Equal(t, hedgeContract, fx.tx.sent[0].to)
		assert.Equal(t, armData, fx.tx.sent[0].data)
		assert.NotNil(t, res.Receipt)
	})
}

func TestCancel(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	so, err := fx.flow.Sign(ctx, volatilityPlan(t))
	require.NoError(t, err)
	receipt, err := fx.flow.Cancel(ctx, so)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Len(t, fx.tx.sent, 1)
	assert.Equal(t, lop.RouterABI().Methods["cancelOrder"].ID, fx.tx.sent[0].data[:4])

	hash, _ := so.Hash()
	rec, err := fx.store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, orderstore.StatusCancelled, rec.Status)

	t.Run("non_maker_rejected", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		fx2 := newFixture(t)
		fx2.flow.Key = other
		fx2.tx.from = crypto.PubkeyToAddress(other.PublicKey)
		_, err = fx2.flow.Cancel(ctx, so)
		assert.Error(t, err)
	})
}
