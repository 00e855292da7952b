package hedge

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore"
)

// storeMakerOrder signs a plan with a fresh maker key into the keeper's store.
func storeMakerOrder(t *testing.T, fx *fixture) (*lop.SignedOrder, common.Hash) {
	t.Helper()
	return storeMakerOrderOn(t, fx, fx.flow.ChainID)
}

func storeMakerOrderOn(t *testing.T, fx *fixture, chainID int64) (*lop.SignedOrder, common.Hash) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	maker := &Flow{
		Key:     key,
		ChainID: chainID,
		Router:  fx.flow.Router,
		Caller:  fx.chain,
		Tx:      &fakeTx{from: crypto.PubkeyToAddress(key.PublicKey)},
		Store:   fx.store,
	}
	so, err := maker.Sign(context.Background(), volatilityPlan(t))
	require.NoError(t, err)
	hash, err := so.Hash()
	require.NoError(t, err)
	return so, hash
}

func TestSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("waits_while_predicate_false", func(t *testing.T) {
		fx := newFixture(t)
		fx.chain.predicate = false
		storeMakerOrder(t, fx)

		stats, err := fx.flow.Sweep(ctx, fx.store, SweepOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Checked)
		assert.Equal(t, 1, stats.Waiting)
		assert.Empty(t, fx.tx.sent)
	})

	t.Run("fills_when_predicate_holds", func(t *testing.T) {
		fx := newFixture(t)
		_, hash := storeMakerOrder(t, fx)

		stats, err := fx.flow.Sweep(ctx, fx.store, SweepOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Filled)

		// taker approval then fill
		require.Len(t, fx.tx.sent, 2)
		assert.Equal(t, usdc, fx.tx.sent[0].to)
		assert.Equal(t, lop.MainnetAddress, fx.tx.sent[1].to)

		rec, err := fx.store.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, orderstore.StatusFilled, rec.Status)

		// one predicate read per order, no second preflight inside the fill
		assert.Equal(t, 1, fx.chain.predicateCalls)
		for _, ev := range readJournal(t, fx.journal) {
			assert.NotEqual(t, "preflight", ev.Step)
		}
	})

	t.Run("other_chain_orders_do_not_use_up_the_limit", func(t *testing.T) {
		fx := newFixture(t)
		foreign, foreignHash := storeMakerOrderOn(t, fx, 1)
		require.EqualValues(t, 1, foreign.ChainID)
		_, hash := storeMakerOrder(t, fx)

		stats, err := fx.flow.Sweep(ctx, fx.store, SweepOptions{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Checked)
		assert.Equal(t, 1, stats.Filled)

		rec, err := fx.store.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, orderstore.StatusFilled, rec.Status)
		rec, err = fx.store.Get(ctx, foreignHash)
		require.NoError(t, err)
		assert.Equal(t, orderstore.StatusPending, rec.Status)
	})

	t.Run("other_makers_do_not_use_up_the_limit", func(t *testing.T) {
		fx := newFixture(t)
		storeMakerOrder(t, fx)
		wanted, hash := storeMakerOrder(t, fx)

		stats, err := fx.flow.Sweep(ctx, fx.store, SweepOptions{Limit: 1, Makers: []common.Address{wanted.Order.Maker}})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Filled)
		rec, err := fx.store.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, orderstore.StatusFilled, rec.Status)
	})

	t.Run("retires_after_max_attempts", func(t *testing.T) {
		fx := newFixture(t)
		fx.tx.failTo[lop.MainnetAddress] = errors.New("nonce too low")
		_, hash := storeMakerOrder(t, fx)

		for i := 0; i < 2; i++ {
			_, err := fx.flow.Sweep(ctx, fx.store, SweepOptions{MaxAttempts: 2})
			require.NoError(t, err)
		}
		rec, err := fx.store.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, orderstore.StatusFailed, rec.Status)
		assert.Equal(t, 2, rec.Attempts)
		assert.Contains(t, rec.LastError, "nonce too low")
	})

	t.Run("retires_cancelled_orders", func(t *testing.T) {
		fx := newFixture(t)
		fx.chain.cancelled = true
		_, hash := storeMakerOrder(t, fx)

		stats, err := fx.flow.Sweep(ctx, fx.store, SweepOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Retired)
		rec, err := fx.store.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, orderstore.StatusFailed, rec.Status)
	})

	t.Run("maker_filter_and_balance_stop", func(t *testing.T) {
		fx := newFixture(t)
		so, _ := storeMakerOrder(t, fx)

		stats, err := fx.flow.Sweep(ctx, fx.store, SweepOptions{Makers: []common.Address{common.HexToAddress("0x1")}})
		require.NoError(t, err)
		assert.Zero(t, stats.Checked)

		fx.chain.balances[usdc] = big.NewInt(0)
		_, err = fx.flow.Sweep(ctx, fx.store, SweepOptions{Makers: []common.Address{so.Order.Maker}})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}
