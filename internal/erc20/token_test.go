package erc20

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshkas4na/VolatilityProtection/internal/units"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	spender = common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65")
	usdc    = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

// fakeToken answers eth_calls for a single holder.
type fakeToken struct {
	balance   *big.Int
	allowance *big.Int
	decimals  uint8
	symbol    string
}

func (f *fakeToken) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	m, err := tokenABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "balanceOf":
		return m.Outputs.Pack(f.balance)
	case "allowance":
		return m.Outputs.Pack(f.allowance)
	case "decimals":
		return m.Outputs.Pack(f.decimals)
	case "symbol":
		if f.symbol == "" {
			return nil, errors.New("execution reverted")
		}
		return m.Outputs.Pack(f.symbol)
	}
	return nil, errors.New("unexpected method " + m.Name)
}

type fakeTransactor struct {
	sent []common.Address
	data [][]byte
}

func (f *fakeTransactor) From() common.Address { return owner }

func (f *fakeTransactor) SendAndWait(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, error) {
	f.sent = append(f.sent, to)
	f.data = append(f.data, data)
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func TestTokenReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tok := New(usdc, &fakeToken{balance: big.NewInt(250_000), allowance: big.NewInt(7), decimals: 6, symbol: "USDC"})

	bal, err := tok.BalanceOf(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "250000", bal.String())

	a, err := tok.Allowance(ctx, owner, spender)
	require.NoError(t, err)
	assert.Equal(t, "7", a.String())

	d, err := tok.Decimals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
	assert.Equal(t, "USDC", tok.Symbol(ctx))

	noSymbol := New(usdc, &fakeToken{})
	assert.Equal(t, usdc.Hex(), noSymbol.Symbol(ctx))
}

func TestEnsureAllowance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	required := big.NewInt(100_000)

	t.Run("sufficient_skips", func(t *testing.T) {
		tok := New(usdc, &fakeToken{allowance: big.NewInt(100_000)})
		tx := &fakeTransactor{}
		receipt, err := tok.EnsureAllowance(ctx, tx, spender, required, false)
		require.NoError(t, err)
		assert.Nil(t, receipt)
		assert.Empty(t, tx.sent)
	})

	t.Run("exact_amount", func(t *testing.T) {
		tok := New(usdc, &fakeToken{allowance: big.NewInt(1)})
		tx := &fakeTransactor{}
		receipt, err := tok.EnsureAllowance(ctx, tx, spender, required, false)
		require.NoError(t, err)
		require.NotNil(t, receipt)
		require.Len(t, tx.data, 1)
		assert.Equal(t, usdc, tx.sent[0])

		vals, err := tokenABI.Methods["approve"].Inputs.Unpack(tx.data[0][4:])
		require.NoError(t, err)
		assert.Equal(t, spender, vals[0].(common.Address))
		assert.Equal(t, required.String(), vals[1].(*big.Int).String())
	})

	t.Run("unlimited", func(t *testing.T) {
		tok := New(usdc, &fakeToken{allowance: big.NewInt(0)})
		tx := &fakeTransactor{}
		_, err := tok.EnsureAllowance(ctx, tx, spender, required, true)
		require.NoError(t, err)
		vals, err := tokenABI.Methods["approve"].Inputs.Unpack(tx.data[0][4:])
		require.NoError(t, err)
		assert.Equal(t, units.MaxUint256.String(), vals[1].(*big.Int).String())
	})
}

func TestApproveCalldataRejectsNegative(t *testing.T) {
	t.Parallel()
	_, err := ApproveCalldata(spender, big.NewInt(-1))
	assert.Error(t, err)
}
