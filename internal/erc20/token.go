// Package erc20 reads token state and submits approvals.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/harshkas4na/VolatilityProtection/internal/units"
)

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var tokenABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("erc20 abi parse: %v", err))
	}
	return parsed
}

// Transactor submits a transaction and waits for its receipt.
type Transactor interface {
	From() common.Address
	SendAndWait(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, error)
}

type Token struct {
	address common.Address
	caller  ethereum.ContractCaller
}

func New(address common.Address, caller ethereum.ContractCaller) *Token {
	return &Token{address: address, caller: caller}
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) callABI(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := tokenABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := t.caller.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result (is %s a token?)", t.address.Hex())
	}
	return tokenABI.Unpack(method, out)
}

func (t *Token) uint256(ctx context.Context, method string, args ...any) (*big.Int, error) {
	vals, err := t.callABI(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := t.uint256(ctx, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", owner.Hex(), err)
	}
	return bal, nil
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	a, err := t.uint256(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s): %w", owner.Hex(), spender.Hex(), err)
	}
	return a, nil
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	vals, err := t.callABI(ctx, "decimals")
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", vals[0])
	}
	return d, nil
}

// Symbol returns the token symbol, or the address when the token has none.
func (t *Token) Symbol(ctx context.Context) string {
	vals, err := t.callABI(ctx, "symbol")
	if err != nil {
		return t.address.Hex()
	}
	if s, ok := vals[0].(string); ok && s != "" {
		return s
	}
	return t.address.Hex()
}

func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("approve amount must be >= 0")
	}
	return tokenABI.Pack("approve", spender, amount)
}

func (t *Token) Approve(ctx context.Context, tx Transactor, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	data, err := ApproveCalldata(spender, amount)
	if err != nil {
		return nil, err
	}
	receipt, err := tx.SendAndWait(ctx, t.address, data, 0)
	if err != nil {
		return receipt, fmt.Errorf("approve %s for %s: %w", t.address.Hex(), spender.Hex(), err)
	}
	return receipt, nil
}

// EnsureAllowance approves spender when the current allowance is below
// required. The approval is for required, or for max uint256 when unlimited
// is set. A nil receipt means no transaction was needed.
func (t *Token) EnsureAllowance(ctx context.Context, tx Transactor, spender common.Address, required *big.Int, unlimited bool) (*types.Receipt, error) {
	current, err := t.Allowance(ctx, tx.From(), spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(required) >= 0 {
		return nil, nil
	}
	amount := required
	if unlimited {
		amount = units.MaxUint256
	}
	return t.Approve(ctx, tx, spender, amount)
}
