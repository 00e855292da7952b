package lop

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Contract reads order state from a deployed router.
type Contract struct {
	address common.Address
	caller  ethereum.ContractCaller
}

func NewContract(address common.Address, caller ethereum.ContractCaller) *Contract {
	return &Contract{address: address, caller: caller}
}

func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := routerABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	vals, err := routerABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%s: unexpected result len %d", method, len(vals))
	}
	return vals, nil
}

// CheckPredicate evaluates predicate exactly as the router does at fill time.
func (c *Contract) CheckPredicate(ctx context.Context, predicate []byte) (bool, error) {
	if len(predicate) == 0 {
		return true, nil
	}
	vals, err := c.call(ctx, "checkPredicate", predicate)
	if err != nil {
		return false, err
	}
	ok, isBool := vals[0].(bool)
	if !isBool {
		return false, fmt.Errorf("checkPredicate: unexpected type %T", vals[0])
	}
	return ok, nil
}

// HashOrder asks the router for the order hash. Used to confirm the local
// EIP-712 domain matches the deployment.
func (c *Contract) HashOrder(ctx context.Context, o *Order) (common.Hash, error) {
	vals, err := c.call(ctx, "hashOrder", o.tuple())
	if err != nil {
		return common.Hash{}, err
	}
	switch v := vals[0].(type) {
	case [32]byte:
		return v, nil
	case common.Hash:
		return v, nil
	default:
		return common.Hash{}, fmt.Errorf("hashOrder: unexpected type %T", vals[0])
	}
}

func (c *Contract) uintCall(ctx context.Context, method string, args ...any) (*big.Int, error) {
	vals, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

// BitInvalidatorForOrder returns the maker's invalidation bitmap for slot
// (nonce >> 8).
func (c *Contract) BitInvalidatorForOrder(ctx context.Context, maker common.Address, slot uint64) (*big.Int, error) {
	return c.uintCall(ctx, "bitInvalidatorForOrder", maker, new(big.Int).SetUint64(slot))
}

// RemainingInvalidatorForOrder returns the raw remaining slot, see RemainingFromRaw.
func (c *Contract) RemainingInvalidatorForOrder(ctx context.Context, maker common.Address, orderHash common.Hash) (*big.Int, error) {
	return c.uintCall(ctx, "rawRemainingInvalidatorForOrder", maker, orderHash)
}

// IsOrderFilledOrCancelled reports whether the order can no longer be filled
// for reasons other than its predicate.
func (c *Contract) IsOrderFilledOrCancelled(ctx context.Context, o *Order, orderHash common.Hash) (bool, error) {
	st, err := c.Status(ctx, o, orderHash, 0)
	if err != nil {
		return false, err
	}
	return st.Invalidated, nil
}

// OrderStatus is the fillable state of an order on-chain.
type OrderStatus struct {
	// Remaining making amount. Zero once filled or cancelled.
	Remaining   *big.Int
	Invalidated bool
	Expired     bool
}

func (s OrderStatus) Fillable() bool {
	return !s.Invalidated && !s.Expired && s.Remaining != nil && s.Remaining.Sign() > 0
}

// Status reads the invalidator the router uses for this order's traits.
func (c *Contract) Status(ctx context.Context, o *Order, orderHash common.Hash, nowUnix int64) (OrderStatus, error) {
	st := OrderStatus{Expired: o.MakerTraits.Expiration() != 0 && uint64(nowUnix) > o.MakerTraits.Expiration()}

	if o.MakerTraits.UseBitInvalidator() {
		nonce := o.MakerTraits.Nonce()
		bitmap, err := c.BitInvalidatorForOrder(ctx, o.Maker, nonce>>8)
		if err != nil {
			return st, err
		}
		if bitmap.Bit(int(nonce&0xff)) == 1 {
			st.Invalidated = true
			st.Remaining = new(big.Int)
			return st, nil
		}
		st.Remaining = new(big.Int).Set(o.MakingAmount)
		return st, nil
	}

	raw, err := c.RemainingInvalidatorForOrder(ctx, o.Maker, orderHash)
	if err != nil {
		return st, err
	}
	st.Remaining = RemainingFromRaw(raw, o.MakingAmount)
	st.Invalidated = st.Remaining.Sign() == 0
	return st, nil
}

// RemainingFromRaw decodes the router's remaining invalidator: zero marks an
// untouched order, otherwise the slot stores the bitwise NOT of the remaining
// making amount.
func RemainingFromRaw(raw, makingAmount *big.Int) *big.Int {
	if raw == nil || raw.Sign() == 0 {
		return new(big.Int).Set(makingAmount)
	}
	return new(big.Int).Xor(raw, mask(256))
}
