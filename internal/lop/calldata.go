package lop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FillParams describes one fill of a signed order.
type FillParams struct {
	Order     *Order
	Signature []byte

	// Amount is a making amount when Traits has MAKER_AMOUNT set, a taking
	// amount otherwise.
	Amount *big.Int
	Traits TakerTraits

	// Args for fillOrderArgs. Target redirects the maker asset; zero sends
	// it to the taker.
	Target      common.Address
	Extension   Extension
	Interaction []byte
}

// FullMakingFillTraits requests the whole making amount and caps what the
// taker pays at the order's taking amount.
func FullMakingFillTraits(o *Order) TakerTraits {
	return TakerTraits{}.With(MakerAmountFlag, true).WithThreshold(o.TakingAmount)
}

// NeedsArgs reports whether the fill has to go through fillOrderArgs.
func (p FillParams) NeedsArgs() bool {
	return !p.Extension.IsEmpty() || len(p.Interaction) > 0 || (p.Target != common.Address{})
}

// Calldata picks fillOrder or fillOrderArgs. An order that commits to an
// extension can only be filled with fillOrderArgs carrying that extension.
func (p FillParams) Calldata() ([]byte, TakerTraits, error) {
	if p.Order == nil {
		return nil, TakerTraits{}, fmt.Errorf("order required")
	}
	if err := p.Order.ValidateExtension(p.Extension); err != nil {
		return nil, TakerTraits{}, err
	}
	if p.NeedsArgs() {
		return FillOrderArgsCalldata(p)
	}
	data, err := FillOrderCalldata(p.Order, p.Signature, p.Amount, p.Traits)
	return data, p.Traits, err
}

// FillOrderCalldata encodes fillOrder(order, r, vs, amount, takerTraits).
func FillOrderCalldata(o *Order, sig []byte, amount *big.Int, traits TakerTraits) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("order required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("fill amount must be > 0")
	}
	if o.MakerTraits.HasExtension() {
		return nil, fmt.Errorf("order has an extension, use fillOrderArgs")
	}
	r, vs, err := CompactSignature(sig)
	if err != nil {
		return nil, err
	}
	return routerABI.Pack("fillOrder", o.tuple(), r, vs, amount, traits.Big())
}

// FillOrderArgsCalldata encodes fillOrderArgs. The args blob is
// [target(20)] ++ extension ++ interaction and the returned traits carry the
// matching length fields and ARGS_HAS_TARGET bit.
func FillOrderArgsCalldata(p FillParams) ([]byte, TakerTraits, error) {
	if p.Order == nil {
		return nil, TakerTraits{}, fmt.Errorf("order required")
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, TakerTraits{}, fmt.Errorf("fill amount must be > 0")
	}
	r, vs, err := CompactSignature(p.Signature)
	if err != nil {
		return nil, TakerTraits{}, err
	}
	ext, err := p.Extension.Encode()
	if err != nil {
		return nil, TakerTraits{}, err
	}
	if len(ext) > MaxArgsLength {
		return nil, TakerTraits{}, fmt.Errorf("extension length %d exceeds %d", len(ext), MaxArgsLength)
	}
	if len(p.Interaction) > MaxArgsLength {
		return nil, TakerTraits{}, fmt.Errorf("interaction length %d exceeds %d", len(p.Interaction), MaxArgsLength)
	}

	traits := p.Traits.
		WithExtensionLength(len(ext)).
		WithInteractionLength(len(p.Interaction)).
		With(ArgsHasTargetFlag, p.Target != common.Address{})

	args := make([]byte, 0, common.AddressLength+len(ext)+len(p.Interaction))
	if (p.Target != common.Address{}) {
		args = append(args, p.Target.Bytes()...)
	}
	args = append(args, ext...)
	args = append(args, p.Interaction...)

	data, err := routerABI.Pack("fillOrderArgs", p.Order.tuple(), r, vs, p.Amount, traits.Big(), args)
	if err != nil {
		return nil, TakerTraits{}, err
	}
	return data, traits, nil
}

// CancelOrderCalldata encodes cancelOrder(makerTraits, orderHash).
func CancelOrderCalldata(traits MakerTraits, orderHash common.Hash) ([]byte, error) {
	return routerABI.Pack("cancelOrder", traits.Big(), orderHash)
}

func RemainingInvalidatorCalldata(maker common.Address, orderHash common.Hash) ([]byte, error) {
	return routerABI.Pack("rawRemainingInvalidatorForOrder", maker, orderHash)
}

func BitInvalidatorCalldata(maker common.Address, slot uint64) ([]byte, error) {
	return routerABI.Pack("bitInvalidatorForOrder", maker, new(big.Int).SetUint64(slot))
}
