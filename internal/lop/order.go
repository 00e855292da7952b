// Package lop builds, hashes, signs and encodes orders for the 1inch Limit
// Order Protocol v4.
package lop

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	baseSaltBits = 96
	saltHashBits = 160
	nonceBits    = 40
)

var (
	ErrExtensionFlagMismatch = errors.New("HAS_EXTENSION flag does not match extension")
	ErrExtensionSaltMismatch = errors.New("order salt does not commit to extension hash")
)

type Order struct {
	Salt         *big.Int
	Maker        common.Address
	Receiver     common.Address
	MakerAsset   common.Address
	TakerAsset   common.Address
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  MakerTraits
}

type OrderParams struct {
	Maker        common.Address
	Receiver     common.Address // zero means the maker receives
	MakerAsset   common.Address
	TakerAsset   common.Address
	MakingAmount *big.Int
	TakingAmount *big.Int

	// Traits nil selects the defaults: single fill through the bit
	// invalidator with a random nonce so unrelated orders do not share a bit.
	Traits *MakerTraits

	// BaseSalt nil draws 96 random bits.
	BaseSalt *big.Int
}

// NewOrder assembles an order and binds ext into it: a non-empty extension
// sets HAS_EXTENSION and places uint160(keccak256(ext)) in the low salt bits.
func NewOrder(p OrderParams, ext Extension) (*Order, error) {
	if (p.Maker == common.Address{}) {
		return nil, fmt.Errorf("maker address required")
	}
	if (p.MakerAsset == common.Address{}) || (p.TakerAsset == common.Address{}) {
		return nil, fmt.Errorf("maker and taker assets required")
	}
	if p.MakerAsset == p.TakerAsset {
		return nil, fmt.Errorf("maker and taker asset must differ (%s)", p.MakerAsset.Hex())
	}
	if p.MakingAmount == nil || p.MakingAmount.Sign() <= 0 {
		return nil, fmt.Errorf("making amount must be > 0")
	}
	if p.TakingAmount == nil || p.TakingAmount.Sign() <= 0 {
		return nil, fmt.Errorf("taking amount must be > 0")
	}
	if p.MakingAmount.BitLen() > 256 || p.TakingAmount.BitLen() > 256 {
		return nil, fmt.Errorf("amount overflows uint256")
	}

	var traits MakerTraits
	if p.Traits != nil {
		traits = *p.Traits
	} else {
		nonce, err := randomBits(nonceBits)
		if err != nil {
			return nil, err
		}
		traits = MakerTraits{}.WithNonce(nonce.Uint64())
	}

	base := p.BaseSalt
	if base == nil {
		var err error
		base, err = randomBits(baseSaltBits)
		if err != nil {
			return nil, err
		}
	}
	if base.Sign() < 0 {
		return nil, fmt.Errorf("salt must be >= 0")
	}

	salt := new(big.Int).Set(base)
	if ext.IsEmpty() {
		traits = traits.With(HasExtensionFlag, false)
	} else {
		h, err := ext.Hash()
		if err != nil {
			return nil, err
		}
		salt.Lsh(base, saltHashBits)
		salt.Or(salt, new(big.Int).And(h.Big(), mask(saltHashBits)))
		traits = traits.With(HasExtensionFlag, true)
	}
	if salt.BitLen() > 256 {
		return nil, fmt.Errorf("salt overflows uint256")
	}

	return &Order{
		Salt:         salt,
		Maker:        p.Maker,
		Receiver:     p.Receiver,
		MakerAsset:   p.MakerAsset,
		TakerAsset:   p.TakerAsset,
		MakingAmount: new(big.Int).Set(p.MakingAmount),
		TakingAmount: new(big.Int).Set(p.TakingAmount),
		MakerTraits:  traits,
	}, nil
}

// ValidateExtension applies the contract's extension check: the flag must
// match the presence of an extension and the salt must commit to its hash.
func (o *Order) ValidateExtension(ext Extension) error {
	if o.MakerTraits.HasExtension() != !ext.IsEmpty() {
		return fmt.Errorf("%w: flag=%t extension_empty=%t", ErrExtensionFlagMismatch, o.MakerTraits.HasExtension(), ext.IsEmpty())
	}
	if ext.IsEmpty() {
		return nil
	}
	h, err := ext.Hash()
	if err != nil {
		return err
	}
	want := new(big.Int).And(h.Big(), mask(saltHashBits))
	got := new(big.Int).And(o.Salt, mask(saltHashBits))
	if want.Cmp(got) != 0 {
		return fmt.Errorf("%w: salt_low=0x%x hash_low=0x%x", ErrExtensionSaltMismatch, got, want)
	}
	return nil
}

// EffectiveReceiver is where the taker asset is delivered.
func (o *Order) EffectiveReceiver() common.Address {
	if (o.Receiver == common.Address{}) {
		return o.Maker
	}
	return o.Receiver
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Salt = new(big.Int).Set(o.Salt)
	c.MakingAmount = new(big.Int).Set(o.MakingAmount)
	c.TakingAmount = new(big.Int).Set(o.TakingAmount)
	c.MakerTraits = MakerTraitsFromBig(o.MakerTraits.Big())
	return &c
}

func randomBits(bits uint) (*big.Int, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), bits))
	if err != nil {
		return nil, fmt.Errorf("random salt: %w", err)
	}
	return n, nil
}
