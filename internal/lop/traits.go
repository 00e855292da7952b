package lop

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Maker trait flags (bit positions in the makerTraits uint256).
const (
	NoPartialFillsFlag        uint = 255
	AllowMultipleFillsFlag    uint = 254
	PreInteractionCallFlag    uint = 252
	PostInteractionCallFlag   uint = 251
	NeedCheckEpochManagerFlag uint = 250
	HasExtensionFlag          uint = 249
	UsePermit2MakerFlag       uint = 248
	UnwrapWethMakerFlag       uint = 247
)

// Low 200 bits of makerTraits:
// uint80 allowed sender | uint40 expiration | uint40 nonce or epoch | uint40 series
const (
	allowedSenderOffset = 0
	allowedSenderBits   = 80
	expirationOffset    = 80
	nonceOffset         = 120
	seriesOffset        = 160
	uint40Bits          = 40
)

// Taker trait flags.
const (
	MakerAmountFlag     uint = 255
	UnwrapWethTakerFlag uint = 254
	SkipOrderPermitFlag uint = 253
	UsePermit2TakerFlag uint = 252
	ArgsHasTargetFlag   uint = 251
)

const (
	argsExtensionLengthOffset   = 224
	argsInteractionLengthOffset = 200
	argsLengthBits              = 24
	thresholdBits               = 185

	// MaxArgsLength is the largest extension or interaction the taker traits can describe.
	MaxArgsLength = 1<<argsLengthBits - 1
)

var maxUint40 = uint64(1)<<uint40Bits - 1

func mask(bits uint) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
}

func getField(v *big.Int, offset, bits uint) *big.Int {
	out := new(big.Int).Rsh(v, offset)
	return out.And(out, mask(bits))
}

func setField(v *big.Int, offset, bits uint, field *big.Int) *big.Int {
	keep := new(big.Int).Lsh(mask(bits), offset)
	keep.Not(keep)
	out := new(big.Int).And(v, keep)
	// big.Int.Not yields a negative number; mask back into 256 bits.
	out.And(out, mask(256))
	f := new(big.Int).And(field, mask(bits))
	return out.Or(out, f.Lsh(f, offset))
}

func withBit(v *big.Int, bit uint, on bool) *big.Int {
	out := new(big.Int).Set(v)
	if on {
		return out.SetBit(out, int(bit), 1)
	}
	return out.SetBit(out, int(bit), 0)
}

// MakerTraits is the packed makerTraits word of a v4 order. The zero value is
// valid and means "no flags, no expiration, nonce 0".
type MakerTraits struct {
	v *big.Int
}

func MakerTraitsFromBig(v *big.Int) MakerTraits {
	if v == nil {
		return MakerTraits{}
	}
	return MakerTraits{v: new(big.Int).And(v, mask(256))}
}

func (t MakerTraits) raw() *big.Int {
	if t.v == nil {
		return new(big.Int)
	}
	return t.v
}

// Big returns a copy of the packed value.
func (t MakerTraits) Big() *big.Int { return new(big.Int).Set(t.raw()) }

func (t MakerTraits) Has(flag uint) bool { return t.raw().Bit(int(flag)) == 1 }

func (t MakerTraits) With(flag uint, on bool) MakerTraits {
	return MakerTraits{v: withBit(t.raw(), flag, on)}
}

func (t MakerTraits) AllowPartialFills() bool  { return !t.Has(NoPartialFillsFlag) }
func (t MakerTraits) AllowMultipleFills() bool { return t.Has(AllowMultipleFillsFlag) }
func (t MakerTraits) HasExtension() bool       { return t.Has(HasExtensionFlag) }

// UseBitInvalidator mirrors the contract: orders that cannot be filled more
// than once are invalidated through the maker's nonce bitmap instead of the
// per-order remaining amount.
func (t MakerTraits) UseBitInvalidator() bool {
	return !t.AllowPartialFills() || !t.AllowMultipleFills()
}

// AllowedSender returns the low 80 bits of the only address allowed to fill.
// Zero means anyone may fill.
func (t MakerTraits) AllowedSender() *big.Int {
	return getField(t.raw(), allowedSenderOffset, allowedSenderBits)
}

func (t MakerTraits) WithAllowedSender(sender common.Address) MakerTraits {
	return MakerTraits{v: setField(t.raw(), allowedSenderOffset, allowedSenderBits, new(big.Int).SetBytes(sender.Bytes()))}
}

// IsAllowedSender reports whether sender may fill an order with these traits.
func (t MakerTraits) IsAllowedSender(sender common.Address) bool {
	want := t.AllowedSender()
	if want.Sign() == 0 {
		return true
	}
	got := getField(new(big.Int).SetBytes(sender.Bytes()), 0, allowedSenderBits)
	return want.Cmp(got) == 0
}

// Expiration is a unix timestamp; zero means the order never expires.
func (t MakerTraits) Expiration() uint64 {
	return getField(t.raw(), expirationOffset, uint40Bits).Uint64()
}

func (t MakerTraits) WithExpiration(unix uint64) MakerTraits {
	return MakerTraits{v: setField(t.raw(), expirationOffset, uint40Bits, new(big.Int).SetUint64(unix&maxUint40))}
}

func (t MakerTraits) IsExpired(now time.Time) bool {
	exp := t.Expiration()
	return exp != 0 && uint64(now.Unix()) > exp
}

func (t MakerTraits) Nonce() uint64 {
	return getField(t.raw(), nonceOffset, uint40Bits).Uint64()
}

func (t MakerTraits) WithNonce(nonce uint64) MakerTraits {
	return MakerTraits{v: setField(t.raw(), nonceOffset, uint40Bits, new(big.Int).SetUint64(nonce&maxUint40))}
}

func (t MakerTraits) Series() uint64 {
	return getField(t.raw(), seriesOffset, uint40Bits).Uint64()
}

func (t MakerTraits) WithSeries(series uint64) MakerTraits {
	return MakerTraits{v: setField(t.raw(), seriesOffset, uint40Bits, new(big.Int).SetUint64(series&maxUint40))}
}

// TakerTraits is the packed takerTraits word passed to fillOrder/fillOrderArgs.
type TakerTraits struct {
	v *big.Int
}

func TakerTraitsFromBig(v *big.Int) TakerTraits {
	if v == nil {
		return TakerTraits{}
	}
	return TakerTraits{v: new(big.Int).And(v, mask(256))}
}

func (t TakerTraits) raw() *big.Int {
	if t.v == nil {
		return new(big.Int)
	}
	return t.v
}

func (t TakerTraits) Big() *big.Int { return new(big.Int).Set(t.raw()) }

func (t TakerTraits) Has(flag uint) bool { return t.raw().Bit(int(flag)) == 1 }

func (t TakerTraits) With(flag uint, on bool) TakerTraits {
	return TakerTraits{v: withBit(t.raw(), flag, on)}
}

// IsMakingAmount reports whether the fill amount is denominated in the maker asset.
func (t TakerTraits) IsMakingAmount() bool { return t.Has(MakerAmountFlag) }

// Threshold bounds the other side of the fill: the maximum taking amount when
// the amount is a making amount, the minimum making amount otherwise. Zero
// disables the check.
func (t TakerTraits) Threshold() *big.Int {
	return getField(t.raw(), 0, thresholdBits)
}

func (t TakerTraits) WithThreshold(v *big.Int) TakerTraits {
	if v == nil {
		v = new(big.Int)
	}
	return TakerTraits{v: setField(t.raw(), 0, thresholdBits, v)}
}

func (t TakerTraits) ExtensionLength() int {
	return int(getField(t.raw(), argsExtensionLengthOffset, argsLengthBits).Int64())
}

func (t TakerTraits) WithExtensionLength(n int) TakerTraits {
	return TakerTraits{v: setField(t.raw(), argsExtensionLengthOffset, argsLengthBits, big.NewInt(int64(n)))}
}

func (t TakerTraits) InteractionLength() int {
	return int(getField(t.raw(), argsInteractionLengthOffset, argsLengthBits).Int64())
}

func (t TakerTraits) WithInteractionLength(n int) TakerTraits {
	return TakerTraits{v: setField(t.raw(), argsInteractionLengthOffset, argsLengthBits, big.NewInt(int64(n)))}
}
