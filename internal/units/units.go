package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxUint256 is 2^256-1, the conventional "unlimited" ERC20 allowance.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseUnits converts a human decimal amount ("0.1") into base units for a token
// with the given decimals. Amounts with more fractional digits than decimals are
// rejected rather than silently truncated.
func ParseUnits(raw string, decimals int32) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("amount required")
	}
	if decimals < 0 || decimals > 77 {
		return nil, fmt.Errorf("invalid decimals %d", decimals)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must be >= 0", raw)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", raw, decimals)
	}
	out := scaled.BigInt()
	if out.Cmp(MaxUint256) > 0 {
		return nil, fmt.Errorf("amount %q overflows uint256", raw)
	}
	return out, nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(x *big.Int, decimals int32) string {
	if x == nil {
		return "0"
	}
	if decimals <= 0 {
		return x.String()
	}
	return decimal.NewFromBigInt(x, -decimals).String()
}

// IsUnlimited reports whether an allowance is effectively max(uint256).
// Some tokens decrement max allowances on transferFrom, so anything above
// 2^255 is treated as unlimited.
func IsUnlimited(x *big.Int) bool {
	if x == nil {
		return false
	}
	return x.BitLen() >= 256
}
