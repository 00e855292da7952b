package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	t.Parallel()

	t.Run("dai_18", func(t *testing.T) {
		got, err := ParseUnits("0.1", 18)
		require.NoError(t, err)
		assert.Equal(t, "100000000000000000", got.String())
	})

	t.Run("usdc_6", func(t *testing.T) {
		got, err := ParseUnits(" 0.1 ", 6)
		require.NoError(t, err)
		assert.Equal(t, "100000", got.String())
	})

	t.Run("integer", func(t *testing.T) {
		got, err := ParseUnits("25", 6)
		require.NoError(t, err)
		assert.Equal(t, "25000000", got.String())
	})

	t.Run("too_precise", func(t *testing.T) {
		_, err := ParseUnits("0.0000001", 6)
		require.Error(t, err)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := ParseUnits("-1", 6)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseUnits("abc", 6)
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseUnits("   ", 6)
		require.Error(t, err)
	})
}

func TestFormatUnits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.1", FormatUnits(big.NewInt(100_000), 6))
	assert.Equal(t, "1.5", FormatUnits(new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)), 18))
	assert.Equal(t, "0", FormatUnits(nil, 6))
	assert.Equal(t, "42", FormatUnits(big.NewInt(42), 0))
}

func TestIsUnlimited(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUnlimited(MaxUint256))
	assert.True(t, IsUnlimited(new(big.Int).Sub(MaxUint256, big.NewInt(1_000_000))))
	assert.False(t, IsUnlimited(big.NewInt(1)))
	assert.False(t, IsUnlimited(nil))
}
