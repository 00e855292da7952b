package lop

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionEncode(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		b, err := Extension{}.Encode()
		require.NoError(t, err)
		assert.Nil(t, b)
		assert.True(t, Extension{}.IsEmpty())
	})

	t.Run("predicate_only_offsets", func(t *testing.T) {
		pred := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
		b, err := Extension{Predicate: pred}.Encode()
		require.NoError(t, err)
		require.Len(t, b, 32+len(pred))

		for i := 0; i < 8; i++ {
			end := binary.BigEndian.Uint32(b[28-4*i : 32-4*i])
			if i < 4 {
				assert.Equal(t, uint32(0), end, "field %d", i)
			} else {
				assert.Equal(t, uint32(len(pred)), end, "field %d", i)
			}
		}
		assert.Equal(t, pred, b[32:])
	})

	t.Run("hash_is_keccak_of_encoding", func(t *testing.T) {
		ext := Extension{Predicate: []byte{1, 2, 3}, CustomData: []byte{9}}
		b := ext.MustEncode()
		h, err := ext.Hash()
		require.NoError(t, err)
		assert.Equal(t, crypto.Keccak256Hash(b), h)
	})
}

func TestDecodeExtension(t *testing.T) {
	t.Parallel()

	t.Run("round_trip", func(t *testing.T) {
		ext := Extension{
			MakerAssetSuffix: []byte{1},
			TakingAmountData: []byte{2, 2},
			Predicate:        []byte{3, 3, 3},
			PostInteraction:  []byte{4, 4, 4, 4},
			CustomData:       []byte{5, 5},
		}
		got, err := DecodeExtension(ext.MustEncode())
		require.NoError(t, err)
		assert.True(t, ext.Equal(got), "got %#v", got)
	})

	t.Run("empty_input", func(t *testing.T) {
		got, err := DecodeExtension(nil)
		require.NoError(t, err)
		assert.True(t, got.IsEmpty())
	})

	t.Run("short_header", func(t *testing.T) {
		_, err := DecodeExtension(make([]byte, 10))
		assert.True(t, errors.Is(err, ErrExtensionTruncated), "err=%v", err)
	})

	t.Run("offset_past_end", func(t *testing.T) {
		b := Extension{Predicate: []byte{1, 2, 3}}.MustEncode()
		_, err := DecodeExtension(b[:len(b)-1])
		assert.True(t, errors.Is(err, ErrExtensionTruncated), "err=%v", err)
	})

	t.Run("non_monotonic", func(t *testing.T) {
		b := make([]byte, 32+4)
		binary.BigEndian.PutUint32(b[28:32], 4) // field 0 ends at 4
		binary.BigEndian.PutUint32(b[24:28], 2) // field 1 ends before it
		_, err := DecodeExtension(b)
		assert.True(t, errors.Is(err, ErrExtensionOffsets), "err=%v", err)
	})
}
