package lop

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const extensionFieldCount = 8

var (
	ErrExtensionTruncated = errors.New("extension truncated")
	ErrExtensionOffsets   = errors.New("extension offsets not monotonic")
)

// Extension is the auxiliary order data appended to fillOrderArgs. The
// contract locates each field through a 32-byte offsets word placed in front
// of the concatenated fields: field i ends at the uint32 stored in bits
// [32*i, 32*i+32). CustomData follows the last field and is not indexed.
type Extension struct {
	MakerAssetSuffix []byte
	TakerAssetSuffix []byte
	MakingAmountData []byte
	TakingAmountData []byte
	Predicate        []byte
	MakerPermit      []byte
	PreInteraction   []byte
	PostInteraction  []byte
	CustomData       []byte
}

func (e Extension) fields() [extensionFieldCount][]byte {
	return [extensionFieldCount][]byte{
		e.MakerAssetSuffix,
		e.TakerAssetSuffix,
		e.MakingAmountData,
		e.TakingAmountData,
		e.Predicate,
		e.MakerPermit,
		e.PreInteraction,
		e.PostInteraction,
	}
}

func (e Extension) IsEmpty() bool {
	for _, f := range e.fields() {
		if len(f) > 0 {
			return false
		}
	}
	return len(e.CustomData) == 0
}

// Encode returns the on-chain byte layout. An empty extension encodes to nil.
func (e Extension) Encode() ([]byte, error) {
	if e.IsEmpty() {
		return nil, nil
	}

	var offsets [32]byte
	total := 0
	for i, f := range e.fields() {
		total += len(f)
		if uint64(total) > math.MaxUint32 {
			return nil, fmt.Errorf("extension field %d overflows uint32 offsets", i)
		}
		binary.BigEndian.PutUint32(offsets[28-4*i:32-4*i], uint32(total))
	}

	out := make([]byte, 0, 32+total+len(e.CustomData))
	out = append(out, offsets[:]...)
	for _, f := range e.fields() {
		out = append(out, f...)
	}
	out = append(out, e.CustomData...)
	return out, nil
}

// MustEncode is Encode for extensions built from bounded inputs.
func (e Extension) MustEncode() []byte {
	b, err := e.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// Hash is keccak256 of the encoded extension; the order salt commits to its
// low 160 bits.
func (e Extension) Hash() (common.Hash, error) {
	b, err := e.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(b), nil
}

func (e Extension) Equal(o Extension) bool {
	a, b := e.fields(), o.fields()
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return bytes.Equal(e.CustomData, o.CustomData)
}

// DecodeExtension parses the layout produced by Encode.
func DecodeExtension(b []byte) (Extension, error) {
	if len(b) == 0 {
		return Extension{}, nil
	}
	if len(b) < 32 {
		return Extension{}, fmt.Errorf("%w: %d bytes, need 32 for offsets", ErrExtensionTruncated, len(b))
	}
	data := b[32:]

	var parts [extensionFieldCount][]byte
	prev := uint32(0)
	for i := 0; i < extensionFieldCount; i++ {
		end := binary.BigEndian.Uint32(b[28-4*i : 32-4*i])
		if end < prev {
			return Extension{}, fmt.Errorf("%w: field %d ends at %d before %d", ErrExtensionOffsets, i, end, prev)
		}
		if int(end) > len(data) {
			return Extension{}, fmt.Errorf("%w: field %d ends at %d, have %d", ErrExtensionTruncated, i, end, len(data))
		}
		if end > prev {
			parts[i] = common.CopyBytes(data[prev:end])
		}
		prev = end
	}

	ext := Extension{
		MakerAssetSuffix: parts[0],
		TakerAssetSuffix: parts[1],
		MakingAmountData: parts[2],
		TakingAmountData: parts[3],
		Predicate:        parts[4],
		MakerPermit:      parts[5],
		PreInteraction:   parts[6],
		PostInteraction:  parts[7],
	}
	if int(prev) < len(data) {
		ext.CustomData = common.CopyBytes(data[prev:])
	}
	return ext, nil
}
