package lop

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DomainName    = "1inch Aggregation Router"
	DomainVersion = "6"
)

var orderTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": {
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "receiver", Type: "address"},
		{Name: "makerAsset", Type: "address"},
		{Name: "takerAsset", Type: "address"},
		{Name: "makingAmount", Type: "uint256"},
		{Name: "takingAmount", Type: "uint256"},
		{Name: "makerTraits", Type: "uint256"},
	},
}

// TypedData is the EIP-712 payload a wallet signs for this order.
func (o *Order) TypedData(chainID int64, router common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: router.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":         o.Salt,
			"maker":        o.Maker.Hex(),
			"receiver":     o.Receiver.Hex(),
			"makerAsset":   o.MakerAsset.Hex(),
			"takerAsset":   o.TakerAsset.Hex(),
			"makingAmount": o.MakingAmount,
			"takingAmount": o.TakingAmount,
			"makerTraits":  o.MakerTraits.Big(),
		},
	}
}

// Hash is the EIP-712 digest the router uses as the order hash.
func (o *Order) Hash(chainID int64, router common.Address) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(o.TypedData(chainID, router))
	if err != nil {
		return common.Hash{}, fmt.Errorf("order typed data hash: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// SignOrder returns a 65-byte r||s||v signature with v in {27, 28}.
func SignOrder(key *ecdsa.PrivateKey, o *Order, chainID int64, router common.Address) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("private key required")
	}
	if signer := crypto.PubkeyToAddress(key.PublicKey); signer != o.Maker {
		return nil, fmt.Errorf("signer %s is not order maker %s", signer.Hex(), o.Maker.Hex())
	}
	h, err := o.Hash(chainID, router)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(h.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced sig over the order hash.
func RecoverSigner(o *Order, chainID int64, router common.Address, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature length %d, want 65", len(sig))
	}
	h, err := o.Hash(chainID, router)
	if err != nil {
		return common.Address{}, err
	}
	norm := common.CopyBytes(sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	pub, err := crypto.SigToPub(h.Bytes(), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// CompactSignature converts a 65-byte signature into the EIP-2098 (r, vs)
// pair the router's fill functions take.
func CompactSignature(sig []byte) (r [32]byte, vs [32]byte, err error) {
	if len(sig) != 65 {
		return r, vs, fmt.Errorf("signature length %d, want 65", len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return r, vs, fmt.Errorf("invalid signature v=%d", sig[64])
	}
	copy(r[:], sig[:32])
	copy(vs[:], sig[32:64])
	if vs[0]&0x80 != 0 {
		return r, vs, fmt.Errorf("signature s is not in the lower half order")
	}
	if v == 1 {
		vs[0] |= 0x80
	}
	return r, vs, nil
}
