package lop

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SignedOrder is an order plus everything a filler needs: the extension it
// commits to, the maker's signature, and the domain it was signed for.
type SignedOrder struct {
	ChainID   int64
	Router    common.Address
	Order     *Order
	Extension Extension
	Signature []byte
}

func (s *SignedOrder) Hash() (common.Hash, error) {
	if s == nil || s.Order == nil {
		return common.Hash{}, fmt.Errorf("order required")
	}
	return s.Order.Hash(s.ChainID, s.Router)
}

// Verify checks that the extension binding holds and that the signature
// recovers to the maker.
func (s *SignedOrder) Verify() error {
	if s == nil || s.Order == nil {
		return fmt.Errorf("order required")
	}
	if err := s.Order.ValidateExtension(s.Extension); err != nil {
		return err
	}
	signer, err := RecoverSigner(s.Order, s.ChainID, s.Router, s.Signature)
	if err != nil {
		return err
	}
	if signer != s.Order.Maker {
		return fmt.Errorf("signature recovers to %s, maker is %s", signer.Hex(), s.Order.Maker.Hex())
	}
	return nil
}

// FillParams returns params for filling the whole making amount.
func (s *SignedOrder) FillParams() FillParams {
	return FillParams{
		Order:     s.Order,
		Signature: s.Signature,
		Amount:    new(big.Int).Set(s.Order.MakingAmount),
		Traits:    FullMakingFillTraits(s.Order),
		Extension: s.Extension,
	}
}

type orderJSON struct {
	Salt         string `json:"salt"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	MakerTraits  string `json:"makerTraits"`
}

type signedOrderJSON struct {
	ChainID   int64     `json:"chainId"`
	Router    string    `json:"router"`
	OrderHash string    `json:"orderHash,omitempty"`
	Order     orderJSON `json:"order"`
	Extension string    `json:"extension"`
	Signature string    `json:"signature"`
}

func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.toJSON())
}

func (o *Order) UnmarshalJSON(b []byte) error {
	var raw orderJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := raw.toOrder()
	if err != nil {
		return err
	}
	*o = *parsed
	return nil
}

func (o *Order) toJSON() orderJSON {
	return orderJSON{
		Salt:         o.Salt.String(),
		Maker:        o.Maker.Hex(),
		Receiver:     o.Receiver.Hex(),
		MakerAsset:   o.MakerAsset.Hex(),
		TakerAsset:   o.TakerAsset.Hex(),
		MakingAmount: o.MakingAmount.String(),
		TakingAmount: o.TakingAmount.String(),
		MakerTraits:  hexutil.EncodeBig(o.MakerTraits.Big()),
	}
}

func (raw orderJSON) toOrder() (*Order, error) {
	parseUint := func(name, v string) (*big.Int, error) {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, fmt.Errorf("%s missing", name)
		}
		n, ok := new(big.Int).SetString(v, 0)
		if !ok || n.Sign() < 0 || n.BitLen() > 256 {
			return nil, fmt.Errorf("invalid %s %q", name, v)
		}
		return n, nil
	}
	parseAddr := func(name, v string) (common.Address, error) {
		v = strings.TrimSpace(v)
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("invalid %s %q", name, v)
		}
		return common.HexToAddress(v), nil
	}

	var (
		o   Order
		err error
	)
	if o.Salt, err = parseUint("salt", raw.Salt); err != nil {
		return nil, err
	}
	if o.Maker, err = parseAddr("maker", raw.Maker); err != nil {
		return nil, err
	}
	if o.Receiver, err = parseAddr("receiver", raw.Receiver); err != nil {
		return nil, err
	}
	if o.MakerAsset, err = parseAddr("makerAsset", raw.MakerAsset); err != nil {
		return nil, err
	}
	if o.TakerAsset, err = parseAddr("takerAsset", raw.TakerAsset); err != nil {
		return nil, err
	}
	if o.MakingAmount, err = parseUint("makingAmount", raw.MakingAmount); err != nil {
		return nil, err
	}
	if o.TakingAmount, err = parseUint("takingAmount", raw.TakingAmount); err != nil {
		return nil, err
	}
	traits, err := parseUint("makerTraits", raw.MakerTraits)
	if err != nil {
		return nil, err
	}
	o.MakerTraits = MakerTraitsFromBig(traits)
	return &o, nil
}

func (s *SignedOrder) MarshalJSON() ([]byte, error) {
	if s.Order == nil {
		return nil, fmt.Errorf("order required")
	}
	ext, err := s.Extension.Encode()
	if err != nil {
		return nil, err
	}
	out := signedOrderJSON{
		ChainID:   s.ChainID,
		Router:    s.Router.Hex(),
		Order:     s.Order.toJSON(),
		Extension: hexutil.Encode(ext),
		Signature: hexutil.Encode(s.Signature),
	}
	if h, err := s.Hash(); err == nil {
		out.OrderHash = h.Hex()
	}
	return json.Marshal(out)
}

func (s *SignedOrder) UnmarshalJSON(b []byte) error {
	var raw signedOrderJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !common.IsHexAddress(raw.Router) {
		return fmt.Errorf("invalid router %q", raw.Router)
	}
	o, err := raw.Order.toOrder()
	if err != nil {
		return err
	}
	extBytes, err := decodeHexField("extension", raw.Extension)
	if err != nil {
		return err
	}
	ext, err := DecodeExtension(extBytes)
	if err != nil {
		return err
	}
	sig, err := decodeHexField("signature", raw.Signature)
	if err != nil {
		return err
	}

	*s = SignedOrder{
		ChainID:   raw.ChainID,
		Router:    common.HexToAddress(raw.Router),
		Order:     o,
		Extension: ext,
		Signature: sig,
	}
	if raw.OrderHash != "" {
		h, err := s.Hash()
		if err != nil {
			return err
		}
		if !strings.EqualFold(h.Hex(), raw.OrderHash) {
			return fmt.Errorf("order hash mismatch: file=%s computed=%s", raw.OrderHash, h.Hex())
		}
	}
	return nil
}

func decodeHexField(name, v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "0x" {
		return nil, nil
	}
	b, err := hexutil.Decode(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}
