package ethutil

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ParseAddress parses a single non-zero hex address. name is used in errors.
func ParseAddress(name, raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return common.Address{}, fmt.Errorf("%s required", name)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid hex address %q", name, s)
	}
	addr := common.HexToAddress(s)
	if (addr == common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", name)
	}
	return addr, nil
}

// ParseAddressList parses a list of hex addresses from a single string.
//
// Supported separators: commas and whitespace (space/newline/tab), plus semicolons.
// Duplicate addresses are ignored (first occurrence wins).
//
// Returns (nil, nil) if raw is empty/whitespace.
func ParseAddressList(raw string) ([]common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	out := make([]common.Address, 0)
	seen := make(map[common.Address]struct{})
	for _, s := range SplitList(trimmed) {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid hex address %q in %q", s, raw)
		}

		addr := common.HexToAddress(s)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no addresses found in %q", raw)
	}
	return out, nil
}

// SplitList splits on commas, semicolons and whitespace, dropping empty parts.
func SplitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
}

func JoinHex(addrs []common.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.Hex())
	}
	return strings.Join(parts, ",")
}

// ParsePrivateKey accepts a hex key with or without 0x.
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, common.Address, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if s == "" {
		return nil, common.Address{}, fmt.Errorf("PRIVATE_KEY required")
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		// never echo the key
		return nil, common.Address{}, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}
