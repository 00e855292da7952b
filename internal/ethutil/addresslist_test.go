package ethutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddressList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got, err := ParseAddressList("   \n\t")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %#v", got)
		}
	})

	t.Run("single", func(t *testing.T) {
		got, err := ParseAddressList("0x0000000000000000000000000000000000000001")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(got) != 1 || got[0] != common.HexToAddress("0x1") {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("csv+whitespace+dedupe", func(t *testing.T) {
		got, err := ParseAddressList("0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002\n0x0000000000000000000000000000000000000001")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2, got %d: %#v", len(got), got)
		}
		if got[0] != common.HexToAddress("0x1") || got[1] != common.HexToAddress("0x2") {
			t.Fatalf("unexpected order: %#v", got)
		}
		if JoinHex(got) != common.HexToAddress("0x1").Hex()+","+common.HexToAddress("0x2").Hex() {
			t.Fatalf("unexpected join: %s", JoinHex(got))
		}
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseAddressList("0xnotanaddress")
		if err == nil {
			t.Fatalf("expected err")
		}
	})
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	if _, err := ParseAddress("LOP_ADDRESS", ""); err == nil {
		t.Fatalf("expected err for empty")
	}
	if _, err := ParseAddress("LOP_ADDRESS", "0x0000000000000000000000000000000000000000"); err == nil {
		t.Fatalf("expected err for zero address")
	}
	if _, err := ParseAddress("LOP_ADDRESS", "YOUR_DEPLOYED_TRADER_HEDGE_LOP_ADDRESS"); err == nil {
		t.Fatalf("expected err for placeholder")
	}
	got, err := ParseAddress("LOP_ADDRESS", " 0x111111125421ca6dc452d289314280a0f8842a65 ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65") {
		t.Fatalf("got %s", got.Hex())
	}
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()

	const hexKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	_, a, err := ParsePrivateKey(hexKey)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	_, b, err := ParsePrivateKey("0x" + hexKey)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if a != b {
		t.Fatalf("prefix changed address: %s vs %s", a.Hex(), b.Hex())
	}
	if _, _, err := ParsePrivateKey("0x1234"); err == nil {
		t.Fatalf("expected err for short key")
	}
	if _, _, err := ParsePrivateKey(""); err == nil {
		t.Fatalf("expected err for empty key")
	}
}
