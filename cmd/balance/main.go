package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/harshkas4na/VolatilityProtection/internal/chain"
	"github.com/harshkas4na/VolatilityProtection/internal/config"
	"github.com/harshkas4na/VolatilityProtection/internal/erc20"
	"github.com/harshkas4na/VolatilityProtection/internal/ethutil"
	"github.com/harshkas4na/VolatilityProtection/internal/units"
)

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var addrFlag, tokensFlag string
	flag.StringVar(&addrFlag, "address", "", "Wallet address to check (default: signer from PRIVATE_KEY)")
	flag.StringVar(&tokensFlag, "tokens", "", "Tokens to check (comma-separated; default MAKER_ASSET/TAKER_ASSET or DAI,USDC)")
	flag.Parse()

	owner, ownerSrc, err := resolveOwner(cfg, addrFlag)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	tokens, err := resolveTokens(cfg, tokensFlag)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	router, err := cfg.LOP()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sess, err := chain.Connect(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer sess.Close()

	native, err := sess.Client.BalanceAt(ctx, owner, nil)
	if err != nil {
		log.Fatalf("[fatal] native balance: %v", err)
	}

	fmt.Printf("owner: %s (%s)\n", owner.Hex(), ownerSrc)
	fmt.Printf("router: %s\n", router.Hex())
	fmt.Printf("native_balance: %s ETH\n", units.FormatUnits(native, 18))
	for _, addr := range tokens {
		tok := erc20.New(addr, sess.Client)
		symbol := tok.Symbol(ctx)
		dec, err := tok.Decimals(ctx)
		if err != nil {
			log.Printf("[warn] %s decimals: %v", addr.Hex(), err)
			continue
		}
		bal, err := tok.BalanceOf(ctx, owner)
		if err != nil {
			log.Printf("[warn] %s balance: %v", symbol, err)
			continue
		}
		allowance, err := tok.Allowance(ctx, owner, router)
		if err != nil {
			log.Printf("[warn] %s allowance: %v", symbol, err)
			continue
		}
		allowanceText := units.FormatUnits(allowance, int32(dec))
		if units.IsUnlimited(allowance) {
			allowanceText = "unlimited"
		}
		fmt.Printf("%s_balance: %s (raw=%s)\n", strings.ToLower(symbol), units.FormatUnits(bal, int32(dec)), bal)
		fmt.Printf("%s_allowance: %s\n", strings.ToLower(symbol), allowanceText)
	}
}

func resolveOwner(cfg config.Config, addrFlag string) (common.Address, string, error) {
	if strings.TrimSpace(addrFlag) != "" {
		addr, err := ethutil.ParseAddress("--address", addrFlag)
		return addr, "--address", err
	}
	if strings.TrimSpace(cfg.PrivateKey) != "" {
		_, addr, err := cfg.Key()
		return addr, "PRIVATE_KEY", err
	}
	return common.Address{}, "", fmt.Errorf("wallet required: set PRIVATE_KEY or pass --address")
}

func resolveTokens(cfg config.Config, tokensFlag string) ([]common.Address, error) {
	if strings.TrimSpace(tokensFlag) != "" {
		return ethutil.ParseAddressList(tokensFlag)
	}
	maker, taker, err := cfg.Assets(config.BaseDAI, config.BaseUSDC)
	if err != nil {
		return nil, err
	}
	return []common.Address{maker, taker}, nil
}
