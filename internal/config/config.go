// Package config reads the tools' shared settings from the environment.
// Command-line flags override individual fields after Load.
package config

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	"github.com/harshkas4na/VolatilityProtection/internal/dotenv"
	"github.com/harshkas4na/VolatilityProtection/internal/ethutil"
	"github.com/harshkas4na/VolatilityProtection/internal/lop"
)

// Base mainnet deployments used by the hedge demos.
var (
	DefaultVolatilityChecker = common.HexToAddress("0x46d38CCB6B28CD7ed5e029DD835821260BC70914")
	DefaultDynamicFeeHook    = common.HexToAddress("0xDD91b0AE5cF2b63EC0809F90BC37F710e90a0080")
	BaseDAI                  = common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb")
	BaseUSDC                 = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

// DefaultBaseRPCs are public Base endpoints tried in order when no RPC is configured.
var DefaultBaseRPCs = []string{
	"https://mainnet.base.org",
	"https://base-mainnet.public.blastapi.io",
	"https://1rpc.io/base",
	"https://base.blockpi.network/v1/rpc/public",
}

type Config struct {
	PrivateKey string `env:"PRIVATE_KEY"`

	RPCURLs         []string      `env:"RPC_URLS" envSeparator:","`
	BaseRPCURL      string        `env:"BASE_RPC_URL"`
	RPCURL          string        `env:"RPC_URL"`
	RPCProbeTimeout time.Duration `env:"RPC_PROBE_TIMEOUT" envDefault:"8s"`

	LOPAddress               string `env:"LOP_ADDRESS"`
	VolatilityCheckerAddress string `env:"VOLATILITY_CHECKER_ADDRESS"`
	DynamicFeeHookAddress    string `env:"DYNAMIC_FEE_HOOK_ADDRESS"`
	TraderHedgeLOPAddress    string `env:"TRADER_HEDGE_LOP_ADDRESS"`
	MakerAsset               string `env:"MAKER_ASSET"`
	TakerAsset               string `env:"TAKER_ASSET"`

	OrderDB      string `env:"ORDER_DB" envDefault:"data/orders.db"`
	JournalPath  string `env:"JOURNAL_PATH" envDefault:"data/journal.jsonl"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := dotenv.Load(); err != nil {
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Endpoints returns RPC_URLS when set, else BASE_RPC_URL or RPC_URL, else
// the public Base list.
func (c Config) Endpoints() []string {
	var out []string
	for _, u := range c.RPCURLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	if len(out) > 0 {
		return out
	}
	if u := firstNonEmpty(c.BaseRPCURL, c.RPCURL); u != "" {
		return []string{strings.TrimSpace(u)}
	}
	return append([]string(nil), DefaultBaseRPCs...)
}

func (c Config) Key() (*ecdsa.PrivateKey, common.Address, error) {
	return ethutil.ParsePrivateKey(c.PrivateKey)
}

func (c Config) LOP() (common.Address, error) {
	return addressOr("LOP_ADDRESS", c.LOPAddress, lop.MainnetAddress)
}

func (c Config) VolatilityChecker() (common.Address, error) {
	return addressOr("VOLATILITY_CHECKER_ADDRESS", c.VolatilityCheckerAddress, DefaultVolatilityChecker)
}

func (c Config) DynamicFeeHook() (common.Address, error) {
	return addressOr("DYNAMIC_FEE_HOOK_ADDRESS", c.DynamicFeeHookAddress, DefaultDynamicFeeHook)
}

// TraderHedgeLOP has no default: every trader deploys their own.
func (c Config) TraderHedgeLOP() (common.Address, error) {
	return ethutil.ParseAddress("TRADER_HEDGE_LOP_ADDRESS", c.TraderHedgeLOPAddress)
}

// Assets returns the configured pair, falling back to the given defaults.
func (c Config) Assets(defMaker, defTaker common.Address) (maker, taker common.Address, err error) {
	if maker, err = addressOr("MAKER_ASSET", c.MakerAsset, defMaker); err != nil {
		return
	}
	if taker, err = addressOr("TAKER_ASSET", c.TakerAsset, defTaker); err != nil {
		return
	}
	if maker == taker {
		err = fmt.Errorf("MAKER_ASSET and TAKER_ASSET are both %s", maker.Hex())
	}
	return
}

func addressOr(name, raw string, def common.Address) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return ethutil.ParseAddress(name, raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
