package hedge

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
)

// DefaultVolatilityThreshold is the dynamic fee (in hundredths of a bip,
// 5000 = 0.5%) above which the pool counts as volatile.
const DefaultVolatilityThreshold = 5000

const maxUint24 = 1<<24 - 1

const hedgeABIJSON = `[
  {"type":"function","name":"checkVolatility","stateMutability":"view","inputs":[
    {"name":"hook","type":"address"},{"name":"threshold","type":"uint24"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isHedgeActiveFor","stateMutability":"view","inputs":[
    {"name":"trader","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"demoSetter","stateMutability":"nonpayable","inputs":[
    {"name":"rvmId","type":"address"},{"name":"trader","type":"address"}],
   "outputs":[]}
]`

var hedgeABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(hedgeABIJSON))
	if err != nil {
		panic(fmt.Sprintf("hedge abi parse: %v", err))
	}
	return parsed
}()

// VolatilityCheckCalldata encodes checkVolatility(hook, threshold).
func VolatilityCheckCalldata(hook common.Address, threshold uint32) ([]byte, error) {
	if (hook == common.Address{}) {
		return nil, fmt.Errorf("hook address required")
	}
	if threshold > maxUint24 {
		return nil, fmt.Errorf("threshold %d does not fit uint24", threshold)
	}
	return hedgeABI.Pack("checkVolatility", hook, new(big.Int).SetUint64(uint64(threshold)))
}

// VolatilityPredicate is true while the checker reports the hook's pool as
// volatile at threshold. The checker returns 1 for volatile, 0 otherwise.
func VolatilityPredicate(checker, hook common.Address, threshold uint32) ([]byte, error) {
	call, err := VolatilityCheckCalldata(hook, threshold)
	if err != nil {
		return nil, err
	}
	return lop.ArbitraryStaticCall(checker, call)
}

// HedgeActivePredicate is true while the hedge contract has the maker armed.
func HedgeActivePredicate(hedgeContract, maker common.Address) ([]byte, error) {
	if (maker == common.Address{}) {
		return nil, fmt.Errorf("maker required")
	}
	call, err := hedgeABI.Pack("isHedgeActiveFor", maker)
	if err != nil {
		return nil, err
	}
	return lop.ArbitraryStaticCall(hedgeContract, call)
}

// ArmHedgeCalldata encodes demoSetter(rvmID, trader), the manual stand-in for
// the reactive contract's callback that arms trader's hedge.
func ArmHedgeCalldata(rvmID, trader common.Address) ([]byte, error) {
	if (trader == common.Address{}) {
		return nil, fmt.Errorf("trader required")
	}
	return hedgeABI.Pack("demoSetter", rvmID, trader)
}
