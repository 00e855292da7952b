package lop

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MainnetAddress is the Aggregation Router v6 (Limit Order Protocol v4). It is
// deployed at the same address on every supported chain, Base included.
var MainnetAddress = common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65")

const orderTupleJSON = `{"name":"order","type":"tuple","internalType":"struct IOrderMixin.Order","components":[
      {"internalType":"uint256","name":"salt","type":"uint256"},
      {"internalType":"Address","name":"maker","type":"uint256"},
      {"internalType":"Address","name":"receiver","type":"uint256"},
      {"internalType":"Address","name":"makerAsset","type":"uint256"},
      {"internalType":"Address","name":"takerAsset","type":"uint256"},
      {"internalType":"uint256","name":"makingAmount","type":"uint256"},
      {"internalType":"uint256","name":"takingAmount","type":"uint256"},
      {"internalType":"MakerTraits","name":"makerTraits","type":"uint256"}
    ]}`

// Subset of the router ABI used by this module. Address and trait types are
// user-defined uint256 wrappers on-chain, so they are declared as uint256.
const routerABIJSON = `[
  {"type":"function","name":"fillOrder","stateMutability":"payable","inputs":[
    ` + orderTupleJSON + `,
    {"internalType":"bytes32","name":"r","type":"bytes32"},
    {"internalType":"bytes32","name":"vs","type":"bytes32"},
    {"internalType":"uint256","name":"amount","type":"uint256"},
    {"internalType":"TakerTraits","name":"takerTraits","type":"uint256"}
  ],"outputs":[
    {"internalType":"uint256","name":"","type":"uint256"},
    {"internalType":"uint256","name":"","type":"uint256"},
    {"internalType":"bytes32","name":"","type":"bytes32"}
  ]},
  {"type":"function","name":"fillOrderArgs","stateMutability":"payable","inputs":[
    ` + orderTupleJSON + `,
    {"internalType":"bytes32","name":"r","type":"bytes32"},
    {"internalType":"bytes32","name":"vs","type":"bytes32"},
    {"internalType":"uint256","name":"amount","type":"uint256"},
    {"internalType":"TakerTraits","name":"takerTraits","type":"uint256"},
    {"internalType":"bytes","name":"args","type":"bytes"}
  ],"outputs":[
    {"internalType":"uint256","name":"","type":"uint256"},
    {"internalType":"uint256","name":"","type":"uint256"},
    {"internalType":"bytes32","name":"","type":"bytes32"}
  ]},
  {"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[
    {"internalType":"MakerTraits","name":"makerTraits","type":"uint256"},
    {"internalType":"bytes32","name":"orderHash","type":"bytes32"}
  ],"outputs":[]},
  {"type":"function","name":"hashOrder","stateMutability":"view","inputs":[
    ` + orderTupleJSON + `
  ],"outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}]},
  {"type":"function","name":"checkPredicate","stateMutability":"view","inputs":[
    {"internalType":"bytes","name":"predicate","type":"bytes"}
  ],"outputs":[{"internalType":"bool","name":"","type":"bool"}]},
  {"type":"function","name":"rawRemainingInvalidatorForOrder","stateMutability":"view","inputs":[
    {"internalType":"address","name":"maker","type":"address"},
    {"internalType":"bytes32","name":"orderHash","type":"bytes32"}
  ],"outputs":[{"internalType":"uint256","name":"","type":"uint256"}]},
  {"type":"function","name":"bitInvalidatorForOrder","stateMutability":"view","inputs":[
    {"internalType":"address","name":"maker","type":"address"},
    {"internalType":"uint256","name":"slot","type":"uint256"}
  ],"outputs":[{"internalType":"uint256","name":"","type":"uint256"}]},
  {"type":"function","name":"arbitraryStaticCall","stateMutability":"view","inputs":[
    {"internalType":"address","name":"target","type":"address"},
    {"internalType":"bytes","name":"data","type":"bytes"}
  ],"outputs":[{"internalType":"uint256","name":"","type":"uint256"}]},
  {"type":"function","name":"lt","stateMutability":"view","inputs":[
    {"internalType":"uint256","name":"value","type":"uint256"},
    {"internalType":"bytes","name":"data","type":"bytes"}
  ],"outputs":[{"internalType":"bool","name":"","type":"bool"}]},
  {"type":"function","name":"gt","stateMutability":"view","inputs":[
    {"internalType":"uint256","name":"value","type":"uint256"},
    {"internalType":"bytes","name":"data","type":"bytes"}
  ],"outputs":[{"internalType":"bool","name":"","type":"bool"}]},
  {"type":"function","name":"eq","stateMutability":"view","inputs":[
    {"internalType":"uint256","name":"value","type":"uint256"},
    {"internalType":"bytes","name":"data","type":"bytes"}
  ],"outputs":[{"internalType":"bool","name":"","type":"bool"}]},
  {"type":"function","name":"not","stateMutability":"view","inputs":[
    {"internalType":"bytes","name":"data","type":"bytes"}
  ],"outputs":[{"internalType":"bool","name":"","type":"bool"}]},
  {"type":"function","name":"and","stateMutability":"view","inputs":[
    {"internalType":"uint256","name":"offsets","type":"uint256"},
    {"internalType":"bytes","name":"data","type":"bytes"}
  ],"outputs":[{"internalType":"bool","name":"","type":"bool"}]},
  {"type":"function","name":"or","stateMutability":"view","inputs":[
    {"internalType":"uint256","name":"offsets","type":"uint256"},
    {"internalType":"bytes","name":"data","type":"bytes"}
  ],"outputs":[{"internalType":"bool","name":"","type":"bool"}]}
]`

var routerABI = mustParseABI(routerABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("router abi parse: %v", err))
	}
	return parsed
}

// RouterABI exposes the parsed subset for callers that bind the contract.
func RouterABI() abi.ABI { return routerABI }

// orderTuple is the ABI shape of IOrderMixin.Order.
type orderTuple struct {
	Salt         *big.Int
	Maker        *big.Int
	Receiver     *big.Int
	MakerAsset   *big.Int
	TakerAsset   *big.Int
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

func addressToUint(a common.Address) *big.Int {
	return new(big.Int).SetBytes(a.Bytes())
}

func (o *Order) tuple() orderTuple {
	return orderTuple{
		Salt:         new(big.Int).Set(o.Salt),
		Maker:        addressToUint(o.Maker),
		Receiver:     addressToUint(o.Receiver),
		MakerAsset:   addressToUint(o.MakerAsset),
		TakerAsset:   addressToUint(o.TakerAsset),
		MakingAmount: new(big.Int).Set(o.MakingAmount),
		TakingAmount: new(big.Int).Set(o.TakingAmount),
		MakerTraits:  o.MakerTraits.Big(),
	}
}
