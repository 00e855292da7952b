package lop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Predicates are calldata for view functions on the router itself. At fill
// time the router static-calls itself with the predicate and only proceeds
// when the call succeeds and returns exactly 1.

const maxPredicateOperands = 8

// ArbitraryStaticCall wraps a view call on an external contract. The call's
// first return word becomes the predicate value.
func ArbitraryStaticCall(target common.Address, data []byte) ([]byte, error) {
	if (target == common.Address{}) {
		return nil, fmt.Errorf("predicate target required")
	}
	return routerABI.Pack("arbitraryStaticCall", target, data)
}

// Lt is true when the value returned by call is strictly less than value.
func Lt(value *big.Int, call []byte) ([]byte, error) {
	return compare("lt", value, call)
}

// Gt is true when the value returned by call is strictly greater than value.
func Gt(value *big.Int, call []byte) ([]byte, error) {
	return compare("gt", value, call)
}

// Eq is true when the value returned by call equals value.
func Eq(value *big.Int, call []byte) ([]byte, error) {
	return compare("eq", value, call)
}

func compare(method string, value *big.Int, call []byte) ([]byte, error) {
	if value == nil || value.Sign() < 0 {
		return nil, fmt.Errorf("%s: value must be >= 0", method)
	}
	if len(call) == 0 {
		return nil, fmt.Errorf("%s: call required", method)
	}
	return routerABI.Pack(method, value, call)
}

func Not(call []byte) ([]byte, error) {
	if len(call) == 0 {
		return nil, fmt.Errorf("not: call required")
	}
	return routerABI.Pack("not", call)
}

// And is true when every call is true. Evaluation short-circuits on-chain.
func And(calls ...[]byte) ([]byte, error) {
	return join("and", calls)
}

// Or is true when any call is true.
func Or(calls ...[]byte) ([]byte, error) {
	return join("or", calls)
}

func join(method string, calls [][]byte) ([]byte, error) {
	offsets, data, err := PackOffsets(calls)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return routerABI.Pack(method, offsets, data)
}

// PackOffsets concatenates calls and records the cumulative end offset of
// call i in bits [32*i, 32*i+32) of the returned word.
func PackOffsets(calls [][]byte) (*big.Int, []byte, error) {
	if len(calls) == 0 {
		return nil, nil, fmt.Errorf("at least one call required")
	}
	if len(calls) > maxPredicateOperands {
		return nil, nil, fmt.Errorf("at most %d calls, got %d", maxPredicateOperands, len(calls))
	}
	offsets := new(big.Int)
	var data []byte
	for i, c := range calls {
		if len(c) == 0 {
			return nil, nil, fmt.Errorf("call %d empty", i)
		}
		data = append(data, c...)
		if uint64(len(data)) > 0xffffffff {
			return nil, nil, fmt.Errorf("calls overflow uint32 offsets")
		}
		end := new(big.Int).SetUint64(uint64(len(data)))
		offsets.Or(offsets, end.Lsh(end, uint(32*i)))
	}
	return offsets, data, nil
}

// CheckPredicateCalldata encodes checkPredicate(predicate) for an eth_call preflight.
func CheckPredicateCalldata(predicate []byte) ([]byte, error) {
	return routerABI.Pack("checkPredicate", predicate)
}
