// Package txutil signs and submits raw-calldata transactions.
package txutil

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultGasLimit    = 500_000
	DefaultWaitTimeout = 3 * time.Minute
)

// ErrReverted is returned by Wait when the transaction was mined with status 0.
var ErrReverted = errors.New("transaction reverted")

// Backend is satisfied by *ethclient.Client and the simulated backend client.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Sender submits transactions from a single key.
type Sender struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

func NewSender(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) *Sender {
	return &Sender{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
}

func (s *Sender) From() common.Address { return s.from }

func (s *Sender) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// Call runs data as an eth_call from the sender. Used to surface revert
// reasons before paying for a transaction.
func (s *Sender) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.backend.CallContract(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data}, nil)
}

func (s *Sender) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	return s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data})
}

// Send signs and broadcasts data to to. A zero gasLimit lets the node
// estimate. Fees are EIP-1559 when the head has a base fee, legacy otherwise.
func (s *Sender) Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = gasLimit

	contract := bind.NewBoundContract(to, abi.ABI{}, s.backend, s.backend, s.backend)
	tx, err := contract.RawTransact(opts, data)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", to.Hex(), err)
	}
	return tx, nil
}

// Wait blocks until tx is mined or timeout passes. A mined but reverted
// transaction returns its receipt together with ErrReverted.
func (s *Sender) Wait(ctx context.Context, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error) {
	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, s.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

// SendAndWait is Send followed by Wait with DefaultWaitTimeout.
func (s *Sender) SendAndWait(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Receipt, error) {
	tx, err := s.Send(ctx, to, data, gasLimit)
	if err != nil {
		return nil, err
	}
	return s.Wait(ctx, tx, DefaultWaitTimeout)
}
