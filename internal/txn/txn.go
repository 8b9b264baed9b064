// Package txn validates and submits staking transactions and tracks each one
// from submission to confirmation or failure.
package txn

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/pkg/types"
)

// Session is the connected wallet
type Session interface {
	Account() common.Address
	CanSign() bool
	Balance(ctx context.Context) (*big.Int, error)
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Contract is the write surface of the staking contract
type Contract interface {
	DepositETH(opts *bind.TransactOpts, value *big.Int) (common.Hash, error)
	Unstake(opts *bind.TransactOpts, pool uint64, amount *big.Int) (common.Hash, error)
	Withdraw(opts *bind.TransactOpts, pool uint64) (common.Hash, error)
}

// ReceiptSource looks up receipts; a transaction not yet mined yields
// ethereum.NotFound.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Store holds the Position and the per-action slots. *position.Store
// satisfies it.
type Store interface {
	Account() common.Address
	Position() types.Position
	Busy(kind types.TxKind) bool
	Reserve(tx types.PendingTransaction) error
	Update(tx types.PendingTransaction) error
	Remove(tx types.PendingTransaction)
}

// Recorder persists transaction transitions
type Recorder interface {
	Record(account common.Address, tx types.PendingTransaction) error
}

// RefreshFunc re-reads the Position for account
type RefreshFunc func(ctx context.Context, account common.Address) error

type options struct {
	metrics  *metrics.Collector
	recorder Recorder
}

// Option configures a Submitter or Tracker
type Option func(*options)

// WithMetrics records submissions and terminal states on m
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithRecorder journals every transition to r
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// sink applies a transition to the store and the journal
type sink struct {
	store Store
	options
}

func (s sink) transition(account common.Address, tx types.PendingTransaction) {
	if err := s.store.Update(tx); err != nil {
		logging.Error("rejected transaction transition",
			logging.TxID(tx.ID),
			logging.TxKind(string(tx.Kind)),
			"status", string(tx.Status),
			logging.Err(err),
			logging.Component("txn"))
	}
	s.record(account, tx)
}

func (s sink) record(account common.Address, tx types.PendingTransaction) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(account, tx); err != nil {
		logging.Warn("failed to journal transaction", logging.TxID(tx.ID), logging.Err(err), logging.Component("txn"))
	}
}
