// Package stake wires the position store, the transaction submitter and the
// tracker into one session-scoped engine.
package stake

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/internal/position"
	"github.com/rccstake/rccstake/internal/txn"
	"github.com/rccstake/rccstake/pkg/types"
)

// Contract is the full staking contract surface the engine drives
type Contract interface {
	position.Views
	txn.Contract
}

// Config holds engine settings
type Config struct {
	Pool            uint64
	ContractAddress common.Address
	Tracker         txn.TrackerConfig
	Precision       int32
}

// Option configures an Engine
type Option func(*engineOptions)

type engineOptions struct {
	metrics  *metrics.Collector
	recorder txn.Recorder
}

// WithMetrics records engine activity on m
func WithMetrics(m *metrics.Collector) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithRecorder journals transaction transitions to r
func WithRecorder(r txn.Recorder) Option {
	return func(o *engineOptions) { o.recorder = r }
}

// Engine is the staking client for one connected wallet at a time
type Engine struct {
	config    Config
	store     *position.Store
	tracker   *txn.Tracker
	submitter *txn.Submitter

	mu      sync.Mutex
	session txn.Session
	closed  bool
}

// New creates an engine with no wallet connected
func New(config Config, contract Contract, receipts txn.ReceiptSource, opts ...Option) *Engine {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	var txOpts []txn.Option
	if o.metrics != nil {
		txOpts = append(txOpts, txn.WithMetrics(o.metrics))
	}
	if o.recorder != nil {
		txOpts = append(txOpts, txn.WithRecorder(o.recorder))
	}

	store := position.NewStore(position.NewReader(contract, o.metrics), config.Pool, position.WithMetrics(o.metrics))
	tracker := txn.NewTracker(receipts, store, store.RefreshAccount, config.Tracker, txOpts...)
	submitter := txn.NewSubmitter(txn.SubmitterConfig{
		Pool:            config.Pool,
		ContractAddress: config.ContractAddress,
	}, nil, contract, store, tracker, txOpts...)

	return &Engine{
		config:    config,
		store:     store,
		tracker:   tracker,
		submitter: submitter,
	}
}

// Connect switches the engine to session and reads its Position. A nil
// session disconnects.
func (e *Engine) Connect(ctx context.Context, session txn.Session) error {
	e.mu.Lock()
	e.session = session
	e.mu.Unlock()

	account := common.Address{}
	if session != nil {
		account = session.Account()
	}

	// No submissions while the store switches; slots reserved now would be
	// wiped by AccountChanged.
	e.submitter.SetSession(nil)
	err := e.store.AccountChanged(ctx, account)
	e.submitter.SetSession(session)
	return err
}

// Disconnect drops the wallet and resets the Position
func (e *Engine) Disconnect(ctx context.Context) error {
	return e.Connect(ctx, nil)
}

// Session returns the connected wallet, nil if none
func (e *Engine) Session() txn.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Account returns the connected account
func (e *Engine) Account() common.Address {
	return e.store.Account()
}

// Deposit stakes amountDecimal ETH
func (e *Engine) Deposit(ctx context.Context, amountDecimal string) (*txn.Handle, error) {
	return e.submitter.Deposit(ctx, amountDecimal)
}

// Unstake requests amountDecimal ETH out of the pool
func (e *Engine) Unstake(ctx context.Context, amountDecimal string) (*txn.Handle, error) {
	return e.submitter.Unstake(ctx, amountDecimal)
}

// Withdraw pays out the unlocked amount
func (e *Engine) Withdraw(ctx context.Context) (*txn.Handle, error) {
	return e.submitter.Withdraw(ctx)
}

// Refresh re-reads the Position
func (e *Engine) Refresh(ctx context.Context) error {
	return e.store.Refresh(ctx)
}

// Position returns the last known-good Position
func (e *Engine) Position() types.Position {
	return e.store.Position()
}

// Snapshot returns the current store state
func (e *Engine) Snapshot() position.Snapshot {
	return e.store.Snapshot()
}

// View returns the current state rendered at the configured precision
func (e *Engine) View() position.SnapshotView {
	return e.store.Snapshot().View(e.config.Precision)
}

// Precision returns the display precision
func (e *Engine) Precision() int32 {
	return e.config.Precision
}

// Subscribe streams snapshots; see position.Store.Subscribe
func (e *Engine) Subscribe() (<-chan position.Snapshot, func()) {
	return e.store.Subscribe()
}

// Acknowledge clears a Failed transaction from kind's slot
func (e *Engine) Acknowledge(kind types.TxKind) bool {
	return e.store.Acknowledge(kind)
}

// Close stops tracking and ends every subscription. Pending transactions
// are not affected on chain.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.tracker.Close()
	e.store.Close()
	logging.Debug("engine closed", logging.Component("stake"))
}
