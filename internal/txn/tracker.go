package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rccstake/rccstake/internal/amount"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/util"
	"github.com/rccstake/rccstake/pkg/types"
)

// Tracker defaults
const (
	DefaultConfirmTimeout = 3 * time.Minute
	DefaultPollInterval   = 2 * time.Second
)

// TrackerConfig bounds the confirmation wait
type TrackerConfig struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Tracker drives each submitted transaction from Pending to Confirmed or
// Failed by polling for its receipt. On confirmation it calls the refresh
// function exactly once and then clears the transaction's slot.
type Tracker struct {
	receipts ReceiptSource
	refresh  RefreshFunc
	config   TrackerConfig
	sink     sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewTracker creates a tracker. refresh may be nil.
func NewTracker(receipts ReceiptSource, store Store, refresh RefreshFunc, config TrackerConfig, opts ...Option) *Tracker {
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = DefaultConfirmTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		receipts: receipts,
		refresh:  refresh,
		config:   config,
		sink:     sink{store: store, options: buildOptions(opts)},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Track moves tx to Pending with hash and starts waiting for its receipt.
// The wait does not depend on any caller context; stop observing by
// abandoning the handle.
func (t *Tracker) Track(account common.Address, tx types.PendingTransaction, hash common.Hash) *Handle {
	tx.Hash = hash
	tx.Status = types.TxPending
	tx.UpdatedAt = time.Now()
	t.sink.transition(account, tx)

	h := newHandle(tx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		h.finish()
		return h
	}
	util.GoGroup(&t.wg, "txn.tracker", func() {
		t.watch(account, tx, h)
	})
	return h
}

// Close stops every wait. Transactions still pending stay Pending in the
// store; nothing is cancelled on chain.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) watch(account common.Address, tx types.PendingTransaction, h *Handle) {
	defer h.finish()

	ctx, cancel := context.WithTimeout(t.ctx, t.config.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.receipts.TransactionReceipt(ctx, tx.Hash)
		switch {
		case err == nil && receipt != nil:
			t.settle(account, tx, h, receipt)
			return
		case err == nil, errors.Is(err, ethereum.NotFound):
		case ctx.Err() == nil:
			logging.Debug("receipt lookup failed, will retry",
				logging.TxHash(tx.Hash),
				logging.Err(err),
				logging.Component("txn"))
		}

		select {
		case <-ctx.Done():
			if t.ctx.Err() != nil {
				logging.Debug("tracker closed, transaction left pending", logging.TxHash(tx.Hash))
				return
			}
			t.fail(account, tx, h, fmt.Errorf("%w: no receipt after %s", types.ErrTimeout, t.config.ConfirmTimeout))
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) settle(account common.Address, tx types.PendingTransaction, h *Handle, receipt *ethtypes.Receipt) {
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		t.fail(account, tx, h, fmt.Errorf("%w: block %s", types.ErrChainFailure, receipt.BlockNumber))
		return
	}

	pendingSince := tx.UpdatedAt
	tx.Status = types.TxConfirmed
	tx.UpdatedAt = time.Now()
	t.sink.transition(account, tx)
	t.sink.metrics.RecordTerminal(string(tx.Kind), string(tx.Status), tx.UpdatedAt.Sub(pendingSince))
	h.publish(tx)
	t.audit(account, tx, "confirmed", receipt.BlockNumber.String())

	logging.Info("transaction confirmed",
		logging.TxKind(string(tx.Kind)),
		logging.TxHash(tx.Hash),
		"block", receipt.BlockNumber.String(),
		logging.Account(account),
		logging.Component("txn"))

	if t.refresh != nil {
		if err := t.refresh(t.ctx, account); err != nil {
			logging.Warn("refresh after confirmation failed", logging.Account(account), logging.Err(err))
		}
	}
	t.sink.store.Remove(tx)
}

func (t *Tracker) fail(account common.Address, tx types.PendingTransaction, h *Handle, err error) {
	pendingSince := tx.UpdatedAt
	tx.Status = types.TxFailed
	tx.Err = err
	tx.UpdatedAt = time.Now()
	t.sink.transition(account, tx)
	t.sink.metrics.RecordTerminal(string(tx.Kind), string(tx.Status), tx.UpdatedAt.Sub(pendingSince))
	h.publish(tx)
	t.audit(account, tx, "failed", err.Error())

	logging.Warn("transaction failed",
		logging.TxKind(string(tx.Kind)),
		logging.TxHash(tx.Hash),
		logging.Account(account),
		logging.Err(err),
		logging.Component("txn"))
}

func (t *Tracker) audit(account common.Address, tx types.PendingTransaction, result, details string) {
	event := logging.AuditEvent{
		Operation: string(tx.Kind),
		Account:   account.Hex(),
		Result:    result,
		Details:   details,
	}
	if tx.Amount != nil {
		event.Amount = amount.FromWire(tx.Amount)
	}
	logging.Audit(event)
}

// Handle observes one tracked transaction
type Handle struct {
	id      string
	kind    types.TxKind
	updates chan types.PendingTransaction
	done    chan struct{}

	mu      sync.Mutex
	current types.PendingTransaction
	once    sync.Once
}

func newHandle(tx types.PendingTransaction) *Handle {
	h := &Handle{
		id:      tx.ID,
		kind:    tx.Kind,
		updates: make(chan types.PendingTransaction, 2),
		done:    make(chan struct{}),
	}
	h.publish(tx)
	return h
}

// ID returns the local transaction id
func (h *Handle) ID() string { return h.id }

// Kind returns the action
func (h *Handle) Kind() types.TxKind { return h.kind }

// Updates delivers Pending and then the terminal state. It is closed when
// tracking ends.
func (h *Handle) Updates() <-chan types.PendingTransaction { return h.updates }

// Done is closed when tracking ends
func (h *Handle) Done() <-chan struct{} { return h.done }

// Current returns the latest known state
func (h *Handle) Current() types.PendingTransaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Clone()
}

// Wait blocks until tracking ends or ctx is done. It returns the final state
// and, for a failed transaction, its error. Returning early on ctx does not
// affect the transaction.
func (h *Handle) Wait(ctx context.Context) (types.PendingTransaction, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return h.Current(), ctx.Err()
	}
	tx := h.Current()
	if tx.Status == types.TxFailed {
		return tx, tx.Err
	}
	return tx, nil
}

func (h *Handle) publish(tx types.PendingTransaction) {
	h.mu.Lock()
	h.current = tx.Clone()
	h.mu.Unlock()
	select {
	case h.updates <- tx.Clone():
	default:
	}
}

func (h *Handle) finish() {
	h.once.Do(func() {
		close(h.updates)
		close(h.done)
	})
}
