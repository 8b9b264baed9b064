package position

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/pkg/types"
)

// DefaultRereads bounds the extra reads issued when the views disagree.
const DefaultRereads = 2

// PositionReader is satisfied by *Reader
type PositionReader interface {
	Read(ctx context.Context, pool uint64, account common.Address) (types.Position, error)
}

// Snapshot is a copy of the store state at one point in time
type Snapshot struct {
	Account    common.Address
	Pool       uint64
	Position   types.Position
	Loading    bool
	Err        error
	Generation uint64
	Pending    map[types.TxKind]types.PendingTransaction
	UpdatedAt  time.Time
}

// Store owns the latest Position for the connected account and at most one
// PendingTransaction per action. It never holds its lock across I/O.
type Store struct {
	reader  PositionReader
	pool    uint64
	rereads int
	metrics *metrics.Collector

	mu         sync.Mutex
	account    common.Address
	position   types.Position
	loading    bool
	err        error
	generation uint64
	updatedAt  time.Time
	slots      map[types.TxKind]types.PendingTransaction

	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithMetrics records read outcomes and slot gauges on m
func WithMetrics(m *metrics.Collector) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithRereads sets how many times an inconsistent read is retried
func WithRereads(n int) StoreOption {
	return func(s *Store) {
		if n >= 0 {
			s.rereads = n
		}
	}
}

// NewStore creates a store with no account connected
func NewStore(reader PositionReader, pool uint64, opts ...StoreOption) *Store {
	s := &Store{
		reader:   reader,
		pool:     pool,
		rereads:  DefaultRereads,
		position: types.ZeroPosition(),
		slots:    make(map[types.TxKind]types.PendingTransaction),
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pool returns the pool id the store reads
func (s *Store) Pool() uint64 {
	return s.pool
}

// Account returns the connected account, zero if none
func (s *Store) Account() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Position returns a copy of the last known-good Position
func (s *Store) Position() types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position.Clone()
}

// Snapshot returns the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Refresh re-reads the Position for the connected account. The read is
// tagged with a new generation; if another Refresh or an account change
// starts before it returns, its result is discarded and Refresh returns nil.
// On failure the last known-good Position is kept and the error recorded.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	account := s.account
	if account == (common.Address{}) {
		s.mu.Unlock()
		return types.ErrNoSigner
	}
	s.generation++
	gen := s.generation
	s.loading = true
	s.publishLocked()
	s.mu.Unlock()

	p, err := s.read(ctx, account, gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.metrics.RecordRead(metrics.ReadStale, 0)
		logging.Debug("discarding superseded position read",
			logging.Account(account),
			"generation", gen,
			"current", s.generation,
			logging.Component("position"))
		return nil
	}

	s.loading = false
	if err != nil {
		s.err = err
		s.publishLocked()
		logging.Warn("position refresh failed", logging.Account(account), logging.Err(err), logging.Component("position"))
		return err
	}
	s.position = p
	s.err = nil
	s.updatedAt = time.Now()
	s.publishLocked()
	return nil
}

// RefreshAccount refreshes only if account is still the connected account.
func (s *Store) RefreshAccount(ctx context.Context, account common.Address) error {
	if s.Account() != account {
		return nil
	}
	return s.Refresh(ctx)
}

func (s *Store) read(ctx context.Context, account common.Address, gen uint64) (types.Position, error) {
	for attempt := 0; ; attempt++ {
		p, err := s.reader.Read(ctx, s.pool, account)
		if err != nil || !p.Inconsistent || attempt >= s.rereads {
			return p, err
		}
		if s.currentGeneration() != gen || ctx.Err() != nil {
			return p, nil
		}
		logging.Debug("re-reading inconsistent position", logging.Account(account), "attempt", attempt+1)
	}
}

func (s *Store) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// AccountChanged switches the store to account. The Position is reset to zero,
// every slot is cleared and in-flight reads for the previous account are
// discarded. A zero address means disconnected and only resets; otherwise a
// refresh for the new account follows. Reporting the current account again
// just refreshes.
func (s *Store) AccountChanged(ctx context.Context, account common.Address) error {
	s.mu.Lock()
	if account == s.account {
		s.mu.Unlock()
		if account == (common.Address{}) {
			return nil
		}
		return s.Refresh(ctx)
	}

	previous := s.account
	s.account = account
	s.position = types.ZeroPosition()
	s.err = nil
	s.loading = false
	s.updatedAt = time.Time{}
	s.generation++
	for kind := range s.slots {
		delete(s.slots, kind)
		s.metrics.SetPending(string(kind), false)
	}
	s.publishLocked()
	s.mu.Unlock()

	s.metrics.RecordAccountSwitch()
	logging.Info("account changed",
		"previous", previous.Hex(),
		logging.Account(account),
		logging.Component("position"))

	if account == (common.Address{}) {
		return nil
	}
	return s.Refresh(ctx)
}

// Pending returns the transaction in kind's slot
func (s *Store) Pending(kind types.TxKind) (types.PendingTransaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.slots[kind]
	if !ok {
		return types.PendingTransaction{}, false
	}
	return tx.Clone(), true
}

// Busy reports whether kind's slot holds a non-terminal transaction
func (s *Store) Busy(kind types.TxKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.slots[kind]
	return ok && !tx.Status.IsTerminal()
}

// Reserve places tx in its slot. It fails with types.ErrAlreadyPending while
// the slot holds a non-terminal transaction; a terminal one is replaced.
func (s *Store) Reserve(tx types.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.slots[tx.Kind]; ok && !existing.Status.IsTerminal() {
		return types.ErrAlreadyPending
	}
	s.slots[tx.Kind] = tx.Clone()
	s.metrics.SetPending(string(tx.Kind), true)
	s.publishLocked()
	return nil
}

// Update replaces the slot entry with the same ID. Updates for a transaction
// no longer in its slot (cleared, or dropped by an account change) are
// ignored. A status change must be a legal transition.
func (s *Store) Update(tx types.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.slots[tx.Kind]
	if !ok || existing.ID != tx.ID {
		return nil
	}
	if existing.Status != tx.Status && !existing.Status.CanTransition(tx.Status) {
		return types.ErrInvalidTransition
	}
	s.slots[tx.Kind] = tx.Clone()
	s.metrics.SetPending(string(tx.Kind), !tx.Status.IsTerminal())
	s.publishLocked()
	return nil
}

// Clear empties kind's slot
func (s *Store) Clear(kind types.TxKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[kind]; !ok {
		return
	}
	delete(s.slots, kind)
	s.metrics.SetPending(string(kind), false)
	s.publishLocked()
}

// Remove empties tx's slot if it still holds tx
func (s *Store) Remove(tx types.PendingTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.slots[tx.Kind]; !ok || existing.ID != tx.ID {
		return
	}
	delete(s.slots, tx.Kind)
	s.metrics.SetPending(string(tx.Kind), false)
	s.publishLocked()
}

// Acknowledge clears kind's slot if it holds a Failed transaction and reports
// whether it did.
func (s *Store) Acknowledge(kind types.TxKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.slots[kind]
	if !ok || tx.Status != types.TxFailed {
		return false
	}
	delete(s.slots, kind)
	s.publishLocked()
	return true
}

// Subscribe returns a channel that receives the current snapshot and then one
// on every state change. A subscriber that falls behind skips intermediate
// snapshots but always receives the latest. cancel closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close closes every subscription. Later subscriptions receive a closed channel.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot, keep the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (s *Store) snapshotLocked() Snapshot {
	pending := make(map[types.TxKind]types.PendingTransaction, len(s.slots))
	for kind, tx := range s.slots {
		pending[kind] = tx.Clone()
	}
	return Snapshot{
		Account:    s.account,
		Pool:       s.pool,
		Position:   s.position.Clone(),
		Loading:    s.loading,
		Err:        s.err,
		Generation: s.generation,
		Pending:    pending,
		UpdatedAt:  s.updatedAt,
	}
}
