package txn

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rccstake/rccstake/internal/amount"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/pkg/types"
)

// Submission outcomes
const (
	outcomeSubmitted = "submitted"
	outcomeRejected  = "rejected"
	outcomeInvalid   = "invalid"
	outcomeBusy      = "busy"
)

// SubmitterConfig identifies the contract and pool transactions go to
type SubmitterConfig struct {
	Pool            uint64
	ContractAddress common.Address
}

// Submitter validates user input locally and submits deposit, unstake and
// withdraw calls. Validation failures never reach the contract.
type Submitter struct {
	config   SubmitterConfig
	contract Contract
	store    Store
	tracker  *Tracker
	sink     sink

	mu      sync.RWMutex
	session Session
}

// NewSubmitter creates a submitter. session may be nil until a wallet connects.
func NewSubmitter(config SubmitterConfig, session Session, contract Contract, store Store, tracker *Tracker, opts ...Option) *Submitter {
	return &Submitter{
		config:   config,
		contract: contract,
		store:    store,
		tracker:  tracker,
		session:  session,
		sink:     sink{store: store, options: buildOptions(opts)},
	}
}

// SetSession replaces the connected wallet; nil disconnects.
func (s *Submitter) SetSession(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

func (s *Submitter) signer() (Session, error) {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()
	if session == nil || session.Account() == (common.Address{}) || !session.CanSign() {
		return nil, types.ErrNoSigner
	}
	// The Position used for validation must belong to the signing account
	if tracked := s.store.Account(); tracked != session.Account() {
		return nil, fmt.Errorf("%w: wallet %s is not the tracked account %s",
			types.ErrNoSigner, session.Account().Hex(), tracked.Hex())
	}
	return session, nil
}

// Deposit stakes amountDecimal ETH. The amount must be positive and no more
// than the wallet balance.
func (s *Submitter) Deposit(ctx context.Context, amountDecimal string) (*Handle, error) {
	session, err := s.signer()
	if err != nil {
		return nil, err
	}
	value, err := s.parsePositive(types.TxDeposit, amountDecimal)
	if err != nil {
		return nil, err
	}
	if s.store.Busy(types.TxDeposit) {
		s.sink.metrics.RecordSubmission(string(types.TxDeposit), outcomeBusy)
		return nil, types.ErrAlreadyPending
	}

	balance, err := session.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet balance: %w", types.ErrRead, err)
	}
	if value.Cmp(balance) > 0 {
		s.sink.metrics.RecordSubmission(string(types.TxDeposit), outcomeInvalid)
		return nil, fmt.Errorf("%w: amount %s exceeds wallet balance %s",
			types.ErrValidation, amount.FromWire(value), amount.FromWire(balance))
	}

	return s.submit(ctx, session, types.TxDeposit, value, func(opts *bind.TransactOpts) (common.Hash, error) {
		return s.contract.DepositETH(opts, value)
	})
}

// Unstake requests amountDecimal ETH out of the pool. The amount must be
// positive and no more than the staked balance.
func (s *Submitter) Unstake(ctx context.Context, amountDecimal string) (*Handle, error) {
	session, err := s.signer()
	if err != nil {
		return nil, err
	}
	value, err := s.parsePositive(types.TxUnstake, amountDecimal)
	if err != nil {
		return nil, err
	}
	if s.store.Busy(types.TxUnstake) {
		s.sink.metrics.RecordSubmission(string(types.TxUnstake), outcomeBusy)
		return nil, types.ErrAlreadyPending
	}

	staked := s.store.Position().Staked
	if staked == nil || value.Cmp(staked) > 0 {
		s.sink.metrics.RecordSubmission(string(types.TxUnstake), outcomeInvalid)
		return nil, fmt.Errorf("%w: amount %s exceeds staked balance %s",
			types.ErrValidation, amount.FromWire(value), amount.FromWire(staked))
	}

	return s.submit(ctx, session, types.TxUnstake, value, func(opts *bind.TransactOpts) (common.Hash, error) {
		return s.contract.Unstake(opts, s.config.Pool, value)
	})
}

// Withdraw pays out everything that has cleared the lock window. It fails
// with types.ErrValidation when nothing is withdrawable.
func (s *Submitter) Withdraw(ctx context.Context) (*Handle, error) {
	session, err := s.signer()
	if err != nil {
		return nil, err
	}
	if s.store.Busy(types.TxWithdraw) {
		s.sink.metrics.RecordSubmission(string(types.TxWithdraw), outcomeBusy)
		return nil, types.ErrAlreadyPending
	}

	withdrawable := s.store.Position().Withdrawable
	if withdrawable == nil || withdrawable.Sign() == 0 {
		s.sink.metrics.RecordSubmission(string(types.TxWithdraw), outcomeInvalid)
		return nil, fmt.Errorf("%w: nothing to withdraw", types.ErrValidation)
	}

	return s.submit(ctx, session, types.TxWithdraw, nil, func(opts *bind.TransactOpts) (common.Hash, error) {
		return s.contract.Withdraw(opts, s.config.Pool)
	})
}

func (s *Submitter) parsePositive(kind types.TxKind, amountDecimal string) (*big.Int, error) {
	value, err := amount.ToWire(amountDecimal)
	if err != nil {
		s.sink.metrics.RecordSubmission(string(kind), outcomeInvalid)
		return nil, err
	}
	if value.Sign() == 0 {
		s.sink.metrics.RecordSubmission(string(kind), outcomeInvalid)
		return nil, fmt.Errorf("%w: amount must be greater than zero", types.ErrValidation)
	}
	return value, nil
}

func (s *Submitter) submit(ctx context.Context, session Session, kind types.TxKind, value *big.Int,
	send func(*bind.TransactOpts) (common.Hash, error)) (*Handle, error) {

	account := session.Account()
	now := time.Now()
	tx := types.PendingTransaction{
		ID:          uuid.NewString(),
		Kind:        kind,
		Amount:      value,
		Status:      types.TxSubmitting,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.store.Reserve(tx); err != nil {
		s.sink.metrics.RecordSubmission(string(kind), outcomeBusy)
		return nil, err
	}
	s.sink.record(account, tx)

	opts, err := session.TransactOpts(ctx)
	var hash common.Hash
	if err == nil {
		hash, err = send(opts)
	}
	if err != nil {
		failErr := fmt.Errorf("%w: %w", types.ErrSubmission, err)
		tx.Status = types.TxFailed
		tx.Err = failErr
		tx.UpdatedAt = time.Now()
		s.sink.transition(account, tx)
		s.sink.metrics.RecordSubmission(string(kind), outcomeRejected)
		s.audit(account, tx, "rejected", err.Error())
		logging.Warn("transaction submission rejected",
			logging.TxKind(string(kind)),
			logging.TxID(tx.ID),
			logging.Account(account),
			logging.Err(err),
			logging.Component("txn"))
		return nil, failErr
	}

	s.sink.metrics.RecordSubmission(string(kind), outcomeSubmitted)
	s.audit(account, tx, "submitted", hash.Hex())
	logging.Info("transaction submitted",
		logging.TxKind(string(kind)),
		logging.TxID(tx.ID),
		logging.TxHash(hash),
		logging.Account(account),
		logging.Component("txn"))

	return s.tracker.Track(account, tx, hash), nil
}

func (s *Submitter) audit(account common.Address, tx types.PendingTransaction, result, details string) {
	event := logging.AuditEvent{
		Operation: string(tx.Kind),
		Account:   account.Hex(),
		Contract:  s.config.ContractAddress.Hex(),
		Result:    result,
		Details:   details,
	}
	if tx.Amount != nil {
		event.Amount = amount.FromWire(tx.Amount)
	}
	logging.Audit(event)
}
