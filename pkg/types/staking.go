package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LockWindow is the delay the staking contract enforces between an unstake
// request and the amount becoming withdrawable. Display only; the contract
// is the authority.
const LockWindow = 20 * time.Minute

// DefaultPoolID is the only pool the ETH staking contract exposes.
const DefaultPoolID uint64 = 0

// Position is the derived staking snapshot for one (account, pool) pair.
// All amounts are wei and never negative.
type Position struct {
	Staked          *big.Int `json:"staked"`
	WithdrawPending *big.Int `json:"withdraw_pending"`
	Withdrawable    *big.Int `json:"withdrawable"`

	// Inconsistent is set when the raw views disagreed (withdrawable above
	// the requested total) and WithdrawPending was clamped to zero.
	Inconsistent bool `json:"inconsistent,omitempty"`
}

// ZeroPosition returns the empty position used for a freshly connected account.
func ZeroPosition() Position {
	return Position{
		Staked:          new(big.Int),
		WithdrawPending: new(big.Int),
		Withdrawable:    new(big.Int),
	}
}

// Clone returns a deep copy so callers cannot mutate stored amounts.
func (p Position) Clone() Position {
	return Position{
		Staked:          cloneInt(p.Staked),
		WithdrawPending: cloneInt(p.WithdrawPending),
		Withdrawable:    cloneInt(p.Withdrawable),
		Inconsistent:    p.Inconsistent,
	}
}

// Equal compares amounts; the Inconsistent flag is ignored.
func (p Position) Equal(o Position) bool {
	return cloneInt(p.Staked).Cmp(cloneInt(o.Staked)) == 0 &&
		cloneInt(p.WithdrawPending).Cmp(cloneInt(o.WithdrawPending)) == 0 &&
		cloneInt(p.Withdrawable).Cmp(cloneInt(o.Withdrawable)) == 0
}

// Stage maps the position onto the four-step withdrawal process.
func (p Position) Stage() Stage {
	switch {
	case cloneInt(p.Staked).Sign() == 0 &&
		cloneInt(p.WithdrawPending).Sign() == 0 &&
		cloneInt(p.Withdrawable).Sign() == 0:
		return StageStake
	case cloneInt(p.WithdrawPending).Sign() > 0:
		return StageWaiting
	case cloneInt(p.Withdrawable).Sign() > 0:
		return StageWithdraw
	default:
		return StageRequestUnstake
	}
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// Stage is a step of the stake -> unstake -> wait -> withdraw process.
type Stage string

const (
	StageStake          Stage = "stake"
	StageRequestUnstake Stage = "request_unstake"
	StageWaiting        Stage = "waiting"
	StageWithdraw       Stage = "withdraw"
)

// Label returns the human-readable step name.
func (s Stage) Label() string {
	switch s {
	case StageStake:
		return "Stake ETH"
	case StageRequestUnstake:
		return "Request Unstake"
	case StageWaiting:
		return "Wait 20 minutes"
	case StageWithdraw:
		return "Withdraw"
	default:
		return string(s)
	}
}

// TxKind identifies an action slot.
type TxKind string

const (
	TxDeposit  TxKind = "deposit"
	TxUnstake  TxKind = "unstake"
	TxWithdraw TxKind = "withdraw"
)

// AllTxKinds lists the action slots in display order.
var AllTxKinds = []TxKind{TxDeposit, TxUnstake, TxWithdraw}

// IsValid reports whether k is a known action.
func (k TxKind) IsValid() bool {
	switch k {
	case TxDeposit, TxUnstake, TxWithdraw:
		return true
	}
	return false
}

// TxStatus is the lifecycle state of a PendingTransaction.
type TxStatus string

const (
	TxSubmitting TxStatus = "submitting"
	TxPending    TxStatus = "pending"
	TxConfirmed  TxStatus = "confirmed"
	TxFailed     TxStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TxStatus) IsTerminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// CanTransition reports whether s -> next is a legal edge.
func (s TxStatus) CanTransition(next TxStatus) bool {
	switch s {
	case TxSubmitting:
		return next == TxPending || next == TxFailed
	case TxPending:
		return next == TxConfirmed || next == TxFailed
	}
	return false
}

// PendingTransaction tracks one state-changing contract call.
type PendingTransaction struct {
	ID     string      `json:"id"`
	Kind   TxKind      `json:"kind"`
	Amount *big.Int    `json:"amount,omitempty"` // nil for withdraw
	Hash   common.Hash `json:"hash"`
	Status TxStatus    `json:"status"`

	// Err is the failure reason once Status is TxFailed.
	Err error `json:"-"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasHash reports whether the chain has assigned an identifier.
func (tx PendingTransaction) HasHash() bool {
	return tx.Hash != (common.Hash{})
}

// Clone returns a copy with an independent amount.
func (tx PendingTransaction) Clone() PendingTransaction {
	c := tx
	if tx.Amount != nil {
		c.Amount = new(big.Int).Set(tx.Amount)
	}
	return c
}

// ErrString returns the failure reason or "".
func (tx PendingTransaction) ErrString() string {
	if tx.Err == nil {
		return ""
	}
	return tx.Err.Error()
}
