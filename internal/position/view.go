package position

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/amount"
	"github.com/rccstake/rccstake/pkg/types"
)

// PositionView is a Position rendered as ETH decimal strings
type PositionView struct {
	Staked          string      `json:"staked"`
	WithdrawPending string      `json:"withdraw_pending"`
	Withdrawable    string      `json:"withdrawable"`
	Stage           types.Stage `json:"stage"`
	StageLabel      string      `json:"stage_label"`
	Inconsistent    bool        `json:"inconsistent,omitempty"`
}

// NewView renders p truncated to precision fractional digits
func NewView(p types.Position, precision int32) PositionView {
	stage := p.Stage()
	return PositionView{
		Staked:          amount.FormatDisplay(p.Staked, precision),
		WithdrawPending: amount.FormatDisplay(p.WithdrawPending, precision),
		Withdrawable:    amount.FormatDisplay(p.Withdrawable, precision),
		Stage:           stage,
		StageLabel:      stage.Label(),
		Inconsistent:    p.Inconsistent,
	}
}

// TxView is a PendingTransaction for display
type TxView struct {
	ID          string         `json:"id"`
	Kind        types.TxKind   `json:"kind"`
	Amount      string         `json:"amount,omitempty"`
	Hash        string         `json:"hash,omitempty"`
	Status      types.TxStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewTxView renders tx. Amounts keep full precision.
func NewTxView(tx types.PendingTransaction) TxView {
	v := TxView{
		ID:          tx.ID,
		Kind:        tx.Kind,
		Status:      tx.Status,
		Error:       tx.ErrString(),
		SubmittedAt: tx.SubmittedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.Amount != nil {
		v.Amount = amount.FromWire(tx.Amount)
	}
	if tx.HasHash() {
		v.Hash = tx.Hash.Hex()
	}
	return v
}

// SnapshotView is the presentation form of a Snapshot
type SnapshotView struct {
	Account    string       `json:"account,omitempty"`
	Pool       uint64       `json:"pool"`
	Position   PositionView `json:"position"`
	Loading    bool         `json:"loading"`
	Error      string       `json:"error,omitempty"`
	Pending    []TxView     `json:"pending"`
	Generation uint64       `json:"generation"`
	UpdatedAt  *time.Time   `json:"updated_at,omitempty"`
}

// View renders s with amounts truncated to precision
func (s Snapshot) View(precision int32) SnapshotView {
	v := SnapshotView{
		Pool:       s.Pool,
		Position:   NewView(s.Position, precision),
		Loading:    s.Loading,
		Pending:    make([]TxView, 0, len(s.Pending)),
		Generation: s.Generation,
	}
	if s.Account != (common.Address{}) {
		v.Account = s.Account.Hex()
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	for _, kind := range types.AllTxKinds {
		if tx, ok := s.Pending[kind]; ok {
			v.Pending = append(v.Pending, NewTxView(tx))
		}
	}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}
