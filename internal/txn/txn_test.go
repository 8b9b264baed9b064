package txn

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/chain"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/internal/position"
	"github.com/rccstake/rccstake/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0x4444444444444444444444444444444444444444")

func ether(s string) *big.Int {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return x.Mul(x, big.NewInt(1e18))
}

type memRecorder struct {
	mu      sync.Mutex
	entries []types.PendingTransaction
}

func (r *memRecorder) Record(_ common.Address, tx types.PendingTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, tx.Clone())
	return nil
}

func (r *memRecorder) statuses(id string) []types.TxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.TxStatus
	for _, e := range r.entries {
		if e.ID == id {
			out = append(out, e.Status)
		}
	}
	return out
}

type fixture struct {
	mock      *chain.MockStakeContract
	wallet    *chain.MockWallet
	store     *position.Store
	tracker   *Tracker
	submitter *Submitter
	recorder  *memRecorder
	metrics   *metrics.Collector
	refreshes atomic.Int32
}

func newFixture(t *testing.T, cfg TrackerConfig) *fixture {
	t.Helper()
	f := &fixture{
		mock:     chain.NewMockStakeContract(),
		recorder: &memRecorder{},
		metrics:  metrics.NewCollector(),
	}
	f.mock.Fund(testAccount, ether("3"))
	f.wallet = chain.NewMockWallet(f.mock, testAccount)
	f.store = position.NewStore(position.NewReader(f.mock, nil), types.DefaultPoolID)
	require.NoError(t, f.store.AccountChanged(context.Background(), testAccount))

	refresh := func(ctx context.Context, account common.Address) error {
		f.refreshes.Add(1)
		return f.store.RefreshAccount(ctx, account)
	}
	f.tracker = NewTracker(f.mock, f.store, refresh, cfg, WithRecorder(f.recorder), WithMetrics(f.metrics))
	f.submitter = NewSubmitter(SubmitterConfig{Pool: types.DefaultPoolID}, f.wallet, f.mock, f.store, f.tracker,
		WithRecorder(f.recorder), WithMetrics(f.metrics))
	t.Cleanup(f.tracker.Close)
	return f
}

func fastTracker() TrackerConfig {
	return TrackerConfig{ConfirmTimeout: 2 * time.Second, PollInterval: 5 * time.Millisecond}
}

func waitDone(t *testing.T, h *Handle) types.PendingTransaction {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := h.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return tx
}

func TestDeposit_Validation(t *testing.T) {
	f := newFixture(t, fastTracker())
	ctx := context.Background()

	tests := []struct {
		input string
		want  error
	}{
		{"abc", types.ErrInvalidAmount},
		{"", types.ErrInvalidAmount},
		{"-1", types.ErrInvalidAmount},
		{"1e3", types.ErrInvalidAmount},
		{"0.0000000000000000001", types.ErrInvalidAmount},
		{"0", types.ErrValidation},
		{"0.000", types.ErrValidation},
		{"5", types.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			h, err := f.submitter.Deposit(ctx, tt.input)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.mock.Submissions(), "validation failures must not submit")
	_, ok := f.store.Pending(types.TxDeposit)
	assert.False(t, ok)
}

func TestUnstakeAndWithdraw_ValidationMakesNoNetworkCall(t *testing.T) {
	f := newFixture(t, fastTracker())
	ctx := context.Background()
	reads := f.mock.Reads()

	_, err := f.submitter.Unstake(ctx, "1")
	assert.ErrorIs(t, err, types.ErrValidation, "nothing staked")
	_, err = f.submitter.Unstake(ctx, "0")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = f.submitter.Withdraw(ctx)
	assert.ErrorIs(t, err, types.ErrValidation, "nothing withdrawable")

	assert.Equal(t, reads, f.mock.Reads())
	assert.Equal(t, 0, f.mock.Submissions())
}

func TestSubmit_NoSigner(t *testing.T) {
	f := newFixture(t, fastTracker())
	ctx := context.Background()

	f.submitter.SetSession(nil)
	_, err := f.submitter.Deposit(ctx, "1")
	assert.ErrorIs(t, err, types.ErrNoSigner)

	f.submitter.SetSession(chain.NewMockReadOnlyWallet(f.mock, testAccount))
	_, err = f.submitter.Withdraw(ctx)
	assert.ErrorIs(t, err, types.ErrNoSigner)
	assert.Equal(t, 0, f.mock.Submissions())
}

func TestSubmit_WalletMustMatchTrackedAccount(t *testing.T) {
	f := newFixture(t, fastTracker())
	ctx := context.Background()

	other := common.HexToAddress("0x5555555555555555555555555555555555555555")
	f.mock.Fund(other, ether("3"))
	f.submitter.SetSession(chain.NewMockWallet(f.mock, other))

	_, err := f.submitter.Deposit(ctx, "1")
	assert.ErrorIs(t, err, types.ErrNoSigner)
	_, err = f.submitter.Unstake(ctx, "1")
	assert.ErrorIs(t, err, types.ErrNoSigner)
	assert.Equal(t, 0, f.mock.Submissions())
	_, ok := f.store.Pending(types.TxDeposit)
	assert.False(t, ok, "a rejected call must not reserve a slot")

	require.NoError(t, f.store.AccountChanged(ctx, other))
	h, err := f.submitter.Deposit(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, types.TxConfirmed, waitDone(t, h).Status)
}

func TestDeposit_ConfirmsAndRefreshesOnce(t *testing.T) {
	f := newFixture(t, fastTracker())
	f.mock.SetMiningDelay(2)

	h, err := f.submitter.Deposit(context.Background(), "1.5")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, types.TxDeposit, h.Kind())

	var seen []types.TxStatus
	for tx := range h.Updates() {
		seen = append(seen, tx.Status)
		if tx.Status == types.TxPending {
			assert.True(t, tx.HasHash())
		}
	}
	assert.Equal(t, []types.TxStatus{types.TxPending, types.TxConfirmed}, seen)

	tx := waitDone(t, h)
	assert.Equal(t, types.TxConfirmed, tx.Status)
	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, "1500000000000000000", f.store.Position().Staked.String())

	_, ok := f.store.Pending(types.TxDeposit)
	assert.False(t, ok, "slot cleared after confirmation")
	assert.Equal(t, []types.TxStatus{types.TxSubmitting, types.TxPending, types.TxConfirmed}, f.recorder.statuses(h.ID()))
}

func TestUnstakeThenWithdraw(t *testing.T) {
	f := newFixture(t, fastTracker())
	ctx := context.Background()

	h, err := f.submitter.Deposit(ctx, "2")
	require.NoError(t, err)
	waitDone(t, h)

	_, err = f.submitter.Unstake(ctx, "2.5")
	assert.ErrorIs(t, err, types.ErrValidation, "more than staked")

	h, err = f.submitter.Unstake(ctx, "0.5")
	require.NoError(t, err)
	tx := waitDone(t, h)
	require.Equal(t, types.TxConfirmed, tx.Status)

	p := f.store.Position()
	assert.Equal(t, "1500000000000000000", p.Staked.String())
	assert.Equal(t, "500000000000000000", p.WithdrawPending.String())
	assert.Equal(t, types.StageWaiting, p.Stage())

	_, err = f.submitter.Withdraw(ctx)
	assert.ErrorIs(t, err, types.ErrValidation, "still locked")

	f.mock.Advance(types.LockWindow)
	require.NoError(t, f.store.Refresh(ctx))
	assert.Equal(t, types.StageWithdraw, f.store.Position().Stage())

	h, err = f.submitter.Withdraw(ctx)
	require.NoError(t, err)
	tx = waitDone(t, h)
	assert.Equal(t, types.TxConfirmed, tx.Status)
	assert.Nil(t, tx.Amount)
	assert.Equal(t, 0, f.store.Position().Withdrawable.Sign())
	assert.Equal(t, int32(3), f.refreshes.Load())
}

func TestSubmit_AlreadyPending(t *testing.T) {
	f := newFixture(t, fastTracker())
	f.mock.SetMiningDelay(chain.NeverMine)
	ctx := context.Background()

	h, err := f.submitter.Deposit(ctx, "1")
	require.NoError(t, err)

	_, err = f.submitter.Deposit(ctx, "1")
	assert.ErrorIs(t, err, types.ErrAlreadyPending)
	assert.Equal(t, 1, f.mock.Submissions())

	got, ok := f.store.Pending(types.TxDeposit)
	require.True(t, ok)
	assert.Equal(t, h.ID(), got.ID)
	assert.Equal(t, types.TxPending, got.Status)
}

func TestSubmit_Rejected(t *testing.T) {
	f := newFixture(t, fastTracker())
	rejected := errors.New("user denied transaction signature")
	f.mock.FailNextSubmit(rejected)

	h, err := f.submitter.Deposit(context.Background(), "1")
	assert.Nil(t, h)
	assert.ErrorIs(t, err, types.ErrSubmission)
	assert.ErrorIs(t, err, rejected)

	got, ok := f.store.Pending(types.TxDeposit)
	require.True(t, ok)
	assert.Equal(t, types.TxFailed, got.Status)
	assert.False(t, got.HasHash())
	assert.ErrorIs(t, got.Err, types.ErrSubmission)

	// a failed slot does not block a retry
	h, err = f.submitter.Deposit(context.Background(), "1")
	require.NoError(t, err)
	waitDone(t, h)
}

func TestTracker_Revert(t *testing.T) {
	f := newFixture(t, fastTracker())
	f.mock.RevertNext()

	h, err := f.submitter.Deposit(context.Background(), "1")
	require.NoError(t, err)
	tx := waitDone(t, h)

	assert.Equal(t, types.TxFailed, tx.Status)
	assert.ErrorIs(t, tx.Err, types.ErrChainFailure)
	_, werr := h.Wait(context.Background())
	assert.ErrorIs(t, werr, types.ErrChainFailure)
	assert.Equal(t, int32(0), f.refreshes.Load(), "no refresh on failure")

	got, ok := f.store.Pending(types.TxDeposit)
	require.True(t, ok, "failed transaction stays until acknowledged")
	assert.Equal(t, types.TxFailed, got.Status)
	assert.True(t, f.store.Acknowledge(types.TxDeposit))
}

func TestTracker_Timeout(t *testing.T) {
	f := newFixture(t, TrackerConfig{ConfirmTimeout: 60 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	f.mock.SetMiningDelay(chain.NeverMine)

	h, err := f.submitter.Withdraw(context.Background())
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Nil(t, h)

	h, err = f.submitter.Deposit(context.Background(), "1")
	require.NoError(t, err)
	tx := waitDone(t, h)
	assert.Equal(t, types.TxFailed, tx.Status)
	assert.ErrorIs(t, tx.Err, types.ErrTimeout)
	assert.Equal(t, int32(0), f.refreshes.Load())
}

func TestTracker_CloseLeavesPending(t *testing.T) {
	f := newFixture(t, fastTracker())
	f.mock.SetMiningDelay(chain.NeverMine)

	h, err := f.submitter.Deposit(context.Background(), "1")
	require.NoError(t, err)

	f.tracker.Close()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle not finished after Close")
	}
	assert.Equal(t, types.TxPending, h.Current().Status)
	got, _ := f.store.Pending(types.TxDeposit)
	assert.Equal(t, types.TxPending, got.Status)

	// tracking after close returns a finished handle
	late := f.tracker.Track(testAccount, types.PendingTransaction{ID: "late", Kind: types.TxWithdraw}, common.HexToHash("0x01"))
	<-late.Done()
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	f := newFixture(t, fastTracker())
	f.mock.SetMiningDelay(chain.NeverMine)

	h, err := f.submitter.Deposit(context.Background(), "1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	tx, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.TxPending, tx.Status, "abandoning the wait does not affect the transaction")
}
