package position

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/internal/util"
	"github.com/rccstake/rccstake/pkg/types"
)

// Views is the read surface of the staking contract
type Views interface {
	StakingBalance(ctx context.Context, pool uint64, account common.Address) (*big.Int, error)
	WithdrawAmount(ctx context.Context, pool uint64, account common.Address) (requestAmount, pendingWithdrawAmount *big.Int, err error)
}

// Reader derives a Position from the two contract views
type Reader struct {
	views   Views
	metrics *metrics.Collector
}

// NewReader creates a reader. m may be nil.
func NewReader(views Views, m *metrics.Collector) *Reader {
	return &Reader{views: views, metrics: m}
}

// Read issues both views concurrently and reduces them. Either view failing
// fails the whole read with types.ErrRead; no partial Position is returned.
func (r *Reader) Read(ctx context.Context, pool uint64, account common.Address) (types.Position, error) {
	start := time.Now()

	var (
		wg                     sync.WaitGroup
		staked                 *big.Int
		requested, unlocked    *big.Int
		stakedErr, withdrawErr error
	)
	util.GoGroup(&wg, "position.stakingBalance", func() {
		staked, stakedErr = r.views.StakingBalance(ctx, pool, account)
	})
	util.GoGroup(&wg, "position.withdrawAmount", func() {
		requested, unlocked, withdrawErr = r.views.WithdrawAmount(ctx, pool, account)
	})
	wg.Wait()

	if err := firstErr(stakedErr, withdrawErr); err != nil {
		r.metrics.RecordRead(metrics.ReadError, time.Since(start))
		return types.Position{}, fmt.Errorf("%w: %w", types.ErrRead, err)
	}
	if staked == nil || requested == nil || unlocked == nil {
		r.metrics.RecordRead(metrics.ReadError, time.Since(start))
		return types.Position{}, fmt.Errorf("%w: view returned no value", types.ErrRead)
	}

	p := Reduce(staked, requested, unlocked)
	if p.Inconsistent {
		r.metrics.RecordRead(metrics.ReadInconsistent, time.Since(start))
		logging.Warn("inconsistent withdraw views, pending clamped to zero",
			logging.Account(account),
			logging.Pool(pool),
			"requested", requested.String(),
			"withdrawable", unlocked.String(),
			logging.Component("position"))
	} else {
		r.metrics.RecordRead(metrics.ReadOK, time.Since(start))
	}
	return p, nil
}

// Reduce turns raw view results into a Position:
// withdrawable = pendingWithdrawAmount, withdrawPending = requestAmount -
// pendingWithdrawAmount. A negative difference is clamped to zero and the
// Position is marked Inconsistent. Inputs are not retained.
func Reduce(staked, requestAmount, pendingWithdrawAmount *big.Int) types.Position {
	p := types.Position{
		Staked:          nonNegative(staked),
		Withdrawable:    nonNegative(pendingWithdrawAmount),
		WithdrawPending: new(big.Int),
	}
	diff := new(big.Int).Sub(nonNegative(requestAmount), p.Withdrawable)
	if diff.Sign() < 0 {
		p.Inconsistent = true
	} else {
		p.WithdrawPending = diff
	}
	return p
}

func nonNegative(x *big.Int) *big.Int {
	if x == nil || x.Sign() < 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
