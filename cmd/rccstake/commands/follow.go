package commands

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/identity"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/position"
	"github.com/rccstake/rccstake/pkg/types"
)

// follow keeps the engine on the keystore's active account and re-reads
// the Position every interval until ctx is done. onSnapshot, if set, sees
// every store snapshot.
func follow(ctx context.Context, app *App, interval time.Duration, onSnapshot func(position.Snapshot)) error {
	var changes <-chan common.Address
	current := mockAccount
	if !Mock {
		watcher, err := identity.NewAccountWatcher(app.Config.Wallet.KeystoreDir)
		if err != nil {
			return err
		}
		defer watcher.Close()
		changes = watcher.Changes()
		current = watcher.Current()
	}

	snapshots, cancel := app.Engine.Subscribe()
	defer cancel()

	switchTo := func(account common.Address) {
		if err := app.Engine.Connect(ctx, app.readOnlySession(account)); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("position read failed", logging.Account(account), logging.Err(err), logging.Component("cli"))
		}
	}
	switchTo(current)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if onSnapshot != nil {
				onSnapshot(snap)
			}

		case account, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			logging.Info("switching account", logging.Account(account), logging.Component("cli"))
			switchTo(account)

		case <-ticker.C:
			err := app.Engine.Refresh(ctx)
			if err != nil && !errors.Is(err, types.ErrNoSigner) && !errors.Is(err, context.Canceled) {
				logging.Warn("position refresh failed", logging.Err(err), logging.Component("cli"))
			}
		}
	}
}
