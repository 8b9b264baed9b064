package commands

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/chain"
	"github.com/rccstake/rccstake/internal/config"
	"github.com/rccstake/rccstake/internal/identity"
	"github.com/rccstake/rccstake/internal/journal"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/metrics"
	"github.com/rccstake/rccstake/internal/stake"
	"github.com/rccstake/rccstake/internal/txn"
	"github.com/rccstake/rccstake/internal/util"
	"golang.org/x/term"
)

// --mock ledger
var (
	mockAccount         = common.HexToAddress("0x5eed000000000000000000000000000000000001")
	mockContractAddress = common.HexToAddress("0x5eed0000000000000000000000000000000000c0")
	mockFunding         = new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
)

const mockPollInterval = 100 * time.Millisecond

// App holds the components one command run needs
type App struct {
	Config  *config.Config
	Engine  *stake.Engine
	Metrics *metrics.Collector
	Journal *journal.Journal

	client *chain.Client
	mock   *chain.MockStakeContract
	wallet *identity.Wallet
}

// newApp builds the engine from config without connecting a wallet
func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:  cfg,
		Metrics: metrics.NewCollector(),
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		app.Journal = j
	}

	var (
		contract stake.Contract
		receipts txn.ReceiptSource
		address  common.Address
		tracker  = txn.TrackerConfig{
			ConfirmTimeout: cfg.Tracker.ConfirmTimeout,
			PollInterval:   cfg.Tracker.PollInterval,
		}
	)

	if Mock {
		app.mock = chain.NewMockStakeContract()
		app.mock.Fund(mockAccount, mockFunding)
		contract, receipts, address = app.mock, app.mock, mockContractAddress
		tracker.PollInterval = mockPollInterval
	} else {
		if err := cfg.ValidateLive(); err != nil {
			app.Close()
			return nil, err
		}

		app.client = newChainClient(cfg)
		if err := app.client.Connect(ctx); err != nil {
			app.Close()
			return nil, err
		}

		address = common.HexToAddress(cfg.Contract.Address)
		sc, err := chain.NewStakeContract(app.client, address)
		if err != nil {
			app.Close()
			return nil, err
		}
		contract, receipts = sc, app.client
	}

	opts := []stake.Option{stake.WithMetrics(app.Metrics)}
	if app.Journal != nil {
		opts = append(opts, stake.WithRecorder(app.Journal))
	}
	app.Engine = stake.New(stake.Config{
		Pool:            cfg.Contract.PoolID,
		ContractAddress: address,
		Tracker:         tracker,
		Precision:       cfg.Display.Precision,
	}, contract, receipts, opts...)

	return app, nil
}

// newChainClient builds an unconnected RPC client from cfg
func newChainClient(cfg *config.Config) *chain.Client {
	retry := util.DefaultRetryConfig()
	retry.MaxRetries = cfg.Chain.DialRetries
	return chain.NewClient(chain.ClientConfig{
		RPCURL:      cfg.Chain.RPCURL,
		ChainID:     cfg.Chain.ChainID,
		MaxGasPrice: cfg.Chain.MaxGasPrice(),
		RateLimit:   cfg.Chain.RPCRateLimit,
		Burst:       cfg.Chain.RPCBurst,
		Retry:       retry,
	})
}

// openApp loads config, builds the engine and connects the keystore wallet.
// With signer set the wallet is unlocked for submitting transactions.
func openApp(ctx context.Context, signer bool) (*App, error) {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return nil, err
	}
	app, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	session, err := app.session(signer)
	if err != nil {
		app.Close()
		return nil, err
	}
	if session == nil {
		app.Close()
		return nil, fmt.Errorf("no wallet found in %s; create one with: rccstake wallet create", cfg.Wallet.KeystoreDir)
	}
	if err := app.Engine.Connect(ctx, session); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// session returns the keystore wallet as a session, nil when there is none
func (a *App) session(signer bool) (txn.Session, error) {
	if Mock {
		if signer {
			return chain.NewMockWallet(a.mock, mockAccount), nil
		}
		return chain.NewMockReadOnlyWallet(a.mock, mockAccount), nil
	}

	w, err := identity.LoadWallet(a.Config.Wallet.KeystoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if w == nil {
		return nil, nil
	}
	if !signer {
		return chain.NewReadOnlyWallet(a.client, w.Address()), nil
	}

	key, err := unlockWallet(a.Config, w)
	if err != nil {
		return nil, err
	}
	a.wallet = w
	return chain.NewWallet(a.client, key), nil
}

// readOnlySession watches account without a signer
func (a *App) readOnlySession(account common.Address) txn.Session {
	if account == (common.Address{}) {
		return nil
	}
	if Mock {
		return chain.NewMockReadOnlyWallet(a.mock, account)
	}
	return chain.NewReadOnlyWallet(a.client, account)
}

// Close releases everything newApp opened
func (a *App) Close() {
	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.wallet != nil {
		a.wallet.Lock()
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			logging.Warn("failed to close journal", logging.Err(err))
		}
	}
	if a.client != nil {
		a.client.Close()
	}
}

// unlockWallet finds the password in env, password file, keyrings and, on a
// terminal, a prompt.
func unlockWallet(cfg *config.Config, w *identity.Wallet) (*ecdsa.PrivateKey, error) {
	explicit, err := cfg.WalletPassword()
	if err != nil {
		return nil, err
	}
	password, source, err := identity.ResolvePassword(explicit, identity.DefaultPasswordStores())
	switch {
	case err == nil:
		logging.Debug("wallet password resolved", "source", source, logging.Component("cli"))
	case errors.Is(err, identity.ErrNoPassword) && term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Fprintf(os.Stderr, "Enter password for %s: ", w.Address().Hex())
		password, err = readPasswordNoEcho()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
	default:
		return nil, fmt.Errorf("wallet is locked: set %s, wallet.password_file, or store the password with: rccstake wallet create", config.EnvWalletPassword)
	}

	key, err := w.Unlock(password)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock wallet (wrong password?): %w", err)
	}
	return key, nil
}

// readPasswordNoEcho reads a line from stdin with echo disabled.
func readPasswordNoEcho() (string, error) {
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(password), nil
}
