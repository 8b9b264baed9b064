package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/util"
	"golang.org/x/time/rate"
)

// ErrNotConnected is returned by every call made before Connect or after Close.
var ErrNotConnected = errors.New("not connected to RPC")

// ClientConfig holds RPC connection settings
type ClientConfig struct {
	RPCURL      string
	ChainID     int64
	MaxGasPrice *big.Int // nil = no cap
	RateLimit   float64  // read calls per second, 0 = unlimited
	Burst       int
	Retry       *util.RetryConfig
}

// Client wraps an ethclient connection with chain-id verification, read
// throttling and transactor construction.
type Client struct {
	config  ClientConfig
	chainID *big.Int
	limiter *rate.Limiter

	eth *ethclient.Client
	mu  sync.RWMutex
}

// NewClient creates an unconnected client
func NewClient(config ClientConfig) *Client {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		config:  config,
		chainID: big.NewInt(config.ChainID),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Connect dials the RPC endpoint, retrying with backoff, and verifies that
// the node serves the configured chain.
func (c *Client) Connect(ctx context.Context) error {
	eth, attempts, err := util.Retry(ctx, c.config.Retry, func(ctx context.Context) (*ethclient.Client, error) {
		return ethclient.DialContext(ctx, c.config.RPCURL)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RPC after %d attempts: %w", attempts, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Cmp(c.chainID) != 0 {
		eth.Close()
		return fmt.Errorf("chain ID mismatch: expected %d, got %d", c.chainID, chainID)
	}

	c.mu.Lock()
	c.eth = eth
	c.mu.Unlock()

	logging.Debug("rpc connected", "chain_id", chainID.String(), logging.Component("chain"))
	return nil
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

// IsConnected reports whether Connect succeeded and Close has not been called
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eth != nil
}

// ChainID returns the configured chain id
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// backend returns the live connection after waiting for a read token.
func (c *Client) backend(ctx context.Context) (*ethclient.Client, error) {
	c.mu.RLock()
	eth := c.eth
	c.mu.RUnlock()
	if eth == nil {
		return nil, ErrNotConnected
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rpc throttle: %w", err)
	}
	return eth, nil
}

// BalanceAt returns the latest ETH balance of address
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	eth, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := eth.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// CodeAt returns the deployed bytecode at address, empty for an EOA
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	eth, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}
	code, err := eth.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return code, nil
}

// TransactionReceipt returns the receipt for hash, or ethereum.NotFound while
// the transaction is not yet included.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	eth, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := eth.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ethereum.NotFound
	}
	return receipt, err
}

// contractBackend exposes the raw connection for contract bindings, which
// throttle per call through backend().
func (c *Client) contractBackend() bind.ContractBackend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.eth == nil {
		return nil
	}
	return c.eth
}

// TransactOpts builds signing options for key with the gas price capped at
// the configured maximum.
func (c *Client) TransactOpts(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	if key == nil {
		return nil, fmt.Errorf("no private key configured")
	}
	c.mu.RLock()
	eth := c.eth
	c.mu.RUnlock()
	if eth == nil {
		return nil, ErrNotConnected
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	if c.config.MaxGasPrice != nil {
		gasPrice, err := eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		if gasPrice.Cmp(c.config.MaxGasPrice) > 0 {
			logging.Warn("suggested gas price above cap, using cap",
				"suggested", gasPrice.String(),
				"cap", c.config.MaxGasPrice.String(),
				logging.Component("chain"))
			gasPrice = new(big.Int).Set(c.config.MaxGasPrice)
		}
		auth.GasPrice = gasPrice
	}
	return auth, nil
}
