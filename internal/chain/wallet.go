package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rccstake/rccstake/pkg/types"
)

// Wallet is a connected account: an address, an optional signing key and the
// client used to query its balance and build transactors.
type Wallet struct {
	client  *Client
	address common.Address
	key     *ecdsa.PrivateKey
}

// NewWallet returns a signing wallet for key
func NewWallet(client *Client, key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		client:  client,
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}
}

// NewReadOnlyWallet returns a wallet that can read but not sign. Write
// operations fail with types.ErrNoSigner.
func NewReadOnlyWallet(client *Client, address common.Address) *Wallet {
	return &Wallet{client: client, address: address}
}

// Account returns the wallet address
func (w *Wallet) Account() common.Address {
	return w.address
}

// CanSign reports whether a private key is loaded
func (w *Wallet) CanSign() bool {
	return w.key != nil
}

// Balance returns the spendable ETH balance
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.client.BalanceAt(ctx, w.address)
}

// TransactOpts returns signing options bound to ctx
func (w *Wallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if w.key == nil {
		return nil, types.ErrNoSigner
	}
	return w.client.TransactOpts(ctx, w.key)
}
