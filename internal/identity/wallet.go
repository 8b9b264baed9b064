package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrWalletExists is returned when creating or importing into a keystore
// directory that already holds an account.
var ErrWalletExists = errors.New("wallet already exists")

// scrypt parameters for new keys; tests lower them.
var (
	scryptN = keystore.StandardScryptN
	scryptP = keystore.StandardScryptP
)

// Wallet is the staking account kept in an encrypted keystore directory.
// The first account in the directory is the active one.
type Wallet struct {
	keystore *keystore.KeyStore
	dir      string
	address  common.Address

	mu  sync.Mutex
	key *ecdsa.PrivateKey
}

func openKeystore(dir string) (*keystore.KeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return keystore.NewKeyStore(dir, scryptN, scryptP), nil
}

// LoadWallet opens the wallet in dir. It returns (nil, nil) when the
// directory holds no account, which callers treat as read-only mode.
func LoadWallet(dir string) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	found := ks.Accounts()
	if len(found) == 0 {
		return nil, nil
	}
	return &Wallet{keystore: ks, dir: dir, address: found[0].Address}, nil
}

// CreateWallet generates a new account encrypted with password
func CreateWallet(dir, password string) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("%w in %s", ErrWalletExists, dir)
	}

	account, err := ks.NewAccount(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &Wallet{keystore: ks, dir: dir, address: account.Address}, nil
}

// ImportWallet stores a hex private key (with or without 0x) encrypted with
// password.
func ImportWallet(dir, privKeyHex, password string) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("%w in %s", ErrWalletExists, dir)
	}

	if len(privKeyHex) >= 2 && (privKeyHex[:2] == "0x" || privKeyHex[:2] == "0X") {
		privKeyHex = privKeyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}

	account, err := ks.ImportECDSA(privateKey, password)
	if err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}
	return &Wallet{keystore: ks, dir: dir, address: account.Address}, nil
}

// Address returns the account address
func (w *Wallet) Address() common.Address {
	return w.address
}

// KeystoreDir returns the keystore directory
func (w *Wallet) KeystoreDir() string {
	return w.dir
}

// Unlock decrypts and caches the private key
func (w *Wallet) Unlock(password string) (*ecdsa.PrivateKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key != nil {
		return w.key, nil
	}

	account, err := w.keystore.Find(accounts.Account{Address: w.address})
	if err != nil {
		return nil, fmt.Errorf("account %s not in keystore: %w", w.address.Hex(), err)
	}
	keyJSON, err := os.ReadFile(account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}

	w.key = key.PrivateKey
	return w.key, nil
}

// Lock zeros and drops the cached private key
func (w *Wallet) Lock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key != nil {
		w.key.D.SetUint64(0)
		w.key = nil
	}
}
