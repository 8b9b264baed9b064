package identity

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/99designs/keyring"
)

const (
	keyringServiceName = "rccstake"
	walletPasswordKey  = "wallet-password"
)

// ErrNoPassword is returned when no password source holds a password.
var ErrNoPassword = errors.New("no wallet password stored")

// PasswordStore keeps the keystore password between runs
type PasswordStore interface {
	Name() string
	Store(password string) error
	Retrieve() (string, error) // ("", nil) when nothing is stored
	Delete() error
}

// platformStore is the OS keyring: Keychain on macOS, Secret Service or
// KWallet on Linux.
type platformStore struct{}

// PlatformKeyring returns the OS keyring store
func PlatformKeyring() PasswordStore { return platformStore{} }

func (platformStore) Name() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "linux":
		return "Secret Service (GNOME Keyring / KDE Wallet)"
	default:
		return "system keyring"
	}
}

func (p platformStore) Store(password string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	err = ring.Set(keyring.Item{
		Key:         walletPasswordKey,
		Data:        []byte(password),
		Label:       "rccstake wallet password",
		Description: "Password for the rccstake staking wallet keystore",
	})
	if err != nil {
		return fmt.Errorf("failed to store in %s: %w", p.Name(), err)
	}
	return nil
}

func (platformStore) Retrieve() (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(walletPasswordKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

func (platformStore) Delete() error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(walletPasswordKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

func openKeyring() (keyring.Keyring, error) {
	var backends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		backends = []keyring.BackendType{keyring.KeychainBackend}
	case "linux":
		backends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend}
	default:
		return nil, fmt.Errorf("no keyring backend available on %s", runtime.GOOS)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    keyringServiceName,
		AllowedBackends:                backends,
		KeychainTrustApplication:       true,
		KeychainAccessibleWhenUnlocked: true,
		KeychainSynchronizable:         false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

// kernelStore is the Linux kernel user keyring
type kernelStore struct{}

// KernelKeyring returns the kernel keyring store (Linux only)
func KernelKeyring() PasswordStore { return kernelStore{} }

func (kernelStore) Name() string                { return "kernel keyring" }
func (kernelStore) Store(password string) error { return StoreKernelKeyring(password) }
func (kernelStore) Delete() error               { return DeleteKernelKeyring() }

func (kernelStore) Retrieve() (string, error) {
	pw, err := RetrieveKernelKeyring()
	if err != nil {
		// a missing key and an unsupported platform both mean "not stored"
		return "", nil
	}
	return pw, nil
}

// DefaultPasswordStores lists the stores consulted in order
func DefaultPasswordStores() []PasswordStore {
	return []PasswordStore{KernelKeyring(), PlatformKeyring()}
}

// ResolvePassword returns explicit when set, otherwise the first password
// found in stores. Unavailable stores are skipped.
func ResolvePassword(explicit string, stores []PasswordStore) (string, string, error) {
	if explicit != "" {
		return explicit, "config", nil
	}
	for _, s := range stores {
		pw, err := s.Retrieve()
		if err != nil {
			continue
		}
		if pw != "" {
			return pw, s.Name(), nil
		}
	}
	return "", "", ErrNoPassword
}

// ForgetPassword deletes the password from every store and returns the
// first error.
func ForgetPassword(stores []PasswordStore) error {
	var first error
	for _, s := range stores {
		if err := s.Delete(); err != nil && first == nil {
			first = fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return first
}
