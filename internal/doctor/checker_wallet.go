package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rccstake/rccstake/internal/identity"
)

// WalletChecker checks that the keystore holds an account. Without one the
// client still reads positions but cannot submit.
type WalletChecker struct {
	keystoreDir string
}

func NewWalletChecker(keystoreDir string) *WalletChecker {
	return &WalletChecker{keystoreDir: keystoreDir}
}

func (c *WalletChecker) Name() string       { return "Wallet" }
func (c *WalletChecker) Category() Category { return CategoryWallet }

func (c *WalletChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
	}

	w, err := identity.LoadWallet(c.keystoreDir)
	if err != nil {
		result.Status = StatusError
		result.Message = "Wallet: Unable to open keystore"
		result.Details = err.Error()
		return result
	}
	if w == nil {
		result.Status = StatusWarning
		result.Message = "Wallet: Not configured"
		result.Details = "Transactions cannot be signed until a wallet exists"
		result.FixCommand = "rccstake wallet create"
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("Wallet: %s", shortAddress(w.Address().Hex()))
	return result
}

// PasswordChecker reports where the keystore password will come from.
// explicit resolves the configured sources (environment, password file).
type PasswordChecker struct {
	explicit func() (string, error)
	stores   []identity.PasswordStore
}

func NewPasswordChecker(explicit func() (string, error), stores []identity.PasswordStore) *PasswordChecker {
	return &PasswordChecker{explicit: explicit, stores: stores}
}

func (c *PasswordChecker) Name() string       { return "Wallet password" }
func (c *PasswordChecker) Category() Category { return CategoryWallet }

func (c *PasswordChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
	}

	explicit, err := c.explicit()
	if err != nil {
		result.Status = StatusError
		result.Message = "Wallet password: Configured source unreadable"
		result.Details = err.Error()
		return result
	}

	_, source, err := identity.ResolvePassword(explicit, c.stores)
	if errors.Is(err, identity.ErrNoPassword) {
		result.Status = StatusWarning
		result.Message = "Wallet password: Not stored"
		result.Details = "You will be prompted on every submission"
		return result
	}
	if err != nil {
		result.Status = StatusError
		result.Message = "Wallet password: Unable to check"
		result.Details = err.Error()
		return result
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("Wallet password: From %s", source)
	return result
}

func shortAddress(addr string) string {
	if len(addr) > 10 {
		return addr[:6] + "..." + addr[len(addr)-4:]
	}
	return addr
}
