//go:build linux

package identity

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const kernelKeyringKeyName = "rccstake-wallet"

// StoreKernelKeyring keeps the password in the user keyring of the running
// kernel. It survives across processes but not a reboot.
func StoreKernelKeyring(password string) error {
	if _, err := unix.AddKey("user", kernelKeyringKeyName, []byte(password), unix.KEY_SPEC_USER_KEYRING); err != nil {
		return fmt.Errorf("add_key failed: %w", err)
	}
	return nil
}

// RetrieveKernelKeyring returns the stored password or an error if none is set.
func RetrieveKernelKeyring() (string, error) {
	id, err := unix.KeyctlSearch(unix.KEY_SPEC_USER_KEYRING, "user", kernelKeyringKeyName, 0)
	if err != nil {
		return "", fmt.Errorf("keyctl search failed: %w", err)
	}

	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, nil, 0)
	if err != nil {
		return "", fmt.Errorf("keyctl read failed: %w", err)
	}
	buf := make([]byte, size)
	n, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, buf, 0)
	if err != nil {
		return "", fmt.Errorf("keyctl read failed: %w", err)
	}
	if n < len(buf) {
		buf = buf[:n]
	}
	return string(buf), nil
}

// DeleteKernelKeyring unlinks the password; a missing key is not an error.
func DeleteKernelKeyring() error {
	id, err := unix.KeyctlSearch(unix.KEY_SPEC_USER_KEYRING, "user", kernelKeyringKeyName, 0)
	if errors.Is(err, unix.ENOKEY) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keyctl search failed: %w", err)
	}
	if _, err := unix.KeyctlInt(unix.KEYCTL_UNLINK, id, unix.KEY_SPEC_USER_KEYRING, 0, 0); err != nil {
		return fmt.Errorf("keyctl unlink failed: %w", err)
	}
	return nil
}
