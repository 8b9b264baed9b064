package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rccstake/rccstake/internal/identity"
	"github.com/spf13/cobra"
)

// NewWalletCmd creates the wallet command group
func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the staking wallet",
		Long: `Manage the Ethereum account that signs deposit, unstake and withdraw
transactions. The key is kept in an encrypted keystore directory (geth V3
format); the first account in the directory is the active one.

The wallet password can be kept in a keyring:
  macOS:           Keychain
  Linux (desktop): GNOME Keyring / KDE Wallet
  Linux (server):  kernel keyring (volatile, lost on reboot)

Examples:
  rccstake wallet create            # Generate a new wallet
  rccstake wallet import            # Import from a private key
  rccstake wallet show              # Show address and keystore path
  rccstake wallet forget-password   # Remove the stored password`,
	}

	cmd.AddCommand(newWalletCreateCmd())
	cmd.AddCommand(newWalletImportCmd())
	cmd.AddCommand(newWalletShowCmd())
	cmd.AddCommand(newWalletForgetPasswordCmd())

	return cmd
}

// keystoreDir returns the --keystore flag or the configured directory
func keystoreDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return "", err
	}
	return cfg.Wallet.KeystoreDir, nil
}

// storePassword saves password in the first keyring that accepts it
func storePassword(password string) {
	for _, store := range []identity.PasswordStore{identity.PlatformKeyring(), identity.KernelKeyring()} {
		if err := store.Store(password); err == nil {
			fmt.Printf("  Password saved to %s\n", store.Name())
			fmt.Println("  The wallet will be unlocked automatically.")
			return
		}
	}

	fmt.Println("  Could not store password in a keyring.")
	fmt.Println("  For automatic unlock, set one of:")
	fmt.Println("    - RCCSTAKE_WALLET_PASSWORD environment variable")
	fmt.Println("    - wallet.password_file in config.yaml")
}

// promptNewPassword asks for a password twice
func promptNewPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprint(os.Stderr, "Enter wallet password: ")
		password, err := readPasswordNoEcho()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if len(password) < 8 {
			Warning("Password must be at least 8 characters. Try again.")
			continue
		}

		fmt.Fprint(os.Stderr, "Confirm wallet password: ")
		confirm, err := readPasswordNoEcho()
		if err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if password != confirm {
			Warning("Passwords do not match. Try again.")
			continue
		}
		return password, nil
	}
	return "", fmt.Errorf("too many failed attempts")
}

func newWalletCreateCmd() *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := keystoreDir(dirFlag)
			if err != nil {
				return err
			}
			if w, err := identity.LoadWallet(dir); err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			} else if w != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", dir, w.Address().Hex())
			}

			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			w, err := identity.CreateWallet(dir, password)
			if err != nil {
				return err
			}

			fmt.Println()
			Success("Wallet created!")
			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", dir},
			}))
			storePassword(password)
			fmt.Println()
			Warning("Back up your keystore directory and remember your password.")
			fmt.Println(Hint("Fund the address with Sepolia ETH before depositing."))
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "keystore", "", "Path to keystore directory (default: wallet.keystore_dir)")
	return cmd
}

func newWalletImportCmd() *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from a private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := keystoreDir(dirFlag)
			if err != nil {
				return err
			}
			if w, err := identity.LoadWallet(dir); err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			} else if w != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", dir, w.Address().Hex())
			}

			const maxAttempts = 3
			var privKeyHex string
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				fmt.Fprint(os.Stderr, "Enter private key (hex, with or without 0x prefix): ")
				input, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read private key: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				input = strings.TrimPrefix(strings.TrimSpace(input), "0x")
				if len(input) != 64 {
					Warning(fmt.Sprintf("Private key must be 64 hex characters (32 bytes), got %d. Try again.", len(input)))
					continue
				}
				privKeyHex = input
				break
			}
			if privKeyHex == "" {
				return fmt.Errorf("too many failed attempts")
			}

			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			w, err := identity.ImportWallet(dir, privKeyHex, password)
			if err != nil {
				return err
			}

			fmt.Println()
			Success("Wallet imported!")
			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", dir},
			}))
			storePassword(password)
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "keystore", "", "Path to keystore directory (default: wallet.keystore_dir)")
	return cmd
}

func newWalletShowCmd() *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show wallet address and keystore path",
		Long:  "Display the wallet address and keystore directory. No password needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := keystoreDir(dirFlag)
			if err != nil {
				return err
			}
			w, err := identity.LoadWallet(dir)
			if err != nil {
				return fmt.Errorf("failed to load wallet: %w", err)
			}
			if w == nil {
				Info("No wallet found.")
				fmt.Println(Hint("Create one with: rccstake wallet create"))
				return nil
			}

			pwStatus := "not stored (prompted on use)"
			if _, source, err := identity.ResolvePassword("", identity.DefaultPasswordStores()); err == nil {
				pwStatus = "stored in " + source
			} else if !errors.Is(err, identity.ErrNoPassword) {
				pwStatus = "unknown: " + err.Error()
			}

			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", dir},
				{"Password", pwStatus},
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "keystore", "", "Path to keystore directory (default: wallet.keystore_dir)")
	return cmd
}

func newWalletForgetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget-password",
		Short: "Remove the wallet password from every keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.ForgetPassword(identity.DefaultPasswordStores()); err != nil {
				return fmt.Errorf("failed to remove stored password: %w", err)
			}
			Success("Stored wallet password removed.")
			fmt.Println(Hint("Set RCCSTAKE_WALLET_PASSWORD or wallet.password_file for unattended use."))
			return nil
		},
	}
}
