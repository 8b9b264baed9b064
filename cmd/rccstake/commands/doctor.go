package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/doctor"
	"github.com/rccstake/rccstake/internal/identity"
	"github.com/spf13/cobra"
)

// NewDoctorCmd creates the doctor command
func NewDoctorCmd() *cobra.Command {
	var (
		category string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine is ready to stake",
		Long: `Run preflight checks: configuration, wallet, stored password, RPC
endpoint, stake contract and the local journal.

With --mock the chain checks are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d := doctor.New(doctor.DoctorOptions{
				JSON:     jsonOutput(),
				Category: doctor.Category(category),
			}, cmd.OutOrStdout(), isTTY())

			d.AddChecker(doctor.NewConfigChecker(cfg, !Mock))
			d.AddChecker(doctor.NewWalletChecker(cfg.Wallet.KeystoreDir))
			d.AddChecker(doctor.NewPasswordChecker(cfg.WalletPassword, identity.DefaultPasswordStores()))

			var probe doctor.ChainProbe
			if !Mock && cfg.Chain.RPCURL != "" {
				client := newChainClient(cfg)
				defer client.Close()
				probe = client
			}
			d.AddChecker(doctor.NewRPCChecker(probe, cfg.Chain.RPCURL))
			d.AddChecker(doctor.NewContractChecker(probe, common.HexToAddress(cfg.Contract.Address)))
			d.AddChecker(doctor.NewJournalChecker(cfg.Journal))

			report, err := d.Run(ctx)
			if err != nil {
				return err
			}
			if !report.Summary.IsHealthy() {
				return fmt.Errorf("%d check(s) failed", report.Summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only run checks in this category (config, wallet, chain, storage)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time limit for the checks")

	return cmd
}
