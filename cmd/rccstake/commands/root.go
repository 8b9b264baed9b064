package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the rccstake command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rccstake",
		Short: "Stake ETH in the RCC staking pool",
		Long: `Stake ETH into the RCC staking contract, request it back and withdraw
it once the waiting period has passed.

Use --mock to try every command against an in-memory contract.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch OutputFormat {
			case "", "json", "plain":
				return nil
			default:
				return fmt.Errorf("invalid --output %q (want json or plain)", OutputFormat)
			}
		},
	}

	root.PersistentFlags().StringVar(&ConfigPath, "config", "", "Config file (default: ~/.rccstake/config.yaml)")
	root.PersistentFlags().BoolVar(&Mock, "mock", false, "Use an in-memory staking contract")
	root.PersistentFlags().StringVarP(&OutputFormat, "output", "o", "", "Output format: json or plain")
	root.PersistentFlags().StringVar(&LogLevel, "log-level", "", "Log level (overrides log.level)")

	root.AddCommand(NewPositionCmd())
	root.AddCommand(NewDepositCmd())
	root.AddCommand(NewUnstakeCmd())
	root.AddCommand(NewWithdrawCmd())
	root.AddCommand(NewWatchCmd())
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewWalletCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewDoctorCmd())
	root.AddCommand(NewVersionCmd())

	return root
}
