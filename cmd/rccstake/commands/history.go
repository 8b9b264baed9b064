package commands

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/identity"
	"github.com/rccstake/rccstake/internal/journal"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	var (
		limit   int
		account string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List submitted transactions, newest first",
		Long:  "List the transactions this client submitted, as recorded in the local journal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("the journal is disabled (journal.enabled: false)")
			}

			var addr common.Address
			switch {
			case account != "":
				if !common.IsHexAddress(account) {
					return fmt.Errorf("invalid account %q", account)
				}
				addr = common.HexToAddress(account)
			case Mock:
				addr = mockAccount
			default:
				addr = identity.PrimaryAccount(cfg.Wallet.KeystoreDir)
			}
			if addr == (common.Address{}) {
				return fmt.Errorf("no wallet found in %s; pass --account", cfg.Wallet.KeystoreDir)
			}

			j, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.List(addr, limit)
			if err != nil {
				return err
			}
			if jsonOutput() {
				if entries == nil {
					entries = []journal.Entry{}
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}
			if len(entries) == 0 {
				Info("No transactions recorded for " + addr.Hex())
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.SubmittedAt.Local().Format("2006-01-02 15:04:05"),
					string(e.Kind),
					e.Amount,
					StatusBadge(string(e.Status)),
					FormatAddress(e.Hash),
					e.Error,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderTable(
				[]string{"SUBMITTED", "ACTION", "AMOUNT", "STATUS", "HASH", "ERROR"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 = all)")
	cmd.Flags().StringVar(&account, "account", "", "Account to list (default: keystore account)")
	return cmd
}
