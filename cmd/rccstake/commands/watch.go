package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rccstake/rccstake/internal/position"
	"github.com/spf13/cobra"
)

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the position as it changes",
		Long: `Print the position whenever it changes. Switching the account in the
keystore directory switches the watched account; no signer is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			app, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			return follow(ctx, app, interval, func(snap position.Snapshot) {
				if snap.Loading {
					return
				}
				view := snap.View(app.Engine.Precision())
				if jsonOutput() {
					enc.Encode(view)
					return
				}
				fmt.Fprintln(out, watchLine(view))
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "How often to re-read the position")
	return cmd
}

// watchLine renders a snapshot as a single log-style line
func watchLine(view position.SnapshotView) string {
	ts := time.Now().Format("15:04:05")
	if view.Account == "" {
		return ts + "  no account"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s  staked %s  withdrawable %s  waiting %s",
		ts, FormatAddress(view.Account),
		view.Position.Staked, view.Position.Withdrawable, view.Position.WithdrawPending)
	for _, tx := range view.Pending {
		fmt.Fprintf(&sb, "  [%s %s]", tx.Kind, tx.Status)
	}
	if view.Error != "" {
		sb.WriteString("  error: " + view.Error)
	}
	return sb.String()
}
