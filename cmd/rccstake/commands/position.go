package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPositionCmd creates the position command
func NewPositionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position",
		Short: "Show the staked position",
		Long: `Read the wallet's position in the staking pool: the staked amount, the
amount available to withdraw and the amount still in its waiting period.`,
		Args: cobra.NoArgs,
		RunE: runPosition,
	}
}

func runPosition(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	view := app.Engine.View()
	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), view)
	}
	fmt.Fprintln(cmd.OutOrStdout(), PositionBox(view))
	return nil
}
