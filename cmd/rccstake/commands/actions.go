package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/rccstake/rccstake/internal/position"
	"github.com/rccstake/rccstake/internal/txn"
	"github.com/rccstake/rccstake/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// ActionResult is the JSON output of deposit, unstake and withdraw
type ActionResult struct {
	Transaction position.TxView       `json:"transaction"`
	Position    position.SnapshotView `json:"position"`
}

// NewDepositCmd creates the deposit command
func NewDepositCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Stake ETH into the pool",
		Long:  "Stake an amount of ETH, e.g. 0.5, from the wallet balance into the pool.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, types.TxDeposit, args[0], yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Submit without asking for confirmation")
	return cmd
}

// NewUnstakeCmd creates the unstake command
func NewUnstakeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "unstake <amount>",
		Short: "Request an amount back from the pool",
		Long: fmt.Sprintf(`Request an amount of staked ETH back. The amount becomes withdrawable
after a %.0f minutes waiting period; collect it with: rccstake withdraw`, types.LockWindow.Minutes()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, types.TxUnstake, args[0], yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Submit without asking for confirmation")
	return cmd
}

// NewWithdrawCmd creates the withdraw command
func NewWithdrawCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw every unlocked amount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, types.TxWithdraw, "", yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Submit without asking for confirmation")
	return cmd
}

func runAction(cmd *cobra.Command, kind types.TxKind, amountDecimal string, yes bool) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	if !yes {
		ok, err := confirmAction(kind, amountDecimal, app.Engine.View())
		if err != nil {
			return err
		}
		if !ok {
			Info("Cancelled.")
			return nil
		}
	}

	var h *txn.Handle
	switch kind {
	case types.TxDeposit:
		h, err = app.Engine.Deposit(ctx, amountDecimal)
	case types.TxUnstake:
		h, err = app.Engine.Unstake(ctx, amountDecimal)
	case types.TxWithdraw:
		h, err = app.Engine.Withdraw(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s not submitted: %w", kind, err)
	}

	var final types.PendingTransaction
	waitErr := WithSpinner(fmt.Sprintf("Waiting for %s to be mined", kind), func() error {
		var err error
		final, err = h.Wait(ctx)
		return err
	})
	if errors.Is(waitErr, context.Canceled) {
		tx := h.Current()
		Warning("Stopped waiting; the transaction is still pending on chain.")
		fmt.Println(Hint("hash " + tx.Hash.Hex()))
		return nil
	}

	result := ActionResult{
		Transaction: position.NewTxView(final),
		Position:    app.Engine.View(),
	}
	if jsonOutput() {
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		return waitErr
	}
	if waitErr != nil {
		return fmt.Errorf("%s failed: %w", kind, waitErr)
	}

	Success(fmt.Sprintf("%s confirmed", actionTitle(kind)))
	fmt.Println(Hint("hash " + final.Hash.Hex()))
	if kind == types.TxUnstake {
		Info(fmt.Sprintf("%.0f minutes waiting period started. Withdraw afterwards with: rccstake withdraw", types.LockWindow.Minutes()))
	}
	fmt.Fprintln(cmd.OutOrStdout(), PositionBox(result.Position))
	return nil
}

func actionTitle(kind types.TxKind) string {
	switch kind {
	case types.TxDeposit:
		return "Deposit"
	case types.TxUnstake:
		return "Unstake"
	default:
		return "Withdraw"
	}
}

// confirmAction asks before submitting. Without a terminal it refuses so
// scripts must pass --yes.
func confirmAction(kind types.TxKind, amountDecimal string, view position.SnapshotView) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("no terminal to confirm on; pass --yes to submit")
	}

	var title, desc string
	switch kind {
	case types.TxDeposit:
		title = fmt.Sprintf("Stake %s ETH into pool %d?", amountDecimal, view.Pool)
		desc = "Currently staked: " + view.Position.Staked + " ETH"
	case types.TxUnstake:
		title = fmt.Sprintf("Unstake %s ETH from pool %d?", amountDecimal, view.Pool)
		desc = fmt.Sprintf("Staked: %s ETH. The amount unlocks after %.0f minutes.",
			view.Position.Staked, types.LockWindow.Minutes())
	case types.TxWithdraw:
		title = fmt.Sprintf("Withdraw %s ETH from pool %d?", view.Position.Withdrawable, view.Pool)
		desc = "Still waiting: " + view.Position.WithdrawPending + " ETH"
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(desc).
		Affirmative("Submit").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
