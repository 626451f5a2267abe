package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
	"github.com/Veraticus/the-receipts-must-flow/internal/session"
	"github.com/Veraticus/the-receipts-must-flow/internal/workflow"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <receipt-id>",
		Short: "Extract transactions from a receipt and review them",
		Long: `Start a new extraction for a receipt, or continue the active batch session when one
still has transactions waiting for review.

A new extraction streams its progress; press Ctrl-C to cancel it. Once it finishes the
interactive reviewer opens on the first transaction that still needs a decision.`,
		Args: cobra.ExactArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().String("bank-account", "", "bank account ID the extracted transactions belong to")
	cmd.Flags().Bool("no-review", false, "stop after extraction without opening the reviewer")
	cmd.Flags().Bool("yes", false, "extract even when detection finds no transactions")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	receiptID := args[0]

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireSession(); err != nil {
		return err
	}

	wf := a.workflow()
	res, err := wf.Load(ctx, receiptID)
	if err != nil {
		return a.fail(ctx, err)
	}

	noReview, _ := cmd.Flags().GetBool("no-review")
	if !isTerminal(os.Stdout) {
		noReview = true
	}

	var stepper *review.Stepper
	if res.Action == session.ActionContinue {
		_, _ = fmt.Fprintln(a.errOut, cli.FormatInfo("Continuing batch session "+res.ActiveSession.ID))
		stepper, err = wf.Continue(ctx)
	} else {
		stepper, err = a.extract(ctx, cmd, wf, receiptID)
	}
	if err != nil {
		return a.fail(ctx, err)
	}
	if stepper == nil {
		return nil
	}

	if noReview {
		return a.summarize(stepper)
	}
	return a.review(ctx, receiptID, stepper)
}

// extract runs a new extraction with a progress bar. A nil stepper means the reviewer
// chose not to extract.
func (a *app) extract(ctx context.Context, cmd *cobra.Command, wf *workflow.Workflow, receiptID string) (*review.Stepper, error) {
	bankAccountID, err := a.bankAccount(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		detection, err := wf.Detect(ctx)
		if err != nil {
			return nil, err
		}
		if !detection.Found() {
			ok, err := cli.NewPrompter(cmd.InOrStdin(), a.errOut).
				Confirm(ctx, "No transactions detected. Extract anyway?", false)
			if err != nil || !ok {
				return nil, err
			}
		}
	}

	interrupts := cli.NewInterruptHandler(a.errOut, wf.Cancel)
	ctx = interrupts.HandleInterrupts(ctx, "receipts process "+receiptID)

	renderer := cli.NewProgressRenderer(a.errOut)
	stepper, err := wf.Process(ctx, bankAccountID, renderer.Handle)
	if err != nil {
		if interrupts.WasInterrupted() || errors.Is(err, common.ErrCancelled) {
			slog.Debug("Extraction cancelled by reviewer", "receipt_id", receiptID)
			return nil, fmt.Errorf("%w: extraction", common.ErrCancelled)
		}
		return nil, err
	}
	return stepper, nil
}

// bankAccount returns --bank-account, or the only account the user has.
func (a *app) bankAccount(ctx context.Context, cmd *cobra.Command) (string, error) {
	if id, _ := cmd.Flags().GetString("bank-account"); id != "" {
		return id, nil
	}

	accounts, err := a.client.ListBankAccounts(ctx)
	if err != nil {
		return "", err
	}
	switch len(accounts) {
	case 0:
		return "", common.NewUserError("no bank accounts found, add one in the web app first", common.ErrMissingField)
	case 1:
		return accounts[0].ID, nil
	}

	names := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		names = append(names, fmt.Sprintf("%s (%s)", acct.ID, acct.Name))
	}
	return "", common.NewUserError(
		"--bank-account is required, choose one of: "+strings.Join(names, ", "),
		common.ErrMissingField)
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <receipt-id>",
		Short: "Open the reviewer on a receipt's active batch session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			receiptID := args[0]

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireSession(); err != nil {
				return err
			}

			wf := a.workflow()
			if _, err := wf.Load(ctx, receiptID); err != nil {
				return a.fail(ctx, err)
			}
			stepper, err := wf.Continue(ctx)
			if errors.Is(err, common.ErrNoActiveSession) {
				return common.NewUserError("nothing to review, run `receipts process "+receiptID+"` first", err)
			}
			if err != nil {
				return a.fail(ctx, err)
			}
			return a.review(ctx, receiptID, stepper)
		},
	}
}
