package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <receipt-id>",
		Short: "Show a receipt's batch sessions and what to do next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireSession(); err != nil {
				return err
			}

			wf := a.workflow()
			res, err := wf.Load(ctx, args[0])
			if err != nil {
				return a.fail(ctx, err)
			}
			return cli.RenderStatus(a.out, wf.Receipt(), res)
		},
	}
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <receipt-id>",
		Short: "Detect the document type and how many transactions it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireSession(); err != nil {
				return err
			}

			wf := a.workflow()
			if _, err := wf.Load(ctx, args[0]); err != nil {
				return a.fail(ctx, err)
			}
			detection, err := wf.Detect(ctx)
			if err != nil {
				return a.fail(ctx, err)
			}
			return cli.RenderDetection(a.out, args[0], detection)
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <batch-session-id>",
		Short: "Show the decisions recorded locally for a batch session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			decisions, err := a.store.ListDecisions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.RenderHistory(a.out, args[0], decisions)
		},
	}
}
