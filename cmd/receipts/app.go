package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/api"
	"github.com/Veraticus/the-receipts-must-flow/internal/auth"
	"github.com/Veraticus/the-receipts-must-flow/internal/card"
	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/config"
	"github.com/Veraticus/the-receipts-must-flow/internal/progress"
	"github.com/Veraticus/the-receipts-must-flow/internal/review"
	"github.com/Veraticus/the-receipts-must-flow/internal/session"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
	"github.com/Veraticus/the-receipts-must-flow/internal/tui"
	"github.com/Veraticus/the-receipts-must-flow/internal/workflow"
)

// app is the set of collaborators one command invocation works with. The session is built
// here and handed to everything that needs it.
type app struct {
	out       io.Writer
	errOut    io.Writer
	store     *storage.SQLiteStorage
	session   *auth.Session
	client    *api.Client
	extractor *progress.Client
}

// initStorage opens and migrates the local database.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	apiCfg, err := config.LoadAPIConfig()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	sess := auth.NewSession(store)
	if err := sess.Load(ctx); err != nil && !errors.Is(err, common.ErrUnauthorized) {
		_ = store.Close()
		return nil, err
	}

	httpClient := api.NewHTTPClient(sess.TokenSource())
	client := api.NewClient(*apiCfg, httpClient, api.WithUnauthorizedHandler(func() {
		// The request context may already be cancelled.
		if err := sess.Clear(context.Background()); err != nil {
			slog.Warn("Failed to clear expired session", "error", err)
		}
	}))

	return &app{
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		store:     store,
		session:   sess,
		client:    client,
		extractor: progress.NewClient(apiCfg.BaseURL, httpClient),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// requireSession refuses to call the backend when nobody is signed in.
func (a *app) requireSession() error {
	if !a.session.SignedIn() {
		return common.NewUserError("not signed in, run `receipts login` first", common.ErrUnauthorized)
	}
	return nil
}

// fail turns errors the reviewer can act on into friendly messages.
func (a *app) fail(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrUnauthorized):
		if clearErr := a.session.Clear(ctx); clearErr != nil {
			slog.Warn("Failed to clear expired session", "error", clearErr)
		}
		return common.NewUserError("your session has expired, run `receipts login` to sign in again", err)
	case errors.Is(err, common.ErrCancelled):
		return common.NewUserError("cancelled", err)
	case errors.Is(err, common.ErrNotFound):
		return common.NewUserError(err.Error(), err)
	default:
		return err
	}
}

func (a *app) workflow() *workflow.Workflow {
	return workflow.New(a.client, a.extractor,
		workflow.WithStepperOptions(review.WithJournal(a.store)))
}

// review opens the interactive reviewer and prints a summary when it closes.
func (a *app) review(ctx context.Context, receiptID string, stepper *review.Stepper) error {
	reviewCfg := config.LoadReviewConfig()
	err := tui.Run(ctx, stepper, a.client,
		tui.WithReceiptID(receiptID),
		tui.WithReference(card.NewReference(a.client)),
		tui.WithResolveDelay(reviewCfg.ResolveDelay),
	)
	if err != nil {
		return a.fail(ctx, err)
	}

	return a.summarize(stepper)
}

func (a *app) summarize(stepper *review.Stepper) error {
	counts := session.Count(stepper.Transactions())
	msg := fmt.Sprintf("%d approved, %d skipped, %d pending", counts.Approved, counts.Skipped, counts.Pending)
	if stepper.Finalized() {
		_, err := fmt.Fprintln(a.out, cli.FormatSuccess("Batch session complete: "+msg))
		return err
	}
	_, err := fmt.Fprintln(a.out, cli.FormatInfo("Review paused: "+msg))
	return err
}
