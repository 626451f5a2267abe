package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an access token",
		Long: `Sign in to the extraction backend with an access token.

The token is read from --token, or prompted for on stdin. It is checked against the
backend before it is saved, and every later command sends it as a bearer token.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("token", "", "access token (prompted for when omitted)")
	cmd.Flags().Duration("expires-in", 0, "token lifetime; zero means it does not expire locally")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	accessToken, _ := cmd.Flags().GetString("token")
	if accessToken == "" {
		accessToken, err = cli.NewPrompter(cmd.InOrStdin(), a.errOut).Token(ctx)
		if err != nil {
			return err
		}
	}

	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}
	if expiresIn, _ := cmd.Flags().GetDuration("expires-in"); expiresIn > 0 {
		token.Expiry = time.Now().Add(expiresIn)
	}

	if err := a.session.Save(ctx, token); err != nil {
		return err
	}

	accounts, err := a.client.ListBankAccounts(ctx)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			_ = a.session.Clear(ctx)
			return common.NewUserError("the backend rejected this token", err)
		}
		return fmt.Errorf("failed to verify token: %w", err)
	}

	_, err = fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Signed in (%d bank account(s) available)", len(accounts))))
	return err
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Clear(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, cli.FormatSuccess("Signed out"))
			return err
		},
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
