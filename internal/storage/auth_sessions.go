package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoSession is returned when no sign-in has been persisted.
var ErrNoSession = errors.New("no saved session")

// SaveToken persists the single active access token, replacing any previous one.
func (s *SQLiteStorage) SaveToken(ctx context.Context, token *oauth2.Token) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("%w: token", ErrEmptyString)
	}
	if err := validateString(token.AccessToken, "access token"); err != nil {
		return err
	}

	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	var expiresAt sql.NullTime
	if !token.Expiry.IsZero() {
		expiresAt = sql.NullTime{Time: token.Expiry.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (id, access_token, token_type, expires_at, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			saved_at = excluded.saved_at
	`, token.AccessToken, tokenType, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadToken returns the persisted token or ErrNoSession.
func (s *SQLiteStorage) LoadToken(ctx context.Context) (*oauth2.Token, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		accessToken, tokenType string
		expiresAt              sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, token_type, expires_at FROM auth_sessions WHERE id = 1`,
	).Scan(&accessToken, &tokenType, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   tokenType,
	}
	if expiresAt.Valid {
		token.Expiry = expiresAt.Time
	}
	return token, nil
}

// DeleteToken forgets the persisted session. Deleting a missing session is not an error.
func (s *SQLiteStorage) DeleteToken(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions`); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
