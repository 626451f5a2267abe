// Package auth holds the explicit session context shared by the API client and the workflow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
)

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	SaveToken(ctx context.Context, token *oauth2.Token) error
	LoadToken(ctx context.Context) (*oauth2.Token, error)
	DeleteToken(ctx context.Context) error
}

// Session is the signed-in context. It is built once at startup and passed to the
// collaborators that need it; nothing reads authentication state from package globals.
type Session struct {
	store TokenStore
	token *oauth2.Token
	mu    sync.RWMutex
}

// NewSession creates an empty session backed by store. Call Load to hydrate it.
func NewSession(store TokenStore) *Session {
	return &Session{store: store}
}

// Load reads the persisted token. A missing token leaves the session signed out
// and returns common.ErrUnauthorized.
func (s *Session) Load(ctx context.Context) error {
	token, err := s.store.LoadToken(ctx)
	if errors.Is(err, storage.ErrNoSession) {
		s.set(nil)
		return fmt.Errorf("no saved session: %w", common.ErrUnauthorized)
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	s.set(token)
	slog.Debug("Loaded session", "expires", token.Expiry)
	return nil
}

// Save signs in with token and persists it.
func (s *Session) Save(ctx context.Context, token *oauth2.Token) error {
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return fmt.Errorf("access token is required: %w", common.ErrMissingField)
	}
	if err := s.store.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.set(token)
	return nil
}

// Clear signs out and forgets the persisted token.
func (s *Session) Clear(ctx context.Context) error {
	s.set(nil)
	if err := s.store.DeleteToken(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// SignedIn reports whether a usable token is held.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil && s.token.Valid()
}

// TokenSource returns an oauth2.TokenSource that reads the session's current token on every
// request, so a Clear takes effect on clients that were built earlier.
func (s *Session) TokenSource() oauth2.TokenSource {
	return sessionTokenSource{session: s}
}

func (s *Session) set(token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

type sessionTokenSource struct {
	session *Session
}

func (ts sessionTokenSource) Token() (*oauth2.Token, error) {
	ts.session.mu.RLock()
	defer ts.session.mu.RUnlock()

	if ts.session.token == nil {
		return nil, fmt.Errorf("not signed in: %w", common.ErrUnauthorized)
	}
	if !ts.session.token.Valid() {
		return nil, fmt.Errorf("session expired: %w", common.ErrUnauthorized)
	}
	return ts.session.token, nil
}
