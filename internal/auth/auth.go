// Package auth tracks authentication-session validity for capture guarding.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoToken indicates no stored session token is available.
var ErrNoToken = errors.New("no session token; sign in before recording")

// Token is the persisted authentication state.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Refresher exchanges a near-expiry token for a fresh one.
type Refresher interface {
	RefreshSession(ctx context.Context, token string) (Token, error)
}

// Session is the guard-facing view of authentication state.
type Session interface {
	IsExpired() bool
	IsExpiringSoon() bool
	Refresh(ctx context.Context) error
}

// FileSession is a Session backed by a token file on disk. Refreshes are
// written back so a later process observes the extended expiry.
type FileSession struct {
	path       string
	warnWindow time.Duration
	refresher  Refresher
	now        func() time.Time

	mu    sync.Mutex
	token Token
}

// LoadFileSession reads the token file at path. A missing file yields
// ErrNoToken.
func LoadFileSession(path string, warnWindow time.Duration, refresher Refresher) (*FileSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read token file %q: %w", path, err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode token file %q: %w", path, err)
	}
	if token.Value == "" {
		return nil, ErrNoToken
	}

	return &FileSession{
		path:       path,
		warnWindow: warnWindow,
		refresher:  refresher,
		now:        time.Now,
		token:      token,
	}, nil
}

// Token returns the current bearer token value.
func (s *FileSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.Value
}

// ExpiresAt returns the current token expiry.
func (s *FileSession) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.ExpiresAt
}

// IsExpired reports whether the session has passed hard expiry.
func (s *FileSession) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.token.ExpiresAt)
}

// IsExpiringSoon reports whether the session is inside the warning window
// but not yet expired.
func (s *FileSession) IsExpiringSoon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !now.Before(s.token.ExpiresAt) {
		return false
	}
	return !now.Before(s.token.ExpiresAt.Add(-s.warnWindow))
}

// Refresh exchanges the current token and persists the replacement.
func (s *FileSession) Refresh(ctx context.Context) error {
	if s.refresher == nil {
		return errors.New("no refresher configured")
	}

	s.mu.Lock()
	current := s.token.Value
	s.mu.Unlock()

	fresh, err := s.refresher.RefreshSession(ctx, current)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}

	s.mu.Lock()
	s.token = fresh
	s.mu.Unlock()

	return s.save(fresh)
}

// save writes the token file with owner-only permissions.
func (s *FileSession) save(token Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file %q: %w", s.path, err)
	}
	return nil
}
