package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dmscout/internal/logging"
	"dmscout/internal/types"
)

// ErrAccountNotFound is returned when no stored session exists for the
// requested account.
var ErrAccountNotFound = errors.New("account session not found")

// SaveAccountSession upserts the session artifacts for an account.
// The authenticator performs exactly one call per successful login.
func (s *Store) SaveAccountSession(sess *types.AccountSession) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveAccountSession")
	defer timer.Stop()

	if sess.Username == "" {
		return fmt.Errorf("account session requires a username")
	}

	cookies, err := json.Marshal(sess.Cookies)
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	tokens, err := json.Marshal(sess.Tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO accounts (username, cookies, tokens, proxy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
			cookies    = excluded.cookies,
			tokens     = excluded.tokens,
			proxy      = excluded.proxy,
			updated_at = excluded.updated_at`,
		sess.Username, string(cookies), string(tokens), sess.Proxy, now, now,
	)
	if err != nil {
		logging.StoreError("Failed to save account session for %s: %v", sess.Username, err)
		return err
	}

	logging.Store("Saved account session for %s (%d cookies)", sess.Username, len(sess.Cookies))
	return nil
}

// GetAccountSession retrieves the stored session for an account.
func (s *Store) GetAccountSession(username string) (*types.AccountSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cookiesJSON, tokensJSON, proxyStr string
	var createdAt, updatedAt int64
	err := s.db.QueryRow(
		`SELECT cookies, tokens, proxy, created_at, updated_at
		 FROM accounts WHERE username = ?`,
		username,
	).Scan(&cookiesJSON, &tokensJSON, &proxyStr, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	sess := &types.AccountSession{
		Username:  username,
		Proxy:     proxyStr,
		CreatedAt: time.UnixMilli(createdAt),
		UpdatedAt: time.UnixMilli(updatedAt),
	}
	if err := json.Unmarshal([]byte(cookiesJSON), &sess.Cookies); err != nil {
		return nil, fmt.Errorf("corrupt cookies for %s: %w", username, err)
	}
	if err := json.Unmarshal([]byte(tokensJSON), &sess.Tokens); err != nil {
		return nil, fmt.Errorf("corrupt tokens for %s: %w", username, err)
	}
	return sess, nil
}
