// Package session persists the authenticated session between runs and is the
// single place that answers "is this user logged in, and is the login still
// good". Expiry is decided locally from the token's exp claim instead of
// waiting for the first 401.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/plateshare/plateshare/pkg/domain"
)

var (
	// ErrNoSession means no session has been stored (or it was cleared).
	ErrNoSession = errors.New("no session")
	// ErrSessionExpired means a session exists but its token has expired.
	ErrSessionExpired = errors.New("session expired")
)

const sessionFile = "session.json"

// Store holds the session and transient hand-off state on disk.
type Store struct {
	dir     string
	session *domain.Session
	now     func() time.Time
}

// NewStore creates a store rooted at dir and loads any existing session.
// A corrupt or unreadable session file is treated as no session.
func NewStore(dir string) *Store {
	s := &Store{dir: dir, now: time.Now}
	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		return s
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.Token == "" {
		return s
	}
	s.session = &sess
	return s
}

// DefaultDir returns the per-user config directory for the store.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("session.DefaultDir: %w", err)
	}
	return filepath.Join(base, "plateshare"), nil
}

// Session returns the stored session, or nil.
func (s *Store) Session() *domain.Session {
	return s.session
}

// Token returns the stored bearer token, or empty.
func (s *Store) Token() string {
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// IsAuthenticated reports whether a token exists in storage.
func (s *Store) IsAuthenticated() bool {
	return s.session != nil && s.session.Token != ""
}

// Valid returns nil for a usable session, ErrNoSession when none is stored,
// and ErrSessionExpired when the token's exp claim has passed. A token
// without a readable exp claim is assumed valid; the server still decides.
func (s *Store) Valid() error {
	if !s.IsAuthenticated() {
		return ErrNoSession
	}
	exp, err := tokenExpiry(s.session.Token)
	if err != nil || exp.IsZero() {
		return nil
	}
	if s.now().After(exp) {
		return ErrSessionExpired
	}
	return nil
}

// ExpiresAt returns the token's expiry, or the zero time when unknown.
func (s *Store) ExpiresAt() time.Time {
	if s.session == nil {
		return time.Time{}
	}
	exp, err := tokenExpiry(s.session.Token)
	if err != nil {
		return time.Time{}
	}
	return exp
}

// tokenExpiry reads the exp claim without verifying the signature. The
// server owns verification; locally the claim is only a freshness hint.
func tokenExpiry(token string) (time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, err
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, err
	}
	return exp.Time, nil
}

// Save persists the session and makes it current.
func (s *Store) Save(sess domain.Session) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("session.Save: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("session.Save: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, sessionFile), data, 0600); err != nil {
		return fmt.Errorf("session.Save: %w", err)
	}
	s.session = &sess
	return nil
}

// Clear destroys the stored session.
func (s *Store) Clear() error {
	s.session = nil
	err := os.Remove(filepath.Join(s.dir, sessionFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session.Clear: %w", err)
	}
	return nil
}

// SaveHandoff persists a transient value (e.g. the last scan result) for
// pickup after a navigation. Hand-off state is best-effort and overwritten
// on every write.
func (s *Store) SaveHandoff(key string, v any) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("session.SaveHandoff: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session.SaveHandoff: %w", err)
	}
	path := filepath.Join(s.dir, "handoff-"+key+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("session.SaveHandoff: %w", err)
	}
	return nil
}

// LoadHandoff reads and removes a hand-off value. Returns false when absent.
func (s *Store) LoadHandoff(key string, out any) (bool, error) {
	path := filepath.Join(s.dir, "handoff-"+key+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("session.LoadHandoff: %w", err)
	}
	defer os.Remove(path) //nolint:errcheck // consumed on read
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("session.LoadHandoff: %w", err)
	}
	return true, nil
}
