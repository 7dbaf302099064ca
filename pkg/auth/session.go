// Package auth stores the Instagram login the monitor scrapes with. One
// session is enough for a whole run; it is kept in the system keychain when
// available, in an AES-GCM encrypted file otherwise, with environment
// variables as a read-only fallback for containers and CI.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultLabel names the session used when none is specified
const DefaultLabel = "default"

// Session is a stored Instagram login
type Session struct {
	Label     string    `json:"label"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token"`
	UserAgent string    `json:"user_agent,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists sessions in one backend
type Store interface {
	Save(session *Session) error
	Load(label string) (*Session, error)
	Delete(label string) error
}

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSession   = errors.New("invalid session")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Manager chains the available stores: keyring, then encrypted file, then
// environment
type Manager struct {
	stores []Store
}

// NewManager builds the store chain for this system
func NewManager() (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "session.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Save validates and persists the session in the first writable store
func (m *Manager) Save(session *Session) error {
	if session == nil || session.SessionID == "" {
		return ErrInvalidSession
	}
	if session.CSRFToken == "" {
		return ErrInvalidSession
	}
	if session.Label == "" {
		session.Label = DefaultLabel
	}
	session.UpdatedAt = time.Now().UTC()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Save(session); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to save session: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Load returns the session from the first store that has it
func (m *Manager) Load(label string) (*Session, error) {
	if label == "" {
		label = DefaultLabel
	}
	for _, store := range m.stores {
		if session, err := store.Load(label); err == nil && session != nil {
			return session, nil
		}
	}
	return nil, ErrSessionNotFound
}

// Delete removes the session from every store that has it
func (m *Manager) Delete(label string) error {
	if label == "" {
		label = DefaultLabel
	}

	deleted := false
	for _, store := range m.stores {
		if err := store.Delete(label); err == nil {
			deleted = true
		}
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// Masked returns a copy safe for display, with the secrets shortened
func Masked(session *Session) *Session {
	if session == nil {
		return nil
	}
	return &Session{
		Label:     session.Label,
		SessionID: maskString(session.SessionID),
		CSRFToken: maskString(session.CSRFToken),
		UserAgent: session.UserAgent,
		UpdatedAt: session.UpdatedAt,
	}
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// configDir returns the per-user config directory, creating it if needed
func configDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "igmonitor")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "igmonitor")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "igmonitor")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "igmonitor")
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}
