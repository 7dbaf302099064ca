package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads the session from environment variables. Read-only;
// meant for containers and cron jobs where no keychain exists.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-backed store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Save(session *Session) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Load(label string) (*Session, error) {
	sessionID := os.Getenv("IGMONITOR_SESSION_ID")
	csrfToken := os.Getenv("IGMONITOR_CSRF_TOKEN")
	if sessionID == "" || csrfToken == "" {
		return nil, ErrSessionNotFound
	}

	if label == "" {
		label = DefaultLabel
	}
	return &Session{
		Label:     label,
		SessionID: sessionID,
		CSRFToken: csrfToken,
		UserAgent: os.Getenv("IGMONITOR_USER_AGENT"),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (e *EnvironmentStore) Delete(label string) error {
	return ErrStoreUnavailable
}
