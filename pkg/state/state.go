package state

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

// AccountState is the durable record for one account. The seen sets hold
// item IDs; identity is by ID alone, so an item deleted upstream stays seen.
type AccountState struct {
	PostsSeen   map[string]struct{}
	StoriesSeen map[string]struct{}
	LastRun     time.Time
}

// accountRecord is the persisted form of AccountState
type accountRecord struct {
	PostsSeen   []string  `json:"posts_seen"`
	StoriesSeen []string  `json:"stories_seen"`
	LastRun     time.Time `json:"last_run"`
}

// Store maps usernames to their processed-item state. It is owned
// exclusively by the run coordinator for the duration of a run; there is no
// internal locking.
type Store struct {
	path     string
	accounts map[string]*AccountState
}

// Load reads the snapshot at path. A missing file yields an empty store and
// no error (first-ever run processes everything). An unparsable file yields
// an empty store together with a CorruptState error: the caller logs it and
// continues rather than aborting, accepting a one-time reprocessing burst.
func Load(path string) (*Store, error) {
	s := &Store{
		path:     path,
		accounts: make(map[string]*AccountState),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, errors.Wrap(errors.ErrorTypeCorruptState, err, "failed to read state file")
	}

	var records map[string]accountRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return s, errors.Wrap(errors.ErrorTypeCorruptState, err, "failed to parse state file")
	}

	for username, rec := range records {
		as := &AccountState{
			PostsSeen:   make(map[string]struct{}, len(rec.PostsSeen)),
			StoriesSeen: make(map[string]struct{}, len(rec.StoriesSeen)),
			LastRun:     rec.LastRun,
		}
		for _, id := range rec.PostsSeen {
			as.PostsSeen[id] = struct{}{}
		}
		for _, id := range rec.StoriesSeen {
			as.StoriesSeen[id] = struct{}{}
		}
		s.accounts[username] = as
	}

	return s, nil
}

// Path returns the snapshot file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) account(username string) *AccountState {
	as, ok := s.accounts[username]
	if !ok {
		as = &AccountState{
			PostsSeen:   make(map[string]struct{}),
			StoriesSeen: make(map[string]struct{}),
		}
		s.accounts[username] = as
	}
	return as
}

func (as *AccountState) set(kind models.ContentKind) map[string]struct{} {
	if kind == models.KindStory {
		return as.StoriesSeen
	}
	return as.PostsSeen
}

// IsNew reports whether the item has never been committed for this account.
// Pure lookup, no side effects.
func (s *Store) IsNew(username string, kind models.ContentKind, id string) bool {
	as, ok := s.accounts[username]
	if !ok {
		return true
	}
	_, seen := as.set(kind)[id]
	return !seen
}

// MarkSeen records an item as processed. Idempotent: marking the same
// (account, kind, id) twice leaves the state identical to marking it once.
func (s *Store) MarkSeen(username string, kind models.ContentKind, id string) {
	as := s.account(username)
	as.set(kind)[id] = struct{}{}
	as.LastRun = time.Now().UTC()
}

// Stats returns the number of tracked posts and stories for an account
func (s *Store) Stats(username string) (posts, stories int) {
	as, ok := s.accounts[username]
	if !ok {
		return 0, 0
	}
	return len(as.PostsSeen), len(as.StoriesSeen)
}

// Usernames returns the tracked account names, sorted
func (s *Store) Usernames() []string {
	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastRun returns the recorded last commit time for an account
func (s *Store) LastRun(username string) time.Time {
	if as, ok := s.accounts[username]; ok {
		return as.LastRun
	}
	return time.Time{}
}

// Reset drops all state for an account
func (s *Store) Reset(username string) {
	delete(s.accounts, username)
}

// Save serializes the full mapping and atomically replaces the previous
// snapshot: write to a temp file, fsync, then rename into place. A crash
// mid-save never leaves a partial file visible under the canonical name.
func (s *Store) Save() error {
	records := make(map[string]accountRecord, len(s.accounts))
	for username, as := range s.accounts {
		rec := accountRecord{
			PostsSeen:   setToSorted(as.PostsSeen),
			StoriesSeen: setToSorted(as.StoriesSeen),
			LastRun:     as.LastRun,
		}
		records[username] = rec
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to create temporary state file")
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to encode state")
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to sync state file")
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to close state file")
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to replace state file")
	}

	return nil
}

func setToSorted(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
