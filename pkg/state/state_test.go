package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

func tempStatePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, err := Load(tempStatePath(t))
	require.NoError(t, err)

	// Empty-state bootstrap: everything is new
	assert.True(t, s.IsNew("alice", models.KindPost, "p1"))
	assert.True(t, s.IsNew("alice", models.KindStory, "s1"))
	assert.Empty(t, s.Usernames())
}

func TestLoadCorruptFileRecoversEmpty(t *testing.T) {
	path := tempStatePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptState))

	// The store is still usable as empty state
	require.NotNil(t, s)
	assert.True(t, s.IsNew("alice", models.KindPost, "p1"))
}

func TestMarkSeenIdempotent(t *testing.T) {
	s, err := Load(tempStatePath(t))
	require.NoError(t, err)

	s.MarkSeen("alice", models.KindPost, "p1")
	s.MarkSeen("alice", models.KindPost, "p1")
	s.MarkSeen("alice", models.KindPost, "p1")

	posts, stories := s.Stats("alice")
	assert.Equal(t, 1, posts)
	assert.Equal(t, 0, stories)
	assert.False(t, s.IsNew("alice", models.KindPost, "p1"))
}

func TestKindsAreIndependent(t *testing.T) {
	s, err := Load(tempStatePath(t))
	require.NoError(t, err)

	s.MarkSeen("alice", models.KindPost, "x")
	assert.False(t, s.IsNew("alice", models.KindPost, "x"))
	assert.True(t, s.IsNew("alice", models.KindStory, "x"))
	assert.True(t, s.IsNew("bob", models.KindPost, "x"))
}

func TestSaveAndReload(t *testing.T) {
	path := tempStatePath(t)

	s, err := Load(path)
	require.NoError(t, err)
	s.MarkSeen("alice", models.KindPost, "p1")
	s.MarkSeen("alice", models.KindPost, "p2")
	s.MarkSeen("alice", models.KindStory, "s1")
	s.MarkSeen("bob", models.KindPost, "q1")
	require.NoError(t, s.Save())

	// No duplicate delivery: a later run sees everything as already seen
	s2, err := Load(path)
	require.NoError(t, err)
	assert.False(t, s2.IsNew("alice", models.KindPost, "p1"))
	assert.False(t, s2.IsNew("alice", models.KindPost, "p2"))
	assert.False(t, s2.IsNew("alice", models.KindStory, "s1"))
	assert.False(t, s2.IsNew("bob", models.KindPost, "q1"))
	assert.True(t, s2.IsNew("alice", models.KindPost, "p3"))
	assert.False(t, s2.LastRun("alice").IsZero())
	assert.Equal(t, []string{"alice", "bob"}, s2.Usernames())
}

func TestUnsavedMarksAreLost(t *testing.T) {
	// At-least-once on crash: marks that never reach Save are not durable,
	// so the next run classifies the item as new again.
	path := tempStatePath(t)

	s, err := Load(path)
	require.NoError(t, err)
	s.MarkSeen("alice", models.KindPost, "p1")
	require.NoError(t, s.Save())
	s.MarkSeen("alice", models.KindPost, "p2") // crash before the next Save

	s2, err := Load(path)
	require.NoError(t, err)
	assert.False(t, s2.IsNew("alice", models.KindPost, "p1"))
	assert.True(t, s2.IsNew("alice", models.KindPost, "p2"))
}

func TestPersistedLayout(t *testing.T) {
	path := tempStatePath(t)

	s, err := Load(path)
	require.NoError(t, err)
	s.MarkSeen("alice", models.KindPost, "p2")
	s.MarkSeen("alice", models.KindPost, "p1")
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records map[string]struct {
		PostsSeen   []string `json:"posts_seen"`
		StoriesSeen []string `json:"stories_seen"`
		LastRun     string   `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal(data, &records))

	rec, ok := records["alice"]
	require.True(t, ok)
	assert.Equal(t, []string{"p1", "p2"}, rec.PostsSeen)
	assert.Empty(t, rec.StoriesSeen)
	assert.NotEmpty(t, rec.LastRun)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	path := tempStatePath(t)

	s, err := Load(path)
	require.NoError(t, err)
	s.MarkSeen("alice", models.KindPost, "p1")
	require.NoError(t, s.Save())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReset(t *testing.T) {
	s, err := Load(tempStatePath(t))
	require.NoError(t, err)

	s.MarkSeen("alice", models.KindPost, "p1")
	s.Reset("alice")
	assert.True(t, s.IsNew("alice", models.KindPost, "p1"))
	posts, stories := s.Stats("alice")
	assert.Zero(t, posts)
	assert.Zero(t, stories)
}
