package state

import (
	"testing"
	"time"

	"github.com/ignitionstack/ember/internal/repository"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := repository.OpenInMemory()
	require.NoError(t, err)

	s, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUnknownPluginIsEnabled(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, s.IsEnabled("anything"))

	_, err := s.Get("anything")
	assert.ErrorIs(t, err, errors.ErrPluginNotFound)

	_, err = s.SetEnabled("anything", false)
	assert.ErrorIs(t, err, errors.ErrPluginNotFound)
}

func TestSyncRecordsFirstSeen(t *testing.T) {
	s := newTestStore(t)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return first }

	require.NoError(t, s.Sync([]Observation{
		{ID: "demo", Path: "/p/demo.wasm", Digest: "abc", Name: "demo", Version: "0.1.0", Status: StatusLoaded, DefaultEnabled: true},
		{ID: "off", Path: "/p/off.wasm", Status: StatusLoaded, DefaultEnabled: false},
		{ID: "broken", Path: "/p/broken.wasm", Status: StatusFailed, Err: "compile failed", DefaultEnabled: true},
	}))

	demo, err := s.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", demo.Version)
	assert.Equal(t, first, demo.FirstSeen.UTC())
	assert.True(t, demo.Enabled)

	assert.False(t, s.IsEnabled("off"))

	broken, err := s.Get("broken")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, broken.Status)
	assert.Equal(t, "compile failed", broken.LastError)

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"broken", "demo", "off"}, []string{records[0].ID, records[1].ID, records[2].ID})
}

func TestSyncKeepsEnablementAndMarksMissing(t *testing.T) {
	s := newTestStore(t)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }

	require.NoError(t, s.Sync([]Observation{
		{ID: "a", Status: StatusLoaded, DefaultEnabled: true},
		{ID: "b", Status: StatusLoaded, DefaultEnabled: true},
	}))
	_, err := s.SetEnabled("a", false)
	require.NoError(t, err)

	t1 := t0.Add(time.Hour)
	s.now = func() time.Time { return t1 }

	// the default only applies to ids seen for the first time
	require.NoError(t, s.Sync([]Observation{
		{ID: "a", Status: StatusLoaded, DefaultEnabled: true},
	}))

	a, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, a.Enabled)
	assert.Equal(t, t0, a.FirstSeen.UTC())
	assert.Equal(t, t1, a.LastSeen.UTC())
	assert.False(t, s.IsEnabled("a"))

	b, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, b.Status)
	assert.True(t, s.IsEnabled("b"))
}

func TestSetEnabled(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Sync([]Observation{{ID: "a", Status: StatusLoaded, DefaultEnabled: true}}))

	r, err := s.SetEnabled("a", false)
	require.NoError(t, err)
	assert.False(t, r.Enabled)
	assert.False(t, s.IsEnabled("a"))

	_, err = s.SetEnabled("a", true)
	require.NoError(t, err)
	assert.True(t, s.IsEnabled("a"))
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := repository.Open(dir)
	require.NoError(t, err)
	s, err := NewStore(db)
	require.NoError(t, err)
	require.NoError(t, s.Sync([]Observation{{ID: "a", Status: StatusLoaded, DefaultEnabled: true}}))
	_, err = s.SetEnabled("a", false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err = repository.Open(dir)
	require.NoError(t, err)
	s, err = NewStore(db)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.IsEnabled("a"))
}
