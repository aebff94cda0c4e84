package buffer

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "inbox", "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueueOrdersByPriorityThenTime(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Enqueue(Item{ID: "late", Command: "usage.record", EnqueuedAt: base.Add(time.Second)})
	require.NoError(t, err)
	_, err = s.Enqueue(Item{ID: "early", Command: "usage.record", EnqueuedAt: base})
	require.NoError(t, err)
	_, err = s.Enqueue(Item{ID: "urgent", Command: "usage.record", Priority: 1, EnqueuedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	stored, err := s.Enqueue(Item{Command: "usage.record", Priority: 9})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, defaultPriority, stored.Priority, "out of range priorities fall back to the default")

	items, err := s.Peek(3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"urgent", "early", "late"}, []string{items[0].ID, items[1].ID, items[2].ID})

	require.NoError(t, s.Ack(items[0]))
	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 3}, st)
}

func TestRetryDeadLettersAfterMaxAttempts(t *testing.T) {
	s := openTemp(t)
	item, err := s.Enqueue(Item{ID: "cmd-1", Command: "usage.record"})
	require.NoError(t, err)

	cause := errors.New("database down")
	dead, err := s.Retry(item, cause, 2)
	require.NoError(t, err)
	assert.False(t, dead)

	items, err := s.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	assert.Equal(t, "database down", items[0].LastError)

	dead, err = s.Retry(items[0], cause, 2)
	require.NoError(t, err)
	assert.True(t, dead)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 0, Dead: 1}, st)

	letters, err := s.DeadLetters(10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "cmd-1", letters[0].ID)
	assert.Equal(t, 2, letters[0].Attempts)

	require.NoError(t, s.Replay("cmd-1"))
	items, err = s.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Zero(t, items[0].Attempts, "replay restores the attempt budget")

	assert.Error(t, s.Replay("cmd-1"), "no longer dead-lettered")
}

func TestPurgeDeadRemovesOnlyStaleLetters(t *testing.T) {
	s := openTemp(t)
	cutoff := time.Now().UTC().Add(-time.Hour)

	for _, it := range []Item{
		{ID: "old-1", EnqueuedAt: cutoff.Add(-2 * time.Hour)},
		{ID: "old-2", EnqueuedAt: cutoff.Add(-time.Hour)},
		{ID: "old-3", EnqueuedAt: cutoff.Add(-time.Minute)},
		{ID: "fresh", EnqueuedAt: cutoff.Add(time.Minute)},
	} {
		it.Command = "usage.record"
		stored, err := s.Enqueue(it)
		require.NoError(t, err)
		dead, err := s.Retry(stored, nil, 1)
		require.NoError(t, err)
		require.True(t, dead)
	}

	removed, err := s.PurgeDead(cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	letters, err := s.DeadLetters(0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "fresh", letters[0].ID)
}

func TestClosedStore(t *testing.T) {
	var s *Store
	_, err := s.Enqueue(Item{})
	assert.Error(t, err)
	_, err = s.Peek(1)
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
