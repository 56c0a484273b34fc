package journal

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "journal.db"), logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, j.Close())
	})

	return j
}

func TestOpen_EmptyJournal(t *testing.T) {
	t.Parallel()

	j := newTestJournal(t)

	entries, err := j.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpen_ReopenKeepsEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "mkdir"))
	require.NoError(t, j.Close())

	j, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer j.Close()

	pending, err := j.IsPending(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestMarkPending_CountsAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestJournal(t)

	now := time.Unix(1_700_000_000, 0)
	j.nowFunc = func() time.Time { return now }

	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "mkdir"))
	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "copy"))
	require.NoError(t, j.RecordFailure(ctx, "ipfs", "alice", "connection refused"))

	entries, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "alice", e.Namespace)
	assert.Equal(t, "ipfs", e.Backend)
	assert.Equal(t, "copy", e.Op)
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, "connection refused", e.LastError)
	assert.True(t, now.Equal(e.MarkedAt))
	assert.NotEmpty(t, e.ID)
}

func TestPending_OldestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestJournal(t)

	base := time.Unix(1_700_000_000, 0)
	tick := 0
	j.nowFunc = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, j.MarkPending(ctx, "ipfs", "bob", "rm"))
	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "mv"))

	entries, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Namespace)
	assert.Equal(t, "alice", entries[1].Namespace)
}

func TestClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestJournal(t)

	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "mkdir"))

	gen, err := j.Generation(ctx)
	require.NoError(t, err)

	require.NoError(t, j.Clear(ctx, "alice", gen))
	require.NoError(t, j.Clear(ctx, "alice", gen))

	pending, err := j.IsPending(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestClear_KeepsLaterMark(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestJournal(t)

	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "rm"))

	gen, err := j.Generation(ctx)
	require.NoError(t, err)

	// Marked again while the publish for gen is in flight.
	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "rm"))
	require.NoError(t, j.Clear(ctx, "alice", gen))

	pending, err := j.IsPending(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, pending)

	latest, err := j.Generation(ctx)
	require.NoError(t, err)
	assert.Greater(t, latest, gen)

	require.NoError(t, j.Clear(ctx, "alice", latest))

	pending, err = j.IsPending(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestRecordFailure_RestoresClearedNamespace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestJournal(t)

	require.NoError(t, j.MarkPending(ctx, "ipfs", "alice", "rm"))

	gen, err := j.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, j.Clear(ctx, "alice", gen))

	require.NoError(t, j.RecordFailure(ctx, "ipfs", "alice", "routing: not found"))

	entries, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "publish", entries[0].Op)
	assert.Equal(t, "routing: not found", entries[0].LastError)
	assert.Equal(t, 1, entries[0].Attempts)
}
