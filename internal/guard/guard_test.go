package guard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/apperr"
)

func TestAcquireRelease(t *testing.T) {
	g := New(t.TempDir())

	require.NoError(t, g.Acquire(Ingest))
	assert.True(t, g.IsHeld(Ingest))
	assert.FileExists(t, filepath.Join(g.Dir(), "main.lock"))

	require.NoError(t, g.Release(Ingest))
	assert.False(t, g.IsHeld(Ingest))
	assert.NoFileExists(t, filepath.Join(g.Dir(), "main.lock"))
}

func TestAcquireTwiceFails(t *testing.T) {
	g := New(t.TempDir())

	require.NoError(t, g.Acquire(Prune))
	err := g.Acquire(Prune)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConcurrency))
	assert.True(t, g.IsHeld(Prune), "failed acquire must not drop the existing marker")
}

func TestCrossExclusion(t *testing.T) {
	dir := t.TempDir()
	ingest := New(dir)
	prune := New(dir)

	require.NoError(t, prune.Acquire(Prune))
	err := ingest.Acquire(Ingest)
	assert.True(t, errors.Is(err, apperr.ErrConcurrency))
	assert.False(t, ingest.IsHeld(Ingest), "no partial acquisition")

	require.NoError(t, prune.Release(Prune))
	require.NoError(t, ingest.Acquire(Ingest))

	err = prune.Acquire(Prune)
	assert.True(t, errors.Is(err, apperr.ErrConcurrency))
	assert.NoFileExists(t, filepath.Join(dir, "process.lock"))
}

func TestReleaseFreeLockIsNoop(t *testing.T) {
	g := New(t.TempDir())
	assert.NoError(t, g.Release(Ingest))
	assert.NoError(t, g.Release(Prune))
}

func TestReleaseAllOnlyOwnLocks(t *testing.T) {
	dir := t.TempDir()
	mine := New(dir)
	require.NoError(t, mine.Acquire(Ingest))
	require.NoError(t, mine.ReleaseAll())
	assert.False(t, mine.IsHeld(Ingest))

	// A marker created by someone else survives ReleaseAll.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "process.lock"), []byte("1"), 0o644))
	require.NoError(t, mine.ReleaseAll())
	assert.True(t, mine.IsHeld(Prune))
}

func TestMarkersAndForceUnlock(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)
	require.NoError(t, g.Acquire(Ingest))

	markers := g.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, Ingest, markers[0].Name)
	assert.Equal(t, os.Getpid(), markers[0].PID)

	// Legacy markers contain just "1".
	require.NoError(t, g.Release(Ingest))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "process.lock"), []byte("1"), 0o644))

	removed, err := New(dir).ForceUnlock()
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, Prune, removed[0].Name)
	assert.Empty(t, g.Markers())
}

func TestUnknownName(t *testing.T) {
	g := New(t.TempDir())
	assert.Error(t, g.Acquire(Name("other")))
	assert.False(t, g.IsHeld(Name("other")))
}
