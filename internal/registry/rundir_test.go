package registry

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunDirs(t *testing.T) (*RunDirs, string) {
	t.Helper()
	root := t.TempDir()
	r := NewRunDirs(testLogger())
	require.NoError(t, r.Configure(root))
	return r, r.Root()
}

func TestRunDirsRecordAndResolve(t *testing.T) {
	r, root := newTestRunDirs(t)

	dir := filepath.Join(root, "run-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r.Record("run-1", dir)

	resolved, err := r.Resolve("run-1")
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)
}

func TestRunDirsIndexIsRelativeAndPretty(t *testing.T) {
	r, root := newTestRunDirs(t)

	dir := filepath.Join(root, "proj", "run-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r.Record("run-1", dir)

	data, err := os.ReadFile(filepath.Join(root, IndexFileName))
	require.NoError(t, err)

	var index map[string]string
	require.NoError(t, json.Unmarshal(data, &index))
	assert.Equal(t, map[string]string{"run-1": "proj/run-1"}, index)
	assert.Contains(t, string(data), "\n  ", "index should be pretty-printed")

	// The atomic-rename recipe never leaves its temp file behind.
	_, err = os.Stat(filepath.Join(root, IndexFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunDirsSurvivesRestart(t *testing.T) {
	r, root := newTestRunDirs(t)

	dir := filepath.Join(root, "run-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r.Record("run-1", dir)

	// Fresh registry over the same root stands in for a process
	// restart.
	restarted := NewRunDirs(testLogger())
	require.NoError(t, restarted.Configure(root))

	resolved, err := restarted.Resolve("run-1")
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)
}

func TestRunDirsConfigurePrunesMissingDirs(t *testing.T) {
	r, root := newTestRunDirs(t)

	kept := filepath.Join(root, "kept")
	gone := filepath.Join(root, "gone")
	require.NoError(t, os.MkdirAll(kept, 0o755))
	require.NoError(t, os.MkdirAll(gone, 0o755))
	r.Record("kept", kept)
	r.Record("gone", gone)
	require.NoError(t, os.RemoveAll(gone))

	restarted := NewRunDirs(testLogger())
	require.NoError(t, restarted.Configure(root))

	_, err := restarted.Resolve("kept")
	require.NoError(t, err)
	_, err = restarted.Resolve("gone")
	assert.ErrorIs(t, err, ErrRunDirNotFound)
}

func TestRunDirsCorruptIndexTreatedAsEmpty(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, IndexFileName), []byte("{not json"), 0o644))

	r := NewRunDirs(testLogger())
	require.NoError(t, r.Configure(root))

	_, err := r.Resolve("anything")
	assert.ErrorIs(t, err, ErrRunDirNotFound)
}

func TestRunDirsLegacyFallback(t *testing.T) {
	r, root := newTestRunDirs(t)

	// Directory exists under the root but was never recorded.
	legacy := filepath.Join(root, "legacy-run")
	require.NoError(t, os.MkdirAll(legacy, 0o755))

	resolved, err := r.Resolve("legacy-run")
	require.NoError(t, err)
	assert.Equal(t, legacy, resolved)

	// The hit is cached back into memory.
	resolved, err = r.Resolve("legacy-run")
	require.NoError(t, err)
	assert.Equal(t, legacy, resolved)
}

func TestRunDirsForgetRemovesEmptyIndex(t *testing.T) {
	r, root := newTestRunDirs(t)

	dir := filepath.Join(root, "run-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	r.Record("run-1", dir)
	require.FileExists(t, filepath.Join(root, IndexFileName))

	r.Forget("run-1")
	_, err := os.Stat(filepath.Join(root, IndexFileName))
	assert.True(t, os.IsNotExist(err), "empty index file should be removed")
}

func TestRunDirsResolveReloadsIndex(t *testing.T) {
	r, root := newTestRunDirs(t)

	// An entry written behind the registry's back (e.g. by a previous
	// process) is still found via the on-disk index.
	dir := filepath.Join(root, "external")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.MarshalIndent(map[string]string{"external-run": "external"}, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, IndexFileName), data, 0o644))

	resolved, err := r.Resolve("external-run")
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)
}
