package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "slot01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slot01", "result.csv"), []byte("t,v\n0,1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	data, err := ZipDir(dir)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	// Walk order is lexical, so the layout is stable.
	assert.Equal(t, "notes.txt", zr.File[0].Name)
	assert.Equal(t, "slot01/result.csv", zr.File[1].Name)

	f, err := zr.File[1].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "t,v\n0,1\n", string(content))
}

func TestZipDirEmpty(t *testing.T) {
	data, err := ZipDir(t.TempDir())
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestZipDirMissing(t *testing.T) {
	_, err := ZipDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
