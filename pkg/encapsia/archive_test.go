package encapsia

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func TestUntarToDir(t *testing.T) {
	archive := makeTarGz(t, map[string]string{
		"top.txt":        "top",
		"sub/nested.txt": "nested",
	})

	dir := t.TempDir()
	require.NoError(t, untarToDir(archive, dir))

	top, err := os.ReadFile(filepath.Join(dir, "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top", string(top))

	nested, err := os.ReadFile(filepath.Join(dir, "sub", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(nested))
}

func TestUntarToDirRejectsEscapingEntries(t *testing.T) {
	archive := makeTarGz(t, map[string]string{
		"../escape.txt": "nope",
	})

	err := untarToDir(archive, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}
