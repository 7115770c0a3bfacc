package packaging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() ManifestFields {
	return ManifestFields{
		TypeName:            "plugin",
		TypeDescription:     "An Encapsia plugin",
		TypeFormat:          "1.0",
		InstanceName:        "example",
		InstanceDescription: "Example package",
		InstanceVersion:     "0.1.2",
		CreatedBy:           "someone@example.com",
	}
}

func newTestMaker(t *testing.T) *Maker {
	t.Helper()
	m, err := NewMaker(SupportedFormat, testFields())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewMaker(t *testing.T) {
	t.Run("unsupported format rejected", func(t *testing.T) {
		_, err := NewMaker("2.0", testFields())
		assert.Error(t, err)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		fields := testFields()
		fields.InstanceVersion = ""
		_, err := NewMaker(SupportedFormat, fields)
		assert.Error(t, err)
	})

	t.Run("created_on defaults to now", func(t *testing.T) {
		m := newTestMaker(t)

		instance, ok := m.Manifest()["instance"].(map[string]any)
		require.True(t, ok)
		assert.NotEmpty(t, instance["created_on"])
	})
}

func TestFilename(t *testing.T) {
	m := newTestMaker(t)
	assert.Equal(t, "package-plugin-example-0.1.2.tar.gz", m.Filename())
}

func TestFilenameSanitized(t *testing.T) {
	fields := testFields()
	fields.InstanceName = "My Example-Name!"
	m, err := NewMaker(SupportedFormat, fields)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "package-plugin-My_Example_Name-0.1.2.tar.gz", m.Filename())
}

func TestAddFileRejectsManifestName(t *testing.T) {
	m := newTestMaker(t)
	err := m.AddFileFromString(ManifestName, "nope")
	assert.Error(t, err)
}

func TestAddFileRejectsEscapingPaths(t *testing.T) {
	m := newTestMaker(t)
	assert.Error(t, m.AddFileFromString("../outside.txt", "nope"))
	assert.Error(t, m.AddFileFromString("/absolute.txt", "nope"))
}

func TestBuildAndExtractManifest(t *testing.T) {
	m := newTestMaker(t)
	require.NoError(t, m.AddFileFromString("views/all.sql", "SELECT 1;"))
	m.AddToManifest(map[string]any{"n_task_workers": 2})

	outDir := t.TempDir()
	path, err := m.Build(outDir, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, m.Filename()), path)

	manifest, err := ExtractManifest(path)
	require.NoError(t, err)
	assert.Equal(t, SupportedFormat, manifest["package_format"])

	instance, ok := manifest["instance"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "example", instance["name"])
	assert.Equal(t, "0.1.2", instance["version"])

	typed, ok := manifest["plugin"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, typed["n_task_workers"])
}

func TestBuildOverwrite(t *testing.T) {
	m := newTestMaker(t)
	outDir := t.TempDir()

	_, err := m.Build(outDir, false)
	require.NoError(t, err)

	_, err = m.Build(outDir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = m.Build(outDir, true)
	assert.NoError(t, err)
}

func TestAddDirectory(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0o644))

	m := newTestMaker(t)
	require.NoError(t, m.AddDirectory(src))

	path, err := m.Build(t.TempDir(), false)
	require.NoError(t, err)

	// The manifest is still readable, so the archive is intact.
	_, err = ExtractManifest(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".tar.gz"))
	assert.Greater(t, info.Size(), int64(0))
}
