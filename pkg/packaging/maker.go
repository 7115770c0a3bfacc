package packaging

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Maker assembles files into a package archive described by a manifest.
// Files accumulate in a temporary staging directory until Build is called.
// Callers must Close the maker to release the staging directory.
type Maker struct {
	manifest Manifest
	stageDir string
}

// NewMaker starts a fresh package with the given manifest fields.
// Only package format "1.0" is supported.
func NewMaker(packageFormat string, fields ManifestFields) (*Maker, error) {
	manifest, err := seedManifest(packageFormat, fields)
	if err != nil {
		return nil, err
	}
	stageDir, err := os.MkdirTemp("", "encapsia-package-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Maker{manifest: manifest, stageDir: stageDir}, nil
}

// Close removes the staging directory.
func (m *Maker) Close() error {
	return os.RemoveAll(m.stageDir)
}

// Manifest returns the manifest as it will be written into the package.
func (m *Maker) Manifest() Manifest {
	return m.manifest
}

// AddToManifest merges entries into the type-specific manifest section.
func (m *Maker) AddToManifest(entries map[string]any) {
	section := m.manifest.section(m.manifest.typeName())
	for k, v := range entries {
		section[k] = v
	}
}

func (m *Maker) stagePath(name string) (string, error) {
	name = filepath.ToSlash(name)
	if name == ManifestName {
		return "", fmt.Errorf("%s is written by the maker and cannot be added directly", ManifestName)
	}
	clean := filepath.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid file name in package: %s", name)
	}
	target := filepath.Join(m.stageDir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging subdirectory: %w", err)
	}
	return target, nil
}

// AddFileFromReader stages a file with the given archive-relative name.
func (m *Maker) AddFileFromReader(name string, r io.Reader) error {
	target, err := m.stagePath(name)
	if err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return f.Close()
}

// AddFileFromString stages a file holding the given text.
func (m *Maker) AddFileFromString(name, data string) error {
	return m.AddFileFromReader(name, strings.NewReader(data))
}

// AddFileFromBytes stages a file holding the given bytes.
func (m *Maker) AddFileFromBytes(name string, data []byte) error {
	return m.AddFileFromReader(name, strings.NewReader(string(data)))
}

// AddFile stages a copy of an existing file under the given archive name.
// When name is empty the source's base name is used.
func (m *Maker) AddFile(source, name string) error {
	if name == "" {
		name = filepath.Base(source)
	}
	f, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer f.Close()
	return m.AddFileFromReader(name, f)
}

// AddDirectory stages every regular file under dir, preserving its layout.
func (m *Maker) AddDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return m.AddFile(path, filepath.ToSlash(rel))
	})
}

// sanitizeName keeps letters, digits, underscores and dots, turning
// spaces and dashes into underscores. Archive names stay predictable.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ', r == '-':
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Filename reports the archive name this package will be built as.
func (m *Maker) Filename() string {
	return fmt.Sprintf(
		"package-%s-%s-%s.tar.gz",
		sanitizeName(m.manifest.typeName()),
		sanitizeName(m.manifest.instanceName()),
		sanitizeName(m.manifest.instanceVersion()),
	)
}

// Build writes the package archive into outDir and returns its path.
// An existing archive is only replaced when overwrite is set.
func (m *Maker) Build(outDir string, overwrite bool) (string, error) {
	target := filepath.Join(outDir, m.Filename())
	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return "", fmt.Errorf("package already exists: %s", target)
		}
	}

	manifestData, err := encodeManifest(m.manifest)
	if err != nil {
		return "", err
	}
	manifestPath := filepath.Join(m.stageDir, ManifestName)
	if err := os.WriteFile(manifestPath, manifestData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	tmp, err := os.CreateTemp(outDir, ".encapsia-package-*")
	if err != nil {
		return "", fmt.Errorf("failed to create package file: %w", err)
	}
	tmpName := tmp.Name()
	if err := writeTarGz(tmp, m.stageDir); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finish package file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to place package file: %w", err)
	}
	return target, nil
}

func encodeManifest(manifest Manifest) ([]byte, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(map[string]any(manifest)); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return []byte(b.String()), nil
}

// writeTarGz archives every regular file under root, with archive paths
// relative to root.
func writeTarGz(w io.Writer, root string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to archive package contents: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to archive package contents: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress package: %w", err)
	}
	return nil
}
