// Package plugins builds Encapsia plugin archives and drives the server
// side plugins manager for development installs.
package plugins

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/encapsia/encapsia-go/pkg/encapsia"
)

// ManifestName is the fixed name of the manifest inside a plugin archive.
const ManifestName = "plugin.toml"

// Manifest describes a plugin. NTaskWorkers and ResetOnInstall carry the
// defaults the plugins manager expects when left unset by the caller.
type Manifest struct {
	Name           string `toml:"name"`
	Description    string `toml:"description"`
	Version        string `toml:"version"`
	CreatedBy      string `toml:"created_by"`
	NTaskWorkers   int    `toml:"n_task_workers"`
	ResetOnInstall bool   `toml:"reset_on_install"`
}

// Validate checks the required manifest fields.
func (m Manifest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.Description, validation.Required),
		validation.Field(&m.Version, validation.Required),
		validation.Field(&m.CreatedBy, validation.Required),
	)
}

// Maker assembles plugin sources into a plugin-<name>-<version>.tar.gz
// archive. Files accumulate in a temporary staging directory until Make
// is called. Callers must Close the maker to release the directory.
type Maker struct {
	manifest Manifest
	stageDir string
}

// NewMaker starts a fresh plugin with the given manifest.
func NewMaker(manifest Manifest) (*Maker, error) {
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plugin manifest: %w", err)
	}
	if manifest.NTaskWorkers == 0 {
		manifest.NTaskWorkers = 1
	}
	stageDir, err := os.MkdirTemp("", "encapsia-plugin-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Maker{manifest: manifest, stageDir: stageDir}, nil
}

// NewMakerWithDefaults starts a plugin with reset_on_install enabled,
// which is what development plugins almost always want.
func NewMakerWithDefaults(name, description, version, createdBy string) (*Maker, error) {
	return NewMaker(Manifest{
		Name:           name,
		Description:    description,
		Version:        version,
		CreatedBy:      createdBy,
		NTaskWorkers:   1,
		ResetOnInstall: true,
	})
}

// Close removes the staging directory.
func (m *Maker) Close() error {
	return os.RemoveAll(m.stageDir)
}

// Manifest returns the manifest as it will be written into the plugin.
func (m *Maker) Manifest() Manifest {
	return m.manifest
}

func (m *Maker) stagePath(name string) (string, error) {
	name = filepath.ToSlash(name)
	if name == ManifestName {
		return "", fmt.Errorf("%s is written by the maker and cannot be added directly", ManifestName)
	}
	clean := filepath.Clean(name)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid file name in plugin: %s", name)
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

// AddView stages a view definition under views/. A .sql suffix is added
// when the name lacks one.
func (m *Maker) AddView(name, sql string) error {
	if !strings.HasSuffix(name, ".sql") {
		name += ".sql"
	}
	return m.AddFileFromString("views/"+name, sql)
}

// AddTask stages a task module under tasks/.
func (m *Maker) AddTask(name, source string) error {
	return m.AddFileFromString("tasks/"+name, source)
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
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return m.AddFileFromReader(filepath.ToSlash(rel), f)
	})
}

// Filename reports the archive name this plugin will be built as.
func (m *Maker) Filename() string {
	return fmt.Sprintf("plugin-%s-%s.tar.gz", m.manifest.Name, m.manifest.Version)
}

// Make writes the plugin archive into outDir and returns its path. Entries
// inside the archive live under a plugin-<name>/ root directory. An
// existing archive is only replaced when overwrite is set.
func (m *Maker) Make(outDir string, overwrite bool) (string, error) {
	target := filepath.Join(outDir, m.Filename())
	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return "", fmt.Errorf("plugin already exists: %s", target)
		}
	}

	var manifestData strings.Builder
	if err := toml.NewEncoder(&manifestData).Encode(m.manifest); err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	manifestPath := filepath.Join(m.stageDir, ManifestName)
	if err := os.WriteFile(manifestPath, []byte(manifestData.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	tmp, err := os.CreateTemp(outDir, ".encapsia-plugin-*")
	if err != nil {
		return "", fmt.Errorf("failed to create plugin file: %w", err)
	}
	tmpName := tmp.Name()
	root := "plugin-" + m.manifest.Name
	if err := writeTarGz(tmp, m.stageDir, root); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to finish plugin file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to place plugin file: %w", err)
	}
	return target, nil
}

func writeTarGz(w io.Writer, srcDir, root string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
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
		hdr.Name = root + "/" + filepath.ToSlash(rel)
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
		return fmt.Errorf("failed to archive plugin contents: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to archive plugin contents: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress plugin: %w", err)
	}
	return nil
}

// ReadManifest reads and decodes the manifest from a .tar.gz plugin.
// The manifest may sit at the archive root or under the plugin root
// directory.
func ReadManifest(filename string) (*Manifest, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read plugin entry: %w", err)
		}
		name := filepath.ToSlash(hdr.Name)
		if name != ManifestName && filepath.Base(name) != ManifestName {
			continue
		}
		if name != ManifestName && strings.Count(name, "/") != 1 {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		var manifest Manifest
		if err := toml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		return &manifest, nil
	}
	return nil, fmt.Errorf("missing manifest file: %s", ManifestName)
}

// archiveBytes packages the staged files in memory, ready to stream to the
// plugins manager.
func (m *Maker) archiveBytes() (*bytes.Reader, error) {
	var manifestData strings.Builder
	if err := toml.NewEncoder(&manifestData).Encode(m.manifest); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	manifestPath := filepath.Join(m.stageDir, ManifestName)
	if err := os.WriteFile(manifestPath, []byte(manifestData.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	var buf bytes.Buffer
	if err := writeTarGz(&buf, m.stageDir, "plugin-"+m.manifest.Name); err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// DevInstall streams the staged plugin to the plugins manager for a
// development-mode install. It reports the plugins manager's reply.
func (m *Maker) DevInstall(ctx context.Context, client *encapsia.Client) (string, error) {
	data, err := m.archiveBytes()
	if err != nil {
		return "", err
	}
	return client.RunPluginsTask(ctx, "dev_update_plugin", map[string]string{}, data)
}

// DevUninstall asks the plugins manager to destroy this plugin's namespace.
func (m *Maker) DevUninstall(ctx context.Context, client *encapsia.Client) (string, error) {
	return DevUninstall(ctx, client, m.manifest.Name)
}

// DevUninstall asks the plugins manager to destroy the namespace of the
// named plugin.
func DevUninstall(ctx context.Context, client *encapsia.Client, name string) (string, error) {
	return client.RunPluginsTask(ctx, "dev_destroy_namespace", map[string]string{
		"namespace": name,
	}, nil)
}

// MakeAndUpload builds the plugin archive in outDir, uploads it as a blob
// and returns the local path together with the blob URL reported by the
// server.
func (m *Maker) MakeAndUpload(ctx context.Context, client *encapsia.Client, outDir string) (string, string, error) {
	path, err := m.Make(outDir, true)
	if err != nil {
		return "", "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open plugin file: %w", err)
	}
	defer f.Close()

	url, err := client.UploadBlob(ctx, encapsia.NewBlobID(), "application/x-tar", f, &encapsia.UploadOptions{
		Idempotent: true,
	})
	if err != nil {
		return "", "", err
	}
	return path, url, nil
}
