package packaging

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ManifestName is the fixed name of the manifest inside a package archive.
const ManifestName = "package.toml"

// SupportedFormat is the only package format this library produces.
const SupportedFormat = "1.0"

// ManifestFields names everything a package manifest requires.
type ManifestFields struct {
	TypeName        string
	TypeDescription string
	TypeFormat      string

	InstanceName        string
	InstanceDescription string
	InstanceVersion     string
	CreatedBy           string

	// CreatedOn defaults to now (UTC) when empty.
	CreatedOn string
}

// Validate checks the required manifest fields.
func (f ManifestFields) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.TypeName, validation.Required),
		validation.Field(&f.TypeDescription, validation.Required),
		validation.Field(&f.TypeFormat, validation.Required),
		validation.Field(&f.InstanceName, validation.Required),
		validation.Field(&f.InstanceDescription, validation.Required),
		validation.Field(&f.InstanceVersion, validation.Required),
		validation.Field(&f.CreatedBy, validation.Required),
	)
}

// Manifest is the decoded form of a package.toml. The type-specific section
// (keyed by the type name) lives in Extra.
type Manifest map[string]any

func seedManifest(packageFormat string, fields ManifestFields) (Manifest, error) {
	if packageFormat != SupportedFormat {
		return nil, fmt.Errorf("unsupported package format: %s", packageFormat)
	}
	if err := fields.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest fields: %w", err)
	}

	createdOn := fields.CreatedOn
	if createdOn == "" {
		createdOn = time.Now().UTC().Format(time.RFC3339)
	}

	return Manifest{
		"package_format": SupportedFormat,
		"type": map[string]any{
			"name":        fields.TypeName,
			"description": fields.TypeDescription,
			"format":      fields.TypeFormat,
		},
		"instance": map[string]any{
			"name":        fields.InstanceName,
			"description": fields.InstanceDescription,
			"version":     fields.InstanceVersion,
			"created_by":  fields.CreatedBy,
			"created_on":  createdOn,
		},
	}, nil
}

func (m Manifest) section(name string) map[string]any {
	if section, ok := m[name].(map[string]any); ok {
		return section
	}
	section := map[string]any{}
	m[name] = section
	return section
}

func (m Manifest) typeName() string {
	return fmt.Sprint(m.section("type")["name"])
}

func (m Manifest) instanceName() string {
	return fmt.Sprint(m.section("instance")["name"])
}

func (m Manifest) instanceVersion() string {
	return fmt.Sprint(m.section("instance")["version"])
}

// ExtractManifest reads and decodes the manifest from a .tar.gz package.
func ExtractManifest(filename string) (Manifest, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read package gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read package entry: %w", err)
		}
		if hdr.Name != ManifestName {
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
		return manifest, nil
	}
	return nil, fmt.Errorf("missing manifest file: %s", ManifestName)
}
