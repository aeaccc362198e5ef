package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// SidecarExtensions are tried in order next to a plugin binary.
var SidecarExtensions = []string{".toml", ".yaml", ".yml"}

// PluginManifest is the optional host-side settings file for a plugin,
// stored next to the binary as <id>.toml or <id>.yaml.
type PluginManifest struct {
	Plugin PluginSettings `yaml:"plugin" toml:"plugin"`
}

type PluginSettings struct {
	// Call deadline, e.g. "750ms". Empty means the engine default.
	Timeout string `yaml:"timeout" toml:"timeout"`

	// URL prefixes served by the plugin's load export.
	Routes []string `yaml:"routes" toml:"routes" validate:"dive,startswith=/"`

	// Linear memory cap in 64KiB pages. Zero means the engine default.
	MemoryPages uint32 `yaml:"memory_pages" toml:"memory_pages" validate:"lte=65536"`

	// Initial enablement when the plugin is first seen.
	Disabled bool `yaml:"disabled" toml:"disabled"`

	// Values exposed to the plugin through the config capability.
	Config map[string]string `yaml:"config" toml:"config"`
}

var validate = validator.New()

// TimeoutOr returns the configured timeout, or fallback when unset.
func (m *PluginManifest) TimeoutOr(fallback time.Duration) time.Duration {
	if m == nil || m.Plugin.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(m.Plugin.Timeout)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the manifest values.
func (m *PluginManifest) Validate() error {
	if m.Plugin.Timeout != "" {
		d, err := time.ParseDuration(m.Plugin.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", m.Plugin.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
	}
	if err := validate.Struct(m.Plugin); err != nil {
		return fmt.Errorf("invalid plugin settings: %w", err)
	}
	return nil
}

// Parse decodes a manifest; the format is chosen by file extension.
func Parse(name string, data []byte) (*PluginManifest, error) {
	var m PluginManifest

	switch filepath.Ext(name) {
	case ".toml":
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", name)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &m, nil
}

// LoadSidecar looks for a manifest named after the plugin id in dir.
// A missing sidecar is not an error: an empty manifest is returned.
func LoadSidecar(dir, id string) (*PluginManifest, string, error) {
	for _, ext := range SidecarExtensions {
		path := filepath.Join(dir, id+ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("failed to read manifest: %w", err)
		}
		m, err := Parse(path, data)
		return m, path, err
	}
	return &PluginManifest{}, "", nil
}

// MarshalYaml encodes the manifest as YAML.
func (m *PluginManifest) MarshalYaml() ([]byte, error) {
	return yaml.Marshal(m)
}

// MarshalToml encodes the manifest as TOML.
func (m *PluginManifest) MarshalToml() ([]byte, error) {
	return toml.Marshal(m)
}
