package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Configuration constants
const (
	// DefaultConfigPath is the default path to the config file
	DefaultConfigPath = "~/.ember/config.yaml"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "EMBER_"

	// EnvNestingSeparator separates nested keys in environment variable names,
	// e.g. EMBER_ENGINE__PLUGIN_DIR maps to engine.plugin_dir
	EnvNestingSeparator = "__"
)

// Config holds all configuration for the ember host
type Config struct {
	// Engine options
	Engine EngineConfig `koanf:"engine"`

	// Server options
	Server ServerConfig `koanf:"server"`

	// Log options
	Log LogConfig `koanf:"log"`
}

// EngineConfig holds sandbox and invocation configuration
type EngineConfig struct {
	// Directory scanned for .wasm plugins
	PluginDir string `koanf:"plugin_dir" validate:"required"`

	// Default deadline for a single plugin call
	DefaultTimeout time.Duration `koanf:"default_timeout" validate:"gt=0"`

	// Upper bound on linear memory per guest instance, in 64KiB pages (0 = wazero default)
	MaxMemoryPages uint32 `koanf:"max_memory_pages" validate:"lte=65536"`

	// Directory for the on-disk compilation cache (empty = in-memory)
	CompilationCacheDir string `koanf:"compilation_cache_dir"`

	// Number of modules compiled in parallel during discovery
	DiscoveryConcurrency int `koanf:"discovery_concurrency" validate:"gte=1"`

	// Capacity of the per-plugin log store
	LogStoreCapacity int `koanf:"log_store_capacity" validate:"gte=1"`

	// Maximum concurrent calls across all plugins
	MaxConcurrentCalls int `koanf:"max_concurrent_calls" validate:"gte=1"`

	// Maximum concurrent calls into a single plugin
	MaxCallsPerPlugin int `koanf:"max_calls_per_plugin" validate:"gte=1"`

	// Circuit breaker settings
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	// Socket path for the admin API
	SocketPath string `koanf:"socket_path" validate:"required"`

	// HTTP address to listen on
	HTTPAddr string `koanf:"http_addr" validate:"required"`

	// Directory for the plugin state database
	StateDir string `koanf:"state_dir"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `koanf:"level" validate:"oneof=debug info warn error"`
	File        string `koanf:"file"`
	Development bool   `koanf:"development"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// Failure threshold before circuit opens
	FailureThreshold int `koanf:"failure_threshold" validate:"gte=1"`

	// Reset timeout after which to try again
	ResetTimeout time.Duration `koanf:"reset_timeout" validate:"gt=0"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	base := filepath.Join(homeDir, ".ember")

	return &Config{
		Engine: EngineConfig{
			PluginDir:            filepath.Join(base, "plugins"),
			DefaultTimeout:       5 * time.Second,
			MaxMemoryPages:       256,
			DiscoveryConcurrency: 4,
			LogStoreCapacity:     1000,
			MaxConcurrentCalls:   100,
			MaxCallsPerPlugin:    10,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Server: ServerConfig{
			SocketPath: filepath.Join(base, "ember.sock"),
			HTTPAddr:   "localhost:8080",
			StateDir:   filepath.Join(base, "state"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from the specified path and environment variables
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(newStructProvider(DefaultConfig()), nil); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	expandedPath := ExpandHome(configPath)
	if expandedPath != "" {
		if _, err := os.Stat(expandedPath); err == nil {
			if err := k.Load(file.Provider(expandedPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &config,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Engine.PluginDir = ExpandHome(config.Engine.PluginDir)
	config.Engine.CompilationCacheDir = ExpandHome(config.Engine.CompilationCacheDir)
	config.Server.SocketPath = ExpandHome(config.Server.SocketPath)
	config.Server.StateDir = ExpandHome(config.Server.StateDir)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// envKey maps EMBER_ENGINE__PLUGIN_DIR to engine.plugin_dir
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, EnvNestingSeparator, ".")
}

// ExpandHome expands a leading ~/ to the user's home directory
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// structProvider is a provider that loads configuration from a struct
type structProvider struct {
	cfg interface{}
}

// newStructProvider creates a new struct provider
func newStructProvider(cfg interface{}) *structProvider {
	return &structProvider{cfg: cfg}
}

// Read reads the configuration from the struct
func (s *structProvider) Read() (map[string]interface{}, error) {
	var out map[string]interface{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "koanf",
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(s.cfg); err != nil {
		return nil, err
	}

	return out, nil
}

// ReadBytes is required by the Provider interface but not used for struct providers
func (s *structProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not supported for struct provider")
}
