package config

import (
	"os"
	"path/filepath"

	"github.com/ignitionstack/ember/pkg/engine/config"
)

// DefaultSocketPath returns the default admin socket path of the host
func DefaultSocketPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".ember", "ember.sock")
}

// Global configuration variables
var (
	// ConfigPath is the path to the configuration file
	ConfigPath = config.DefaultConfigPath

	// DefaultSocket is the default path to the admin socket
	DefaultSocket = DefaultSocketPath()

	// Version is the host version reported to plugins, set at build time
	Version = "dev"
)
