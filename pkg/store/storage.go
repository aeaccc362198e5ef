// Package store reads plugin binaries from the plugin directory.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// WasmExtension is the file extension of plugin candidates.
const WasmExtension = ".wasm"

var (
	ErrPluginNotFound   = errors.New("plugin binary not found")
	ErrDirectoryMissing = errors.New("plugin directory not found")
)

// Candidate is a file that may hold a plugin.
type Candidate struct {
	ID      string
	Path    string
	Size    int64
	ModTime time.Time
}

// Storage lists and reads plugin binaries.
type Storage interface {
	Dir() string
	List() ([]Candidate, error)
	ReadWASMFile(path string) ([]byte, error)
}

type localStorage struct {
	rootDir string
}

// NewLocalStorage returns a Storage over a directory on disk.
func NewLocalStorage(rootDir string) Storage {
	return &localStorage{rootDir: rootDir}
}

func (s *localStorage) Dir() string {
	return s.rootDir
}

// List returns the regular .wasm files of the directory sorted by name.
// Subdirectories are not scanned.
func (s *localStorage) List() ([]Candidate, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", s.rootDir, ErrDirectoryMissing)
		}
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || filepath.Ext(entry.Name()) != WasmExtension {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:      strings.TrimSuffix(entry.Name(), WasmExtension),
			Path:    filepath.Join(s.rootDir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})

	return candidates, nil
}

func (s *localStorage) ReadWASMFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("WASM file not found: %w", ErrPluginNotFound)
		}
		return nil, fmt.Errorf("failed to read WASM file: %w", err)
	}
	return data, nil
}

// Digest returns the hex sha256 of a plugin binary.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TruncateDigest shortens a digest for display.
func TruncateDigest(digest string, length int) string {
	if len(digest) <= length {
		return digest
	}
	return digest[:length]
}
