package logging

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelWarning
	LevelError
	LevelDebug
)

// String returns the label used in rendered log lines.
func (l LogLevel) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// ParseLevel maps a guest supplied level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	case "debug", "trace":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Source tells where a plugin log line came from.
type Source string

const (
	SourceHost   Source = "host"
	SourceStdout Source = "stdout"
	SourceStderr Source = "stderr"
	SourceGuest  Source = "guest"
)

type PluginLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Source    Source    `json:"source"`
	Message   string    `json:"message"`
}

// PluginLogStore keeps a bounded window of recent log lines per plugin.
type PluginLogStore struct {
	logs       map[string][]PluginLogEntry
	mutex      sync.RWMutex
	maxEntries int
}

// NewPluginLogStore creates a new PluginLogStore
func NewPluginLogStore(maxEntries int) *PluginLogStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &PluginLogStore{
		logs:       make(map[string][]PluginLogEntry),
		maxEntries: maxEntries,
	}
}

// AddLog adds a host log entry for a plugin
func (s *PluginLogStore) AddLog(pluginID string, level LogLevel, message string) {
	s.Add(pluginID, PluginLogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Source:    SourceHost,
		Message:   message,
	})
}

// Add appends an entry, dropping the oldest ones past the capacity.
func (s *PluginLogStore) Add(pluginID string, entry PluginLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries := append(s.logs[pluginID], entry)
	if len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}
	s.logs[pluginID] = entries
}

// AddOutput splits captured guest output into lines and stores each one.
func (s *PluginLogStore) AddOutput(pluginID string, source Source, output []byte) {
	if len(output) == 0 {
		return
	}

	level := LevelInfo
	if source == SourceStderr {
		level = LevelWarning
	}

	now := time.Now()
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		s.Add(pluginID, PluginLogEntry{Timestamp: now, Level: level, Source: source, Message: line})
	}
}

// Entries returns a copy of the stored entries, filtered like GetLogs.
func (s *PluginLogStore) Entries(pluginID string, since time.Time, tail int) []PluginLogEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := s.logs[pluginID]
	filtered := make([]PluginLogEntry, 0, len(entries))

	for _, entry := range entries {
		if since.IsZero() || entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	if tail > 0 && len(filtered) > tail {
		filtered = filtered[len(filtered)-tail:]
	}

	return filtered
}

// GetLogs retrieves rendered log lines for a plugin
func (s *PluginLogStore) GetLogs(pluginID string, since time.Time, tail int) []string {
	entries := s.Entries(pluginID, since, tail)

	result := make([]string, len(entries))
	for i, entry := range entries {
		result[i] = fmt.Sprintf("[%s] [%s] [%s] %s",
			entry.Timestamp.Format(time.RFC3339),
			entry.Level,
			entry.Source,
			entry.Message)
	}

	return result
}

// Forget drops everything stored for a plugin.
func (s *PluginLogStore) Forget(pluginID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.logs, pluginID)
}
