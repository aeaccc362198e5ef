package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ImmutableConfig is the read-only key-value map handed to a plugin.
// Plugins read it through the config capability; they can never change it.
type ImmutableConfig struct {
	values map[string]string
}

// NewConfig creates a new ImmutableConfig from a map.
// The input map is copied to avoid external modifications.
func NewConfig(values map[string]string) ImmutableConfig {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return ImmutableConfig{values: copied}
}

// Get retrieves a value from the configuration.
func (c ImmutableConfig) Get(key string) (string, bool) {
	value, exists := c.values[key]
	return value, exists
}

// GetWithDefault retrieves a value or returns a default if not found.
func (c ImmutableConfig) GetWithDefault(key string, defaultValue string) string {
	if value, exists := c.values[key]; exists {
		return value
	}
	return defaultValue
}

// Size returns the number of configuration entries.
func (c ImmutableConfig) Size() int {
	return len(c.values)
}

// Keys returns all keys in the configuration, sorted.
func (c ImmutableConfig) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap converts the ImmutableConfig back to a regular map.
// The returned map is a copy to maintain immutability.
func (c ImmutableConfig) ToMap() map[string]string {
	result := make(map[string]string, len(c.values))
	for k, v := range c.values {
		result[k] = v
	}
	return result
}

// Merge combines two configurations, with values from other taking precedence.
func (c ImmutableConfig) Merge(other ImmutableConfig) ImmutableConfig {
	merged := make(map[string]string, len(c.values)+len(other.values))
	for k, v := range c.values {
		merged[k] = v
	}
	for k, v := range other.values {
		merged[k] = v
	}
	return ImmutableConfig{values: merged}
}

// MarshalJSON encodes the configuration as a flat JSON object.
func (c ImmutableConfig) MarshalJSON() ([]byte, error) {
	if c.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.values)
}

// String returns a string representation of the configuration.
func (c ImmutableConfig) String() string {
	var builder strings.Builder

	builder.WriteString("{")
	for i, k := range c.Keys() {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(fmt.Sprintf("%s: %s", k, c.values[k]))
	}
	builder.WriteString("}")

	return builder.String()
}
