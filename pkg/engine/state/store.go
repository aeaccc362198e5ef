package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ignitionstack/ember/internal/repository"
	"github.com/ignitionstack/ember/pkg/engine/errors"
)

// Status is what the last discovery pass found for a plugin id.
type Status string

const (
	StatusLoaded  Status = "loaded"
	StatusBare    Status = "bare"
	StatusFailed  Status = "failed"
	StatusMissing Status = "missing"
)

const keyPrefix = "plugin:"

// PluginRecord is the persisted view of a plugin across restarts.
type PluginRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Version   string    `json:"version,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Path      string    `json:"path"`
	Enabled   bool      `json:"enabled"`
	Status    Status    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Observation is one candidate as seen by a discovery pass.
type Observation struct {
	ID      string
	Path    string
	Digest  string
	Name    string
	Version string
	Status  Status
	Err     string

	// Enablement applied the first time an id is seen
	DefaultEnabled bool
}

// Store persists plugin records and answers enablement queries from memory.
type Store struct {
	dbRepo  repository.DBRepository
	mu      sync.RWMutex
	enabled map[string]bool
	now     func() time.Time
}

// NewStore loads existing records from dbRepo.
func NewStore(dbRepo repository.DBRepository) (*Store, error) {
	s := &Store{
		dbRepo:  dbRepo,
		enabled: make(map[string]bool),
		now:     time.Now,
	}

	records, err := s.List()
	if err != nil {
		return nil, errors.Wrap(errors.DomainBoot, errors.CodeStateStoreFailed, "Failed to load plugin state", err)
	}
	for _, r := range records {
		s.enabled[r.ID] = r.Enabled
	}
	return s, nil
}

// IsEnabled reports whether id may be selected. Ids never recorded are enabled.
func (s *Store) IsEnabled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enabled, ok := s.enabled[id]
	return !ok || enabled
}

// Get returns the record of a plugin.
func (s *Store) Get(id string) (*PluginRecord, error) {
	var record *PluginRecord
	err := s.dbRepo.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, id)
		return err
	})
	return record, err
}

// List returns every record ordered by id.
func (s *Store) List() ([]PluginRecord, error) {
	var records []PluginRecord

	err := s.dbRepo.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var r PluginRecord
				if err := json.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("failed to unmarshal plugin record: %w", err)
				}
				records = append(records, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list plugin records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// SetEnabled changes the enablement of a known plugin.
func (s *Store) SetEnabled(id string, enabled bool) (*PluginRecord, error) {
	var record *PluginRecord

	err := s.dbRepo.Update(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, id)
		if err != nil {
			return err
		}
		record.Enabled = enabled
		return putRecord(txn, record)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.enabled[id] = enabled
	s.mu.Unlock()

	return record, nil
}

// Sync records the outcome of a discovery pass. Ids seen before keep their
// enablement; ids absent from the pass are marked missing.
func (s *Store) Sync(observations []Observation) error {
	now := s.now()
	seen := make(map[string]bool, len(observations))
	enabled := make(map[string]bool, len(observations))

	err := s.dbRepo.Update(func(txn *badger.Txn) error {
		for _, o := range observations {
			seen[o.ID] = true

			record, err := getRecord(txn, o.ID)
			if errors.Is(err, errors.DomainInvocation, errors.CodePluginNotFound) {
				record = &PluginRecord{ID: o.ID, Enabled: o.DefaultEnabled, FirstSeen: now}
			} else if err != nil {
				return err
			}

			record.Path = o.Path
			record.Digest = o.Digest
			record.Status = o.Status
			record.LastError = o.Err
			record.LastSeen = now
			if o.Name != "" {
				record.Name = o.Name
				record.Version = o.Version
			}
			enabled[o.ID] = record.Enabled

			if err := putRecord(txn, record); err != nil {
				return err
			}
		}

		return markMissing(txn, seen, enabled)
	})
	if err != nil {
		return fmt.Errorf("failed to sync plugin state: %w", err)
	}

	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.dbRepo.Close()
}

func markMissing(txn *badger.Txn, seen, enabled map[string]bool) error {
	missing, err := collectMissing(txn, seen, enabled)
	if err != nil {
		return err
	}
	for _, r := range missing {
		if err := putRecord(txn, r); err != nil {
			return err
		}
	}
	return nil
}

func collectMissing(txn *badger.Txn, seen, enabled map[string]bool) ([]*PluginRecord, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var missing []*PluginRecord
	prefix := []byte(keyPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var r PluginRecord
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		}); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plugin record: %w", err)
		}
		enabled[r.ID] = r.Enabled
		if !seen[r.ID] && r.Status != StatusMissing {
			r.Status = StatusMissing
			missing = append(missing, &r)
		}
	}
	return missing, nil
}

func getRecord(txn *badger.Txn, id string) (*PluginRecord, error) {
	item, err := txn.Get(recordKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, errors.ErrPluginNotFound.WithPlugin(id)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	var r PluginRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plugin record: %w", err)
	}
	return &r, nil
}

func putRecord(txn *badger.Txn, r *PluginRecord) error {
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal plugin record: %w", err)
	}
	if err := txn.Set(recordKey(r.ID), val); err != nil {
		return fmt.Errorf("failed to write plugin record: %w", err)
	}
	return nil
}

func recordKey(id string) []byte {
	return []byte(keyPrefix + id)
}
