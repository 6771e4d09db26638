// Package localstore provides the durable string-keyed storage the cache
// mirrors itself into. It plays the role a browser's localStorage plays for a
// web page: synchronous, origin-local, small values.
package localstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/config"
	"github.com/xelth-com/modspace/internal/database"
)

// Storage is a synchronous key/value store
type Storage interface {
	// Get returns the value and whether the key exists
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	Keys() ([]string, error)
	Close() error
}

// Open builds the storage backend selected in cfg
func Open(cfg config.StorageConfig, dbCfg config.DatabaseConfig, log *zap.Logger) (Storage, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "postgres":
		db, err := database.Connect(dbCfg, log)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// RemovePrefixed deletes every key starting with one of the prefixes and
// returns how many were removed.
func RemovePrefixed(s Storage, prefixes ...string) (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	removed := 0
	for _, key := range keys {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(key, p) {
				if err := s.Remove(key); err != nil {
					return removed, fmt.Errorf("remove %s: %w", key, err)
				}
				removed++
				break
			}
		}
	}
	return removed, nil
}

// Memory is an in-process Storage, used in tests and with STORAGE_DRIVER=memory
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error { return nil }
