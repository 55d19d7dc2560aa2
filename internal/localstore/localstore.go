// Package localstore is the client's durable string key/value store.
//
// Values are always read and written whole. The SQLite kv table in
// internal/storage is the durable implementation; Memory is used in tests
// and for ephemeral runs.
package localstore

import (
	"context"
	"strconv"
	"sync"
)

// Storage is a string-keyed, string-valued store.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Memory is an in-process Storage.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// GetBool reads a boolean flag, returning def when the key is absent or
// holds something other than "true"/"false".
func GetBool(ctx context.Context, s Storage, key string, def bool) (bool, error) {
	v, ok, err := s.GetItem(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return def, nil
	}
	return b, nil
}

// SetBool writes a boolean flag as "true" or "false".
func SetBool(ctx context.Context, s Storage, key string, v bool) error {
	return s.SetItem(ctx, key, strconv.FormatBool(v))
}
