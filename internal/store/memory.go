package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memItem struct {
	value     []byte
	expiresAt int64
}

// Memory is an in-process Store used by tests and `--store memory`.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memItem
	Now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]memItem), Now: time.Now}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Memory) live(it memItem) bool {
	return it.expiresAt == 0 || it.expiresAt > m.now().UnixNano()
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || !m.live(it) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	m.mu.Lock()
	m.items[key] = memItem{value: buf, expiresAt: ExpiresAt(m.now(), ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok || !m.live(it) {
		delete(m.items, key)
		return ErrNotFound
	}
	delete(m.items, key)
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, it := range m.items {
		if !strings.HasPrefix(k, prefix) || !m.live(it) {
			continue
		}
		v := make([]byte, len(it.value))
		copy(v, it.value)
		out = append(out, Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Close() error { return nil }
