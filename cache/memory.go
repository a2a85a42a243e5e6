package cache

import (
	"context"
	"sync"
	"time"
)

// memEntry holds a cached entry with its expiry.
type memEntry struct {
	entry     *Entry
	expiresAt time.Time
}

// Memory is an in-process Backend. Expired entries are dropped lazily on
// read and by a background sweep.
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*memEntry
	maxEntries int
	now        func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewMemory creates a Memory backend holding at most maxEntries entries
// (unbounded when <= 0). A goroutine sweeps expired entries every sweep
// interval until Close is called.
func NewMemory(maxEntries int, sweep time.Duration) *Memory {
	m := &Memory{
		store:      make(map[string]*memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if sweep > 0 {
		go m.cleanupLoop(sweep)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.store[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.store[key]; ok && cur == e {
			delete(m.store, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.entry, true, nil
}

// Set stores an entry. At capacity a random other entry is evicted.
func (m *Memory) Set(_ context.Context, key string, e *Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.store[key]; !exists && m.maxEntries > 0 && len(m.store) >= m.maxEntries {
		// map iteration order is random
		for k := range m.store {
			delete(m.store, k)
			break
		}
	}
	m.store[key] = &memEntry{entry: e, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.store, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.store = make(map[string]*memEntry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// Close stops the sweep goroutine.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	for k, e := range m.store {
		if !now.Before(e.expiresAt) {
			delete(m.store, k)
		}
	}
	m.mu.Unlock()
}

func (m *Memory) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}
