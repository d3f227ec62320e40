package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It serves single-instance deployments
// without Redis and tests; windows are not shared across processes.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	events  []time.Time // ascending
	expires time.Time
}

// NewMemoryStore creates an empty in-process window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*memoryWindow)}
}

// Admit implements Store under a single mutex.
func (m *MemoryStore) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.windows) > sweepThreshold {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok || now.After(w.expires) {
		w = &memoryWindow{}
		m.windows[key] = w
	}

	// Prune events at or before the window start
	cutoff := now.Add(-window)
	keep := sort.Search(len(w.events), func(i int) bool { return w.events[i].After(cutoff) })
	w.events = w.events[keep:]

	count := len(w.events)
	if count < limit {
		i := sort.Search(len(w.events), func(i int) bool { return w.events[i].After(now) })
		w.events = append(w.events, time.Time{})
		copy(w.events[i+1:], w.events[i:])
		w.events[i] = now
		w.expires = now.Add(window)
		return Window{Admitted: true, Count: count}, nil
	}

	if count == 0 {
		delete(m.windows, key)
		return Window{Count: 0}, nil
	}
	return Window{Count: count, Oldest: w.events[0]}, nil
}

// Peek implements Store.
func (m *MemoryStore) Peek(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.After(w.expires) {
		return Window{}, nil
	}
	cutoff := now.Add(-window)
	first := sort.Search(len(w.events), func(i int) bool { return w.events[i].After(cutoff) })
	live := w.events[first:]
	if len(live) == 0 {
		return Window{}, nil
	}
	return Window{Count: len(live), Oldest: live[0]}, nil
}

const sweepThreshold = 4096

// sweep drops expired windows, standing in for Redis key TTLs.
func (m *MemoryStore) sweep(now time.Time) {
	for k, w := range m.windows {
		if now.After(w.expires) {
			delete(m.windows, k)
		}
	}
}

// Len reports the number of live keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
