package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/johnwmail/pasties/models"
)

// MemoryStore keeps pastes in process memory. Used for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	pastes map[string]*models.Paste
	closed bool
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pastes: make(map[string]*models.Paste)}
}

func clonePaste(p *models.Paste) *models.Paste {
	c := *p
	return &c
}

// Create saves a new paste
func (m *MemoryStore) Create(_ context.Context, paste *models.Paste) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	if _, ok := m.pastes[paste.URL]; ok {
		return ErrAlreadyExists
	}
	m.pastes[paste.URL] = clonePaste(paste)
	return nil
}

// GetByURL retrieves a paste by its URL
func (m *MemoryStore) GetByURL(_ context.Context, url string) (*models.Paste, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed
	}
	p, ok := m.pastes[url]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePaste(p), nil
}

// Exists reports whether url is taken
func (m *MemoryStore) Exists(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, errClosed
	}
	_, ok := m.pastes[url]
	return ok, nil
}

// Update replaces the paste stored under oldURL
func (m *MemoryStore) Update(_ context.Context, oldURL string, paste *models.Paste) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	if _, ok := m.pastes[oldURL]; !ok {
		return ErrNotFound
	}
	if paste.URL != oldURL {
		if _, taken := m.pastes[paste.URL]; taken {
			return ErrAlreadyExists
		}
		delete(m.pastes, oldURL)
	}
	m.pastes[paste.URL] = clonePaste(paste)
	return nil
}

// Delete removes a paste
func (m *MemoryStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	if _, ok := m.pastes[url]; !ok {
		return ErrNotFound
	}
	delete(m.pastes, url)
	return nil
}

// IncrementViews bumps the view counter
func (m *MemoryStore) IncrementViews(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed
	}
	p, ok := m.pastes[url]
	if !ok {
		return ErrNotFound
	}
	p.Views++
	return nil
}

// List returns pastes newest first
func (m *MemoryStore) List(_ context.Context, opts models.ListOptions) ([]*models.Paste, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed
	}

	var out []*models.Paste
	for _, p := range m.pastes {
		if !opts.Matches(p) {
			continue
		}
		out = append(out, clonePaste(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DatePublished != out[j].DatePublished {
			return out[i].DatePublished > out[j].DatePublished
		}
		return out[i].URL < out[j].URL
	})

	return paginate(out, opts.Offset, opts.Limit), nil
}

// DeleteExpired removes expired pastes
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errClosed
	}
	var n int64
	for url, p := range m.pastes {
		if p.IsExpired(now) {
			delete(m.pastes, url)
			n++
		}
	}
	return n, nil
}

// Ping fails only after Close
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errClosed
	}
	return nil
}

// Close marks the store as closed
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
