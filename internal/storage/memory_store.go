package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/netops-tools/panos-ike/pkg/types"
)

// Ensure MemoryStore implements DeviceStore
var _ DeviceStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory DeviceStore for tests and one-shot runs
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]*types.DeviceProfile
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(profiles ...types.DeviceProfile) *MemoryStore {
	m := &MemoryStore{devices: make(map[string]*types.DeviceProfile)}
	for _, p := range profiles {
		_ = m.Add(p)
	}
	return m
}

// Get retrieves a copy of a device profile
func (m *MemoryStore) Get(name string) (*types.DeviceProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.devices[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	cp := *p
	return &cp, nil
}

// Add stores a new profile
func (m *MemoryStore) Add(profile types.DeviceProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[profile.Name]; exists {
		return fmt.Errorf("%w: '%s'", ErrExists, profile.Name)
	}
	now := time.Now()
	profile.CreatedAt, profile.UpdatedAt = now, now
	m.devices[profile.Name] = &profile
	return nil
}

// Update replaces an existing profile, keeping its creation time
func (m *MemoryStore) Update(profile types.DeviceProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.devices[profile.Name]
	if !exists {
		return fmt.Errorf("%w: '%s'", ErrNotFound, profile.Name)
	}
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = time.Now()
	m.devices[profile.Name] = &profile
	return nil
}

// Delete removes a profile
func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[name]; !exists {
		return fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	delete(m.devices, name)
	return nil
}

// List returns metadata sorted by name
func (m *MemoryStore) List() []types.DeviceMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.DeviceMetadata, 0, len(m.devices))
	for _, p := range m.devices {
		out = append(out, p.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Exists checks if a profile exists
func (m *MemoryStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.devices[name]
	return exists
}
