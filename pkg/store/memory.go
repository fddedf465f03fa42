package store

import (
	"sort"
	"sync"
	"time"

	"db-monitor/pkg/model"
)

// MemoryStore is a simple in-memory implementation, intended for dev/demo.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[uint]model.Instance
	nextID    uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[uint]model.Instance),
		nextID:    1,
	}
}

func (m *MemoryStore) GetInstance(id uint) (model.Instance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok, nil
}

func (m *MemoryStore) ListInstances() ([]model.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListActiveInstances() ([]model.Instance, error) {
	all, err := m.ListInstances()
	if err != nil {
		return nil, err
	}
	return activeOnly(all), nil
}

func (m *MemoryStore) CreateInstance(inst model.Instance) (model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	inst.ID = m.nextID
	inst.Status = model.StatusEnabled
	inst.CreatedAt = now
	inst.UpdatedAt = now
	m.instances[inst.ID] = inst
	m.nextID++
	return inst, nil
}

func (m *MemoryStore) UpdateInstance(inst model.Instance) (model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.instances[inst.ID]
	if !ok {
		return inst, ErrNotFound
	}
	inst.CreatedAt = existing.CreatedAt
	inst.UpdatedAt = time.Now()
	m.instances[inst.ID] = inst
	return inst, nil
}

func (m *MemoryStore) DeleteInstance(id uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return false, nil
	}
	delete(m.instances, id)
	return true, nil
}
