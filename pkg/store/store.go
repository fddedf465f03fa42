package store

import (
	"db-monitor/pkg/model"
)

// ErrNotFound is returned by UpdateInstance for unknown ids. Every backend,
// consul included, returns this same value.
var ErrNotFound = model.ErrInstanceNotFound

// InstanceStore persists the registry of monitored instances.
type InstanceStore interface {
	GetInstance(id uint) (model.Instance, bool, error)
	ListInstances() ([]model.Instance, error)
	ListActiveInstances() ([]model.Instance, error)
	// CreateInstance assigns the id and enables the instance.
	CreateInstance(model.Instance) (model.Instance, error)
	UpdateInstance(model.Instance) (model.Instance, error)
	DeleteInstance(id uint) (bool, error)
}

// NewMemory is a helper to construct the in-memory implementation without importing it directly.
func NewMemory() InstanceStore {
	return NewMemoryStore()
}

func activeOnly(in []model.Instance) []model.Instance {
	out := make([]model.Instance, 0, len(in))
	for _, i := range in {
		if i.Enabled() {
			out = append(out, i)
		}
	}
	return out
}
