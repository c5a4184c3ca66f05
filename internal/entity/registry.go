package entity

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrEntityNotFound is returned when the entity ID is not registered.
	ErrEntityNotFound = errors.New("entity: not registered")

	// ErrNoProvider is returned when a refresh is requested for an entity
	// that registered without a provider.
	ErrNoProvider = errors.New("entity: no attribute provider")
)

// Provider reads an entity's current attributes from its device.
type Provider func(ctx context.Context) (Attributes, error)

// Handle pushes attribute changes for one entity to the integration host.
type Handle interface {
	PushUpdate(ctx context.Context, id ID, attrs Attributes) error
}

// HandleFunc adapts a function to the Handle interface.
type HandleFunc func(ctx context.Context, id ID, attrs Attributes) error

func (f HandleFunc) PushUpdate(ctx context.Context, id ID, attrs Attributes) error {
	return f(ctx, id, attrs)
}

// registration ties an entity to its provider and push handle.
type registration struct {
	id       ID
	provider Provider
	handle   Handle
}

// Registry holds the entities known to this integration instance.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[ID]*registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[ID]*registration),
	}
}

// Register adds an entity. Registering an existing ID replaces the previous
// provider and handle, which is how integrations swap implementations on
// reconfiguration. provider may be nil for push-only entities.
func (r *Registry) Register(id ID, provider Provider, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[id] = &registration{id: id, provider: provider, handle: handle}
}

// Unregister removes an entity. Unknown IDs are ignored.
func (r *Registry) Unregister(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, id)
}

// Contains reports whether the entity is registered.
func (r *Registry) Contains(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[id]
	return ok
}

// DeviceEntities returns the IDs of all entities owned by a device, sorted
// by local identifier.
func (r *Registry) DeviceEntities(device string) []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []ID
	for id := range r.entities {
		if id.Device == device {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Local < ids[j].Local })
	return ids
}

// All returns every registered entity ID sorted by device then local ID.
func (r *Registry) All() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ID, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Device != ids[j].Device {
			return ids[i].Device < ids[j].Device
		}
		return ids[i].Local < ids[j].Local
	})
	return ids
}

// Lookup returns the push handle registered for an entity. Integrations use
// it to route inbound commands to the right entity.
func (r *Registry) Lookup(id ID) (Handle, bool) {
	reg, ok := r.lookup(id)
	if !ok {
		return nil, false
	}
	return reg.handle, true
}

// AttributesFor reads an entity's current attributes through its provider.
//
// Returns ErrEntityNotFound for an unknown ID and ErrNoProvider for a
// push-only entity.
func (r *Registry) AttributesFor(ctx context.Context, id ID) (Attributes, error) {
	reg, ok := r.lookup(id)
	if !ok {
		return nil, ErrEntityNotFound
	}
	if reg.provider == nil {
		return nil, ErrNoProvider
	}
	return reg.provider(ctx)
}

func (r *Registry) lookup(id ID) (*registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entities[id]
	return reg, ok
}
