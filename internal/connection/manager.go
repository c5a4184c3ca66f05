package connection

import (
	"sort"
	"sync"

	"github.com/nerrad567/devicelink/internal/event"
)

// Manager supervises all registered device connections.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	devices map[string]*Device
	closed  bool

	bus  *event.Bus
	opts Options
}

// NewManager creates a connection manager publishing lifecycle events to bus.
func NewManager(bus *event.Bus, opts Options) *Manager {
	return &Manager{
		devices: make(map[string]*Device),
		bus:     bus,
		opts:    opts.withDefaults(),
	}
}

// Register begins supervising a device connection.
//
// Supervision starts immediately in the background; Register never blocks on
// the device. Returns ErrDeviceExists if the ID is already registered.
func (m *Manager) Register(id string, strategy Strategy) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if _, ok := m.devices[id]; ok {
		return nil, ErrDeviceExists
	}

	dev := newDevice(id, strategy, m.bus, m.opts)
	m.devices[id] = dev

	dev.mu.Lock()
	dev.startLocked()
	dev.mu.Unlock()

	return dev, nil
}

// Device returns the supervised device with the given ID.
func (m *Manager) Device(id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return dev, nil
}

// Devices returns all supervised devices sorted by ID.
func (m *Manager) Devices() []*Device {
	m.mu.Lock()
	defer m.mu.Unlock()

	devs := make([]*Device, 0, len(m.devices))
	for _, dev := range m.devices {
		devs = append(devs, dev)
	}
	sort.Slice(devs, func(i, j int) bool { return devs[i].id < devs[j].id })
	return devs
}

// Teardown stops supervising a device and removes it from the manager.
func (m *Manager) Teardown(id string) error {
	m.mu.Lock()
	dev, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	m.mu.Unlock()

	dev.Teardown()
	return nil
}

// Close tears down every device. The manager accepts no registrations after.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	devs := make([]*Device, 0, len(m.devices))
	for id, dev := range m.devices {
		delete(m.devices, id)
		devs = append(devs, dev)
	}
	m.mu.Unlock()

	for _, dev := range devs {
		dev.Teardown()
	}
}
