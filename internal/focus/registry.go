package focus

import (
	"sync"

	"github.com/otalk/mod-muc-focus/internal/metrics"
)

// Registry is the process-wide room map, keyed by room identifier and
// mutated only by the Controller. A lock is taken only to find-or-create
// or delete an entry; all further work proceeds under that Room's own
// mutex, so concurrent turns on different rooms never contend here.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry returns an empty room registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for id, creating it if absent.
func (reg *Registry) GetOrCreate(id string) *Room {
	reg.mu.RLock()
	room, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if ok {
		return room
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[id]; ok {
		return room
	}
	room = NewRoom(id)
	reg.rooms[id] = room
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	return room
}

// Get returns the room for id, or nil if it has never been created or has
// since been destroyed.
func (reg *Registry) Get(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

// Delete removes a room, called once teardown finishes.
func (reg *Registry) Delete(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, id)
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	metrics.RoomParticipants.DeleteLabelValues(id)
}
