package hostile

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Manager tracks all live hostile instances by ID and by location.
// All methods are safe for concurrent use.
type Manager struct {
	mu           sync.RWMutex
	instances    map[string]*Instance       // instanceID → Instance
	locationSets map[string]map[string]bool // locationID → set of instanceIDs
}

// NewManager creates an empty hostile Manager.
func NewManager() *Manager {
	return &Manager{
		instances:    make(map[string]*Instance),
		locationSets: make(map[string]map[string]bool),
	}
}

// Spawn creates a new Instance from tmpl and places it in locationID.
//
// Precondition: tmpl must be non-nil and validated; locationID must be
// non-empty.
// Postcondition: Returns a new Instance with a unique ID registered in
// locationID.
func (m *Manager) Spawn(tmpl *Template, locationID string) (*Instance, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("hostile.Manager.Spawn: tmpl must not be nil")
	}
	if locationID == "" {
		return nil, fmt.Errorf("hostile.Manager.Spawn: locationID must not be empty")
	}

	id := fmt.Sprintf("%s-%s", tmpl.ID, uuid.NewString())
	inst := NewInstance(id, tmpl, locationID)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[id] = inst
	if m.locationSets[locationID] == nil {
		m.locationSets[locationID] = make(map[string]bool)
	}
	m.locationSets[locationID][id] = true

	return inst, nil
}

// Remove deletes an instance by ID.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an error if the instance is not found.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("hostile instance %q not found", id)
	}

	if ls, ok := m.locationSets[inst.LocationID]; ok {
		delete(ls, id)
		if len(ls) == 0 {
			delete(m.locationSets, inst.LocationID)
		}
	}
	delete(m.instances, id)
	return nil
}

// MarkDead flags an instance as defeated. The instance stays registered so
// its corpse remains visible at the location until Remove is called.
//
// Postcondition: Returns an error if the instance is not found.
func (m *Manager) MarkDead(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("hostile instance %q not found", id)
	}
	inst.Dead = true
	inst.CurrentHP = 0
	return nil
}

// SetCurrentHP writes a hostile's current HP as observed from combat, clamped
// to [0, MaxHP], so damage survives the fight that dealt it. Dead instances
// are left untouched; MarkDead owns that transition.
//
// Postcondition: Returns an error if the instance is not found.
func (m *Manager) SetCurrentHP(id string, hp int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("hostile instance %q not found", id)
	}
	if inst.Dead {
		return nil
	}
	if hp < 0 {
		hp = 0
	}
	if hp > inst.tmpl.MaxHP {
		hp = inst.tmpl.MaxHP
	}
	inst.CurrentHP = hp
	return nil
}

// Get returns the instance with the given ID.
//
// Postcondition: Returns (inst, true) if found, or (nil, false) otherwise.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// InstancesAt returns a snapshot of all live instances in locationID.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (m *Manager) InstancesAt(locationID string) []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.locationSets[locationID]
	if !ok {
		return []*Instance{}
	}

	out := make([]*Instance, 0, len(ids))
	for id := range ids {
		if inst, ok := m.instances[id]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// Move relocates an instance from its current location to newLocationID.
//
// Precondition: id must identify an existing instance; newLocationID must be
// non-empty.
// Postcondition: instance.LocationID equals newLocationID; the location index
// is updated accordingly.
func (m *Manager) Move(id, newLocationID string) error {
	if newLocationID == "" {
		return fmt.Errorf("hostile.Manager.Move: newLocationID must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("hostile.Manager.Move: instance %q not found", id)
	}

	oldLocationID := inst.LocationID
	if ls, ok := m.locationSets[oldLocationID]; ok {
		delete(ls, id)
		if len(ls) == 0 {
			delete(m.locationSets, oldLocationID)
		}
	}

	inst.LocationID = newLocationID
	if m.locationSets[newLocationID] == nil {
		m.locationSets[newLocationID] = make(map[string]bool)
	}
	m.locationSets[newLocationID][id] = true

	return nil
}

// FindAt returns the living instance in locationID whose Name has target as a
// case-insensitive prefix. When several match, the one with the smallest
// instance ID wins, so repeated calls resolve the same hostile. Returns nil
// if no match is found.
//
// Precondition: locationID and target must be non-empty for meaningful
// results.
func (m *Manager) FindAt(locationID, target string) *Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idSet, ok := m.locationSets[locationID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lower := strings.ToLower(target)
	for _, id := range ids {
		inst, ok := m.instances[id]
		if !ok || inst.IsDead() {
			continue
		}
		if strings.HasPrefix(strings.ToLower(inst.Name), lower) {
			return inst
		}
	}
	return nil
}
