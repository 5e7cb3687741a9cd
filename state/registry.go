package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/willowbee/nestsdm/trait"
)

type RegistryError string

func (r RegistryError) Error() string {
	return string(r)
}

const (
	ErrNotFound = RegistryError("resource not found")
	ErrConflict = RegistryError("resource already exists")
	ErrSync     = RegistryError("snapshot contains duplicate resource names")
)

type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRelation ChangeKind = "relation"
)

// Change describes a single registry mutation, delivered to observers after
// the mutation has taken effect. Traits names the traits touched by an
// update, nil otherwise.
type Change struct {
	Resource string
	Kind     ChangeKind
	Traits   []string
}

type Observer func(Change)

type registeredObserver struct {
	fn Observer
}

// Registry is the in-memory source of truth for the devices and structures of
// one authenticated session. It expects a single writer; reads may proceed
// concurrently with each other.
type Registry struct {
	lock       sync.RWMutex
	devices    map[string]*Device
	structures map[string]*Structure
	traitTimes map[string]map[string]time.Time

	observerLock sync.Mutex
	observers    []*registeredObserver

	logger logwrap.Logger
}

func NewRegistry(l logwrap.Logger) *Registry {
	return &Registry{
		devices:    map[string]*Device{},
		structures: map[string]*Structure{},
		traitTimes: map[string]map[string]time.Time{},
		logger:     l,
	}
}

// Load replaces the registry contents with a REST snapshot. It fails with
// ErrSync, leaving the existing state untouched, if the snapshot names the
// same resource twice. Observers are not notified: a load is a wholesale
// snapshot swap, not an incremental mutation.
func (r *Registry) Load(devices []Device, structures []Structure) error {
	newDevices := make(map[string]*Device, len(devices))
	newStructures := make(map[string]*Structure, len(structures))

	for _, d := range devices {
		if _, found := newDevices[d.Name]; found {
			return fmt.Errorf("device %s: %w", d.Name, ErrSync)
		}

		c := d.copy()
		newDevices[d.Name] = &c
	}

	for _, s := range structures {
		if _, found := newStructures[s.Name]; found {
			return fmt.Errorf("structure %s: %w", s.Name, ErrSync)
		}

		c := s.copy()
		newStructures[s.Name] = &c
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.devices = newDevices
	r.structures = newStructures
	r.traitTimes = map[string]map[string]time.Time{}

	return nil
}

// Device returns a copy of the named device.
func (r *Registry) Device(name string) (Device, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	d, found := r.devices[name]
	if !found {
		return Device{}, fmt.Errorf("device %s: %w", name, ErrNotFound)
	}

	return d.copy(), nil
}

// Devices returns copies of all devices matching every given filter, sorted
// by resource name.
func (r *Registry) Devices(filters ...DeviceFilter) []Device {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var result []Device

device:
	for _, d := range r.devices {
		for _, filter := range filters {
			if !filter(*d) {
				continue device
			}
		}

		result = append(result, d.copy())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// Structure returns a copy of the named structure or room.
func (r *Registry) Structure(name string) (Structure, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	s, found := r.structures[name]
	if !found {
		return Structure{}, fmt.Errorf("structure %s: %w", name, ErrNotFound)
	}

	return s.copy(), nil
}

// Structures returns copies of all structures, sorted by resource name.
func (r *Registry) Structures() []Structure {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var result []Structure

	for _, s := range r.structures {
		result = append(result, s.copy())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// ApplyCreate inserts a new device, failing with ErrConflict if the resource
// name is already present.
func (r *Registry) ApplyCreate(name string, deviceType DeviceType, traits trait.Set) error {
	r.lock.Lock()

	if _, found := r.devices[name]; found {
		r.lock.Unlock()
		return fmt.Errorf("device %s: %w", name, ErrConflict)
	}

	r.devices[name] = &Device{
		Name:   name,
		Type:   deviceType,
		Traits: traits.Copy(),
	}

	r.lock.Unlock()

	r.notify(Change{Resource: name, Kind: ChangeCreated})

	return nil
}

// ApplyUpdate merges the given trait deltas into an existing device, field by
// field. A non-zero timestamp marks the deltas with the event time; deltas
// for a trait that has already seen a newer update are discarded. Returns the
// names of the traits that changed.
func (r *Registry) ApplyUpdate(name string, deltas trait.Set, ts time.Time) ([]string, error) {
	r.lock.Lock()

	d, found := r.devices[name]
	if !found {
		r.lock.Unlock()
		return nil, fmt.Errorf("device %s: %w", name, ErrNotFound)
	}

	applicable := deltas
	if !ts.IsZero() {
		applicable = trait.Set{}

		for traitName, fields := range deltas {
			if last, seen := r.traitTimes[name][traitName]; seen && last.After(ts) {
				r.logger.LogDebug(context.Background(), "Discarding stale trait update.",
					logwrap.Datum("resource", name), logwrap.Datum("trait", traitName))
				continue
			}

			applicable[traitName] = fields
		}
	}

	merged, changed := d.Traits.Merge(applicable)
	if len(changed) == 0 {
		r.lock.Unlock()
		return nil, nil
	}

	d.Traits = merged

	if !ts.IsZero() {
		times, found := r.traitTimes[name]
		if !found {
			times = map[string]time.Time{}
			r.traitTimes[name] = times
		}

		for _, traitName := range changed {
			times[traitName] = ts
		}
	}

	sort.Strings(changed)

	r.lock.Unlock()

	r.notify(Change{Resource: name, Kind: ChangeUpdated, Traits: changed})

	return changed, nil
}

// ApplyDelete removes a device. Deleting an absent resource is a no-op and
// does not notify observers.
func (r *Registry) ApplyDelete(name string) {
	r.lock.Lock()

	if _, found := r.devices[name]; !found {
		r.lock.Unlock()
		return
	}

	delete(r.devices, name)
	delete(r.traitTimes, name)

	r.lock.Unlock()

	r.notify(Change{Resource: name, Kind: ChangeDeleted})
}

// SetRelation records that the named device now belongs to the parent
// structure or room, replacing any existing relation with the same parent.
// Trait data is untouched.
func (r *Registry) SetRelation(name string, parent string, displayName string) error {
	r.lock.Lock()

	d, found := r.devices[name]
	if !found {
		r.lock.Unlock()
		return fmt.Errorf("device %s: %w", name, ErrNotFound)
	}

	relation := ParentRelation{Parent: parent, DisplayName: displayName}
	replaced := false

	for i, existing := range d.Relations {
		if existing.Parent == parent {
			d.Relations[i] = relation
			replaced = true
			break
		}
	}

	if !replaced {
		d.Relations = append(d.Relations, relation)
	}

	r.lock.Unlock()

	r.notify(Change{Resource: name, Kind: ChangeRelation})

	return nil
}

// DeleteRelation removes the device's relation with the given parent, if one
// exists.
func (r *Registry) DeleteRelation(name string, parent string) error {
	r.lock.Lock()

	d, found := r.devices[name]
	if !found {
		r.lock.Unlock()
		return fmt.Errorf("device %s: %w", name, ErrNotFound)
	}

	var remaining []ParentRelation

	for _, existing := range d.Relations {
		if existing.Parent != parent {
			remaining = append(remaining, existing)
		}
	}

	if len(remaining) == len(d.Relations) {
		r.lock.Unlock()
		return nil
	}

	d.Relations = remaining

	r.lock.Unlock()

	r.notify(Change{Resource: name, Kind: ChangeRelation})

	return nil
}

// StructureDisplayName resolves a structure resource name to its display
// name, returning "Unknown" for structures the registry does not know.
func (r *Registry) StructureDisplayName(name string) string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if s, found := r.structures[name]; found {
		return s.DisplayName()
	}

	return "Unknown"
}

// Subscribe registers an observer invoked synchronously, in subscription
// order, after every successful mutation. The returned function unregisters
// it.
func (r *Registry) Subscribe(o Observer) func() {
	entry := &registeredObserver{fn: o}

	r.observerLock.Lock()
	r.observers = append(r.observers, entry)
	r.observerLock.Unlock()

	return func() {
		r.observerLock.Lock()
		defer r.observerLock.Unlock()

		for i, existing := range r.observers {
			if existing == entry {
				r.observers = append(r.observers[:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) notify(c Change) {
	r.observerLock.Lock()
	observers := append([]*registeredObserver(nil), r.observers...)
	r.observerLock.Unlock()

	for _, o := range observers {
		r.invoke(o, c)
	}
}

// invoke isolates a panicking observer so the remaining observers still see
// the change.
func (r *Registry) invoke(o *registeredObserver, c Change) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.LogError(context.Background(), "Observer panicked handling change notification.",
				logwrap.Datum("resource", c.Resource), logwrap.Datum("kind", string(c.Kind)),
				logwrap.Datum("panic", fmt.Sprint(p)))
		}
	}()

	o.fn(c)
}
