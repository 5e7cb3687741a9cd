package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shimmeringbee/logwrap"
	"github.com/willowbee/nestsdm/state"
)

// DefaultSeenCapacity bounds the duplicate-suppression window. The feed
// redelivers within a short horizon, so a modest window is sufficient.
const DefaultSeenCapacity = 512

// Applier translates decoded event messages into registry mutations. Delivery
// is at-least-once and unordered across resources, so application is
// idempotent per event id and tolerant of out-of-order creates.
type Applier struct {
	registry *state.Registry
	logger   logwrap.Logger

	lock sync.Mutex
	seen *seenSet
}

func NewApplier(registry *state.Registry, l logwrap.Logger) *Applier {
	return &Applier{
		registry: registry,
		logger:   l,
		seen:     newSeenSet(DefaultSeenCapacity),
	}
}

// Apply applies a message to the registry. Redelivered event ids are dropped
// without mutation. The id is recorded as seen only once application
// succeeds, so a failed apply can be retried.
func (a *Applier) Apply(ctx context.Context, m Message) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if m.ID != "" && a.seen.Contains(m.ID) {
		a.logger.LogDebug(ctx, "Dropping duplicate event.", logwrap.Datum("eventId", m.ID))
		return nil
	}

	if err := a.dispatch(ctx, m); err != nil {
		return err
	}

	if m.ID != "" {
		a.seen.Add(m.ID)
	}

	return nil
}

func (a *Applier) dispatch(ctx context.Context, m Message) error {
	switch m.Type {
	case TypeResourceCreated:
		return a.applyCreate(ctx, m)
	case TypeResourceUpdated:
		return a.applyUpdate(m)
	case TypeResourceDeleted:
		a.registry.ApplyDelete(m.Resource)
		return nil
	case TypeRelationUpdated:
		return a.applyRelation(ctx, m)
	default:
		return fmt.Errorf("unhandled event type '%s': %w", m.Type, ErrMalformedEvent)
	}
}

func (a *Applier) applyCreate(ctx context.Context, m Message) error {
	err := a.registry.ApplyCreate(m.Resource, m.DeviceType, m.Traits)

	// The feed can redeliver or reorder a create after the resource is
	// already known; degrade to a trait merge rather than failing.
	if errors.Is(err, state.ErrConflict) {
		a.logger.LogDebug(ctx, "Create for known resource, applying as update.",
			logwrap.Datum("resource", m.Resource))

		_, err = a.registry.ApplyUpdate(m.Resource, m.Traits, m.Timestamp)
	}

	return err
}

func (a *Applier) applyUpdate(m Message) error {
	_, err := a.registry.ApplyUpdate(m.Resource, m.Traits, m.Timestamp)

	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("update for unknown resource %s: %w", m.Resource, ErrStaleState)
	}

	return err
}

func (a *Applier) applyRelation(ctx context.Context, m Message) error {
	var err error

	switch m.Relation.Type {
	case RelationDeleted:
		err = a.registry.DeleteRelation(m.Relation.Object, m.Relation.Subject)
	case RelationCreated, RelationUpdated:
		displayName := a.registry.StructureDisplayName(m.Relation.Subject)
		err = a.registry.SetRelation(m.Relation.Object, m.Relation.Subject, displayName)
	}

	// Relation updates for untracked devices are ignored; the next re-sync
	// brings the relation in with the device itself.
	if errors.Is(err, state.ErrNotFound) {
		a.logger.LogDebug(ctx, "Relation update for unknown resource, ignoring.",
			logwrap.Datum("resource", m.Relation.Object))
		return nil
	}

	return err
}

// IsInvalidThermostatUpdate reports whether the message carries the known-bad
// thermostat payload that lists OFF as the only available mode. The API emits
// these sporadically; callers should discard the message and refresh from
// REST instead of applying it.
func IsInvalidThermostatUpdate(m Message) bool {
	modes, found := m.Traits.ThermostatMode()
	if !found {
		return false
	}

	return len(modes.AvailableModes) == 1 && modes.AvailableModes[0] == "OFF"
}
