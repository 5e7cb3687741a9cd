package state

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/stretchr/testify/assert"
	"github.com/willowbee/nestsdm/trait"
)

func testLogger() logwrap.Logger {
	return logwrap.New(golog.Wrap(log.New(io.Discard, "", 0)))
}

func TestRegistry_Load(t *testing.T) {
	t.Run("loads a snapshot of devices and structures", func(t *testing.T) {
		r := NewRegistry(testLogger())

		err := r.Load([]Device{
			{Name: "enterprises/p/devices/d1", Type: DeviceTypeThermostat},
			{Name: "enterprises/p/devices/d2", Type: DeviceTypeCamera},
		}, []Structure{
			{Name: "enterprises/p/structures/s1"},
		})

		assert.NoError(t, err)
		assert.Len(t, r.Devices(), 2)
		assert.Len(t, r.Structures(), 1)
	})

	t.Run("errors if the snapshot contains duplicate resource names", func(t *testing.T) {
		r := NewRegistry(testLogger())

		err := r.Load([]Device{
			{Name: "enterprises/p/devices/d1"},
			{Name: "enterprises/p/devices/d1"},
		}, nil)

		assert.True(t, errors.Is(err, ErrSync))
		assert.Empty(t, r.Devices())
	})

	t.Run("replaces previously loaded state wholesale", func(t *testing.T) {
		r := NewRegistry(testLogger())

		assert.NoError(t, r.Load([]Device{{Name: "enterprises/p/devices/d1"}}, nil))
		assert.NoError(t, r.Load([]Device{{Name: "enterprises/p/devices/d2"}}, nil))

		_, err := r.Device("enterprises/p/devices/d1")
		assert.True(t, errors.Is(err, ErrNotFound))

		_, err = r.Device("enterprises/p/devices/d2")
		assert.NoError(t, err)
	})
}

func TestRegistry_DevicesAndStructures(t *testing.T) {
	t.Run("Device returns a copy whose mutation does not affect the registry", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, trait.Set{
			trait.Temperature: {"ambientTemperatureCelsius": 20.0},
		}))

		d, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)

		d.Traits[trait.Temperature]["ambientTemperatureCelsius"] = 99.0

		unchanged, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)
		assert.Equal(t, 20.0, unchanged.Traits[trait.Temperature]["ambientTemperatureCelsius"])
	})

	t.Run("Device errors if the resource is unknown", func(t *testing.T) {
		r := NewRegistry(testLogger())

		_, err := r.Device("enterprises/p/devices/missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Devices filters by type and sorts by name", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.Load([]Device{
			{Name: "enterprises/p/devices/d2", Type: DeviceTypeThermostat},
			{Name: "enterprises/p/devices/d1", Type: DeviceTypeThermostat},
			{Name: "enterprises/p/devices/d3", Type: DeviceTypeCamera},
		}, nil))

		thermostats := r.Devices(TypeFilter(DeviceTypeThermostat))
		assert.Len(t, thermostats, 2)
		assert.Equal(t, "enterprises/p/devices/d1", thermostats[0].Name)
		assert.Equal(t, "enterprises/p/devices/d2", thermostats[1].Name)
	})

	t.Run("StructureDisplayName resolves custom names with an Unknown fallback", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.Load(nil, []Structure{
			{Name: "enterprises/p/structures/s1", Traits: trait.Set{
				trait.StructureInfo: {"customName": "Home"},
			}},
			{Name: "enterprises/p/structures/s2"},
		}))

		assert.Equal(t, "Home", r.StructureDisplayName("enterprises/p/structures/s1"))
		assert.Equal(t, "Unknown", r.StructureDisplayName("enterprises/p/structures/s2"))
		assert.Equal(t, "Unknown", r.StructureDisplayName("enterprises/p/structures/missing"))
	})
}

func TestRegistry_ApplyCreate(t *testing.T) {
	t.Run("inserts a new device and notifies observers", func(t *testing.T) {
		r := NewRegistry(testLogger())

		var changes []Change
		r.Subscribe(func(c Change) {
			changes = append(changes, c)
		})

		err := r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil)
		assert.NoError(t, err)

		assert.Equal(t, []Change{{Resource: "enterprises/p/devices/d1", Kind: ChangeCreated}}, changes)
	})

	t.Run("errors with ErrConflict if the resource already exists", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))

		err := r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil)
		assert.True(t, errors.Is(err, ErrConflict))
	})
}

func TestRegistry_ApplyUpdate(t *testing.T) {
	t.Run("merges only the fields present in the delta", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, trait.Set{
			trait.Temperature:  {"ambientCelsius": 20.0},
			trait.Connectivity: {"status": "ONLINE"},
		}))

		changed, err := r.ApplyUpdate("enterprises/p/devices/d1", trait.Set{
			trait.Temperature: {"ambientCelsius": 22.0},
		}, time.Time{})
		assert.NoError(t, err)
		assert.Equal(t, []string{trait.Temperature}, changed)

		d, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)
		assert.Equal(t, 22.0, d.Traits[trait.Temperature]["ambientCelsius"])
		assert.Equal(t, "ONLINE", d.Traits[trait.Connectivity]["status"])
	})

	t.Run("errors with ErrNotFound and leaves state unchanged for unknown resources", func(t *testing.T) {
		r := NewRegistry(testLogger())

		var notified int
		r.Subscribe(func(Change) {
			notified++
		})

		_, err := r.ApplyUpdate("enterprises/p/devices/missing", trait.Set{
			trait.Temperature: {"ambientCelsius": 22.0},
		}, time.Time{})

		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Zero(t, notified)
		assert.Empty(t, r.Devices())
	})

	t.Run("notifies observers with the names of the changed traits", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))

		var changes []Change
		r.Subscribe(func(c Change) {
			changes = append(changes, c)
		})

		_, err := r.ApplyUpdate("enterprises/p/devices/d1", trait.Set{
			trait.Temperature: {"ambientCelsius": 22.0},
			trait.Humidity:    {"ambientHumidityPercent": 40.0},
		}, time.Time{})
		assert.NoError(t, err)

		assert.Len(t, changes, 1)
		assert.Equal(t, ChangeUpdated, changes[0].Kind)
		assert.Equal(t, []string{trait.Humidity, trait.Temperature}, changes[0].Traits)
	})

	t.Run("discards deltas older than the last applied update for the trait", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))

		now := time.Now()

		_, err := r.ApplyUpdate("enterprises/p/devices/d1", trait.Set{
			trait.Temperature: {"ambientCelsius": 22.0},
		}, now)
		assert.NoError(t, err)

		changed, err := r.ApplyUpdate("enterprises/p/devices/d1", trait.Set{
			trait.Temperature: {"ambientCelsius": 19.0},
		}, now.Add(-time.Minute))
		assert.NoError(t, err)
		assert.Empty(t, changed)

		d, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)
		assert.Equal(t, 22.0, d.Traits[trait.Temperature]["ambientCelsius"])
	})
}

func TestRegistry_ApplyDelete(t *testing.T) {
	t.Run("removes the device and notifies observers", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))

		var changes []Change
		r.Subscribe(func(c Change) {
			changes = append(changes, c)
		})

		r.ApplyDelete("enterprises/p/devices/d1")

		_, err := r.Device("enterprises/p/devices/d1")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, []Change{{Resource: "enterprises/p/devices/d1", Kind: ChangeDeleted}}, changes)
	})

	t.Run("deleting an absent resource is a silent no-op", func(t *testing.T) {
		r := NewRegistry(testLogger())

		var notified int
		r.Subscribe(func(Change) {
			notified++
		})

		r.ApplyDelete("enterprises/p/devices/missing")

		assert.Zero(t, notified)
	})
}

func TestRegistry_Relations(t *testing.T) {
	t.Run("SetRelation replaces an existing relation with the same parent", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))

		assert.NoError(t, r.SetRelation("enterprises/p/devices/d1", "enterprises/p/structures/s1", "Home"))
		assert.NoError(t, r.SetRelation("enterprises/p/devices/d1", "enterprises/p/structures/s1", "Office"))

		d, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)
		assert.Equal(t, []ParentRelation{{Parent: "enterprises/p/structures/s1", DisplayName: "Office"}}, d.Relations)
	})

	t.Run("DeleteRelation removes only the named parent", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))
		assert.NoError(t, r.SetRelation("enterprises/p/devices/d1", "enterprises/p/structures/s1", "Home"))
		assert.NoError(t, r.SetRelation("enterprises/p/devices/d1", "enterprises/p/structures/s1/rooms/r1", "Hallway"))

		assert.NoError(t, r.DeleteRelation("enterprises/p/devices/d1", "enterprises/p/structures/s1"))

		d, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)
		assert.Equal(t, []ParentRelation{{Parent: "enterprises/p/structures/s1/rooms/r1", DisplayName: "Hallway"}}, d.Relations)
	})

	t.Run("relation changes do not touch trait data", func(t *testing.T) {
		r := NewRegistry(testLogger())
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, trait.Set{
			trait.Temperature: {"ambientCelsius": 20.0},
		}))

		assert.NoError(t, r.SetRelation("enterprises/p/devices/d1", "enterprises/p/structures/s1", "Home"))

		d, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)
		assert.Equal(t, 20.0, d.Traits[trait.Temperature]["ambientCelsius"])
	})
}

func TestRegistry_Observers(t *testing.T) {
	t.Run("observers are notified in subscription order", func(t *testing.T) {
		r := NewRegistry(testLogger())

		var order []string
		r.Subscribe(func(Change) {
			order = append(order, "first")
		})
		r.Subscribe(func(Change) {
			order = append(order, "second")
		})

		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))

		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("a panicking observer does not block remaining observers", func(t *testing.T) {
		r := NewRegistry(testLogger())

		var notified bool
		r.Subscribe(func(Change) {
			panic("observer failure")
		})
		r.Subscribe(func(Change) {
			notified = true
		})

		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))

		assert.True(t, notified)

		// Registry state survives the panic.
		_, err := r.Device("enterprises/p/devices/d1")
		assert.NoError(t, err)
	})

	t.Run("the returned function unsubscribes the observer", func(t *testing.T) {
		r := NewRegistry(testLogger())

		var notified int
		unsubscribe := r.Subscribe(func(Change) {
			notified++
		})

		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d1", DeviceTypeThermostat, nil))
		unsubscribe()
		assert.NoError(t, r.ApplyCreate("enterprises/p/devices/d2", DeviceTypeThermostat, nil))

		assert.Equal(t, 1, notified)
	})
}
