package state

import (
	"github.com/willowbee/nestsdm/trait"
)

type DeviceType string

const (
	DeviceTypeThermostat DeviceType = "sdm.devices.types.THERMOSTAT"
	DeviceTypeCamera     DeviceType = "sdm.devices.types.CAMERA"
	DeviceTypeDoorbell   DeviceType = "sdm.devices.types.DOORBELL"
	DeviceTypeDisplay    DeviceType = "sdm.devices.types.DISPLAY"
)

// ParentRelation links a device to the structure or room containing it.
type ParentRelation struct {
	Parent      string `json:"parent"`
	DisplayName string `json:"displayName"`
}

// Device is one endpoint known to the registry, keyed by its resource name
// (enterprises/{project}/devices/{device}). The registry owns its devices;
// accessors hand out copies.
type Device struct {
	Name      string           `json:"name"`
	Type      DeviceType       `json:"type"`
	Traits    trait.Set        `json:"traits"`
	Relations []ParentRelation `json:"parentRelations,omitempty"`
}

func (d Device) copy() Device {
	result := d
	result.Traits = d.Traits.Copy()
	result.Relations = append([]ParentRelation(nil), d.Relations...)

	return result
}

// Structure is a structure or room resource, keyed by its resource name
// (enterprises/{project}/structures/{structure}).
type Structure struct {
	Name   string    `json:"name"`
	Traits trait.Set `json:"traits"`
}

func (s Structure) copy() Structure {
	result := s
	result.Traits = s.Traits.Copy()

	return result
}

// DisplayName returns the structure's custom name from its Info or RoomInfo
// trait, or "Unknown" if neither carries one.
func (s Structure) DisplayName() string {
	if info, found := s.Traits.StructureInfo(); found && info.CustomName != "" {
		return info.CustomName
	}

	if info, found := s.Traits.RoomInfo(); found && info.CustomName != "" {
		return info.CustomName
	}

	return "Unknown"
}

// DeviceFilter is a predicate used to narrow device listings.
type DeviceFilter func(Device) bool

// TypeFilter matches devices of the given type.
func TypeFilter(t DeviceType) DeviceFilter {
	return func(d Device) bool {
		return d.Type == t
	}
}
