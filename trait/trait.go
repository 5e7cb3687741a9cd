package trait

// Trait names used by devices in the SDM API.
const (
	Connectivity                  = "sdm.devices.traits.Connectivity"
	Fan                           = "sdm.devices.traits.Fan"
	Info                          = "sdm.devices.traits.Info"
	Humidity                      = "sdm.devices.traits.Humidity"
	Temperature                   = "sdm.devices.traits.Temperature"
	ThermostatEco                 = "sdm.devices.traits.ThermostatEco"
	ThermostatHvac                = "sdm.devices.traits.ThermostatHvac"
	ThermostatMode                = "sdm.devices.traits.ThermostatMode"
	ThermostatTemperatureSetpoint = "sdm.devices.traits.ThermostatTemperatureSetpoint"
	CameraImage                   = "sdm.devices.traits.CameraImage"
	CameraLiveStream              = "sdm.devices.traits.CameraLiveStream"
	CameraEventImage              = "sdm.devices.traits.CameraEventImage"
	CameraMotion                  = "sdm.devices.traits.CameraMotion"
	CameraPerson                  = "sdm.devices.traits.CameraPerson"
	CameraSound                   = "sdm.devices.traits.CameraSound"
	CameraClipPreview             = "sdm.devices.traits.CameraClipPreview"
	DoorbellChime                 = "sdm.devices.traits.DoorbellChime"
)

// Trait names used by structures and rooms.
const (
	StructureInfo = "sdm.structures.traits.Info"
	RoomInfo      = "sdm.structures.traits.RoomInfo"
)

// Fields holds the field values of a single trait, keyed by the field name
// used on the wire. Values are whatever encoding/json produced for the raw
// payload.
type Fields map[string]any

// Copy returns an independent copy of the fields.
func (f Fields) Copy() Fields {
	if f == nil {
		return nil
	}

	result := make(Fields, len(f))
	for k, v := range f {
		result[k] = v
	}

	return result
}

// Merge returns a copy of the fields with the delta's fields overlaid. Fields
// absent from the delta retain their prior values.
func (f Fields) Merge(delta Fields) Fields {
	result := f.Copy()
	if result == nil {
		result = Fields{}
	}

	for k, v := range delta {
		result[k] = v
	}

	return result
}

// Set is the open trait model for a device or structure: a mapping from trait
// name to that trait's fields. Unknown traits are carried verbatim.
type Set map[string]Fields

// Copy returns an independent copy of the set.
func (s Set) Copy() Set {
	if s == nil {
		return nil
	}

	result := make(Set, len(s))
	for name, fields := range s {
		result[name] = fields.Copy()
	}

	return result
}

// Merge returns a copy of the set with each trait in deltas merged in at
// field level, and the names of the traits that were touched. Traits not
// named in deltas are untouched.
func (s Set) Merge(deltas Set) (Set, []string) {
	result := s.Copy()
	if result == nil {
		result = Set{}
	}

	var changed []string

	for name, delta := range deltas {
		result[name] = result[name].Merge(delta)
		changed = append(changed, name)
	}

	return result, changed
}

// Names returns the trait names present in the set.
func (s Set) Names() []string {
	var names []string

	for name := range s {
		names = append(names, name)
	}

	return names
}

// Has reports whether the named trait is present, even if it has no fields.
func (s Set) Has(name string) bool {
	_, found := s[name]
	return found
}
