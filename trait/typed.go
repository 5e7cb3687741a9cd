package trait

import "time"

// Typed views over well known traits. Each accessor returns the decoded trait
// and whether the trait was present in the set; fields the payload omitted
// are left at their zero value.

type ConnectivityTrait struct {
	Status string
}

func (s Set) Connectivity() (ConnectivityTrait, bool) {
	f, found := s[Connectivity]
	return ConnectivityTrait{Status: str(f, "status")}, found
}

type InfoTrait struct {
	CustomName string
}

func (s Set) Info() (InfoTrait, bool) {
	f, found := s[Info]
	return InfoTrait{CustomName: str(f, "customName")}, found
}

type HumidityTrait struct {
	AmbientHumidityPercent float64
}

func (s Set) Humidity() (HumidityTrait, bool) {
	f, found := s[Humidity]
	return HumidityTrait{AmbientHumidityPercent: num(f, "ambientHumidityPercent")}, found
}

type TemperatureTrait struct {
	AmbientTemperatureCelsius float64
}

func (s Set) Temperature() (TemperatureTrait, bool) {
	f, found := s[Temperature]
	return TemperatureTrait{AmbientTemperatureCelsius: num(f, "ambientTemperatureCelsius")}, found
}

type FanTrait struct {
	TimerMode    string
	TimerTimeout time.Time
}

func (s Set) Fan() (FanTrait, bool) {
	f, found := s[Fan]
	return FanTrait{
		TimerMode:    str(f, "timerMode"),
		TimerTimeout: timestamp(f, "timerTimeout"),
	}, found
}

type ThermostatModeTrait struct {
	Mode           string
	AvailableModes []string
}

func (s Set) ThermostatMode() (ThermostatModeTrait, bool) {
	f, found := s[ThermostatMode]
	return ThermostatModeTrait{
		Mode:           str(f, "mode"),
		AvailableModes: strs(f, "availableModes"),
	}, found
}

type ThermostatEcoTrait struct {
	Mode           string
	AvailableModes []string
	HeatCelsius    float64
	CoolCelsius    float64
}

func (s Set) ThermostatEco() (ThermostatEcoTrait, bool) {
	f, found := s[ThermostatEco]
	return ThermostatEcoTrait{
		Mode:           str(f, "mode"),
		AvailableModes: strs(f, "availableModes"),
		HeatCelsius:    num(f, "heatCelsius"),
		CoolCelsius:    num(f, "coolCelsius"),
	}, found
}

type ThermostatHvacTrait struct {
	Status string
}

func (s Set) ThermostatHvac() (ThermostatHvacTrait, bool) {
	f, found := s[ThermostatHvac]
	return ThermostatHvacTrait{Status: str(f, "status")}, found
}

type ThermostatTemperatureSetpointTrait struct {
	HeatCelsius float64
	CoolCelsius float64
}

func (s Set) ThermostatTemperatureSetpoint() (ThermostatTemperatureSetpointTrait, bool) {
	f, found := s[ThermostatTemperatureSetpoint]
	return ThermostatTemperatureSetpointTrait{
		HeatCelsius: num(f, "heatCelsius"),
		CoolCelsius: num(f, "coolCelsius"),
	}, found
}

type CameraLiveStreamTrait struct {
	VideoCodecs        []string
	AudioCodecs        []string
	SupportedProtocols []string
}

func (s Set) CameraLiveStream() (CameraLiveStreamTrait, bool) {
	f, found := s[CameraLiveStream]
	return CameraLiveStreamTrait{
		VideoCodecs:        strs(f, "videoCodecs"),
		AudioCodecs:        strs(f, "audioCodecs"),
		SupportedProtocols: strs(f, "supportedProtocols"),
	}, found
}

type StructureInfoTrait struct {
	CustomName string
}

func (s Set) StructureInfo() (StructureInfoTrait, bool) {
	f, found := s[StructureInfo]
	return StructureInfoTrait{CustomName: str(f, "customName")}, found
}

type RoomInfoTrait struct {
	CustomName string
}

func (s Set) RoomInfo() (RoomInfoTrait, bool) {
	f, found := s[RoomInfo]
	return RoomInfoTrait{CustomName: str(f, "customName")}, found
}

func str(f Fields, key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}

	return ""
}

func num(f Fields, key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}

	return 0
}

func strs(f Fields, key string) []string {
	vs, ok := f[key].([]any)
	if !ok {
		return nil
	}

	var result []string

	for _, v := range vs {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}

	return result
}

func timestamp(f Fields, key string) time.Time {
	v, ok := f[key].(string)
	if !ok {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}

	return t
}
