package api

import (
	"context"
	"fmt"
)

// Device command identifiers.
const (
	CommandThermostatSetMode = "sdm.devices.commands.ThermostatMode.SetMode"
	CommandThermostatEcoMode = "sdm.devices.commands.ThermostatEco.SetMode"
	CommandSetpointSetHeat   = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetHeat"
	CommandSetpointSetCool   = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetCool"
	CommandSetpointSetRange  = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetRange"
	CommandFanSetTimer       = "sdm.devices.commands.Fan.SetTimer"
)

// SetThermostatMode changes the thermostat mode, e.g. HEAT, COOL, HEATCOOL,
// OFF.
func (c *Client) SetThermostatMode(ctx context.Context, deviceName string, mode string) error {
	return c.ExecuteCommand(ctx, deviceName, CommandThermostatSetMode, map[string]any{
		"mode": mode,
	})
}

// SetEcoMode changes the thermostat Eco mode, e.g. MANUAL_ECO or OFF.
func (c *Client) SetEcoMode(ctx context.Context, deviceName string, mode string) error {
	return c.ExecuteCommand(ctx, deviceName, CommandThermostatEcoMode, map[string]any{
		"mode": mode,
	})
}

// SetHeat changes the heating setpoint. Valid while the thermostat is in HEAT
// mode.
func (c *Client) SetHeat(ctx context.Context, deviceName string, heatCelsius float64) error {
	return c.ExecuteCommand(ctx, deviceName, CommandSetpointSetHeat, map[string]any{
		"heatCelsius": heatCelsius,
	})
}

// SetCool changes the cooling setpoint. Valid while the thermostat is in COOL
// mode.
func (c *Client) SetCool(ctx context.Context, deviceName string, coolCelsius float64) error {
	return c.ExecuteCommand(ctx, deviceName, CommandSetpointSetCool, map[string]any{
		"coolCelsius": coolCelsius,
	})
}

// SetRange changes both setpoints. Valid while the thermostat is in HEATCOOL
// mode.
func (c *Client) SetRange(ctx context.Context, deviceName string, heatCelsius float64, coolCelsius float64) error {
	return c.ExecuteCommand(ctx, deviceName, CommandSetpointSetRange, map[string]any{
		"heatCelsius": heatCelsius,
		"coolCelsius": coolCelsius,
	})
}

// SetFanTimer turns the fan timer on or off, with an optional duration in
// seconds.
func (c *Client) SetFanTimer(ctx context.Context, deviceName string, timerMode string, durationSeconds int) error {
	params := map[string]any{
		"timerMode": timerMode,
	}

	if durationSeconds > 0 {
		params["duration"] = fmt.Sprintf("%ds", durationSeconds)
	}

	return c.ExecuteCommand(ctx, deviceName, CommandFanSetTimer, params)
}
