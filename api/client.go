package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shimmeringbee/logwrap"
	"github.com/tidwall/gjson"
	"github.com/willowbee/nestsdm/state"
	"github.com/willowbee/nestsdm/trait"
)

// DefaultBaseURL is the production SDM endpoint.
const DefaultBaseURL = "https://smartdevicemanagement.googleapis.com/v1"

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the SDM REST API for one project. The supplied http.Client
// is expected to attach OAuth2 credentials to every request.
type Client struct {
	http      *resty.Client
	projectID string
	logger    logwrap.Logger
}

func NewClient(hc *http.Client, baseURL string, projectID string, l logwrap.Logger) *Client {
	rc := resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:      rc,
		projectID: projectID,
		logger:    l,
	}
}

type deviceJSON struct {
	Name            string                 `json:"name"`
	Type            string                 `json:"type"`
	Traits          map[string]trait.Fields `json:"traits"`
	ParentRelations []struct {
		Parent      string `json:"parent"`
		DisplayName string `json:"displayName"`
	} `json:"parentRelations"`
}

type devicesResponse struct {
	Devices []deviceJSON `json:"devices"`
}

type structureJSON struct {
	Name   string                  `json:"name"`
	Traits map[string]trait.Fields `json:"traits"`
}

type structuresResponse struct {
	Structures []structureJSON `json:"structures"`
}

func (c *Client) devicesURL() string {
	return fmt.Sprintf("/enterprises/%s/devices", c.projectID)
}

func (c *Client) structuresURL() string {
	return fmt.Sprintf("/enterprises/%s/structures", c.projectID)
}

// Devices fetches the project's full device list.
func (c *Client) Devices(ctx context.Context) ([]state.Device, error) {
	var out devicesResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.devicesURL())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch devices: %w", err)
	}

	if resp.IsError() {
		return nil, responseError(resp)
	}

	var devices []state.Device

	for _, d := range out.Devices {
		devices = append(devices, convertDevice(d))
	}

	c.logger.LogDebug(ctx, "Fetched devices.", logwrap.Datum("count", len(devices)))

	return devices, nil
}

// Device fetches a single device by resource name.
func (c *Client) Device(ctx context.Context, name string) (state.Device, error) {
	var out deviceJSON

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/" + name)
	if err != nil {
		return state.Device{}, fmt.Errorf("failed to fetch device %s: %w", name, err)
	}

	if resp.IsError() {
		return state.Device{}, responseError(resp)
	}

	return convertDevice(out), nil
}

// Structures fetches the project's structures. Rooms are fetched per
// structure by the API but arrive through the same trait model.
func (c *Client) Structures(ctx context.Context) ([]state.Structure, error) {
	var out structuresResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.structuresURL())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch structures: %w", err)
	}

	if resp.IsError() {
		return nil, responseError(resp)
	}

	var structures []state.Structure

	for _, s := range out.Structures {
		structures = append(structures, state.Structure{
			Name:   s.Name,
			Traits: trait.Set(s.Traits),
		})
	}

	return structures, nil
}

// ExecuteCommand invokes a device command, e.g.
// sdm.devices.commands.ThermostatMode.SetMode.
func (c *Client) ExecuteCommand(ctx context.Context, deviceName string, command string, params map[string]any) error {
	body := map[string]any{
		"command": command,
		"params":  params,
	}

	c.logger.LogDebug(ctx, "Executing device command.",
		logwrap.Datum("device", deviceName), logwrap.Datum("command", command))

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/%s:executeCommand", deviceName))
	if err != nil {
		return fmt.Errorf("failed to execute command %s: %w", command, err)
	}

	if resp.IsError() {
		return responseError(resp)
	}

	return nil
}

func convertDevice(d deviceJSON) state.Device {
	traits := trait.Set(d.Traits)

	// Doorbells do not always report the DoorbellChime trait; every doorbell
	// has a chime, so surface it regardless.
	if state.DeviceType(d.Type) == state.DeviceTypeDoorbell && !traits.Has(trait.DoorbellChime) {
		if traits == nil {
			traits = trait.Set{}
		}

		traits[trait.DoorbellChime] = trait.Fields{}
	}

	device := state.Device{
		Name:   d.Name,
		Type:   state.DeviceType(d.Type),
		Traits: traits,
	}

	for _, relation := range d.ParentRelations {
		device.Relations = append(device.Relations, state.ParentRelation{
			Parent:      relation.Parent,
			DisplayName: relation.DisplayName,
		})
	}

	return device
}

func responseError(resp *resty.Response) error {
	message := gjson.GetBytes(resp.Body(), "error.message").String()
	if message == "" {
		message = http.StatusText(resp.StatusCode())
	}

	return &APIError{
		StatusCode: resp.StatusCode(),
		Message:    message,
	}
}
