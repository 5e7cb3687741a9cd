package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/willowbee/nestsdm/state"
)

type deviceController struct {
	registry *state.Registry
	logger   logwrap.Logger
}

func (d *deviceController) listDevices(w http.ResponseWriter, r *http.Request) {
	apiDevices := map[string]state.Device{}

	filters := deviceFilters(r)

	for _, device := range d.registry.Devices(filters...) {
		apiDevices[device.Name] = device
	}

	writeJSON(w, d.logger, apiDevices)
}

func (d *deviceController) getDevice(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	device, err := d.registry.Device(id)
	if errors.Is(err, state.ErrNotFound) {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, d.logger, device)
}

func deviceFilters(r *http.Request) []state.DeviceFilter {
	var filters []state.DeviceFilter

	if deviceType := r.URL.Query().Get("type"); deviceType != "" {
		filters = append(filters, state.TypeFilter(state.DeviceType(deviceType)))
	}

	return filters
}

type structureController struct {
	registry *state.Registry
	logger   logwrap.Logger
}

func (s *structureController) listStructures(w http.ResponseWriter, r *http.Request) {
	apiStructures := map[string]state.Structure{}

	for _, structure := range s.registry.Structures() {
		apiStructures[structure.Name] = structure
	}

	writeJSON(w, s.logger, apiStructures)
}

func (s *structureController) getStructure(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	structure, err := s.registry.Structure(id)
	if errors.Is(err, state.ErrNotFound) {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, s.logger, structure)
}

func writeJSON(w http.ResponseWriter, l logwrap.Logger, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.LogError(context.Background(), "Failed to marshal API response.", logwrap.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Add("content-type", "application/json")
	w.Write(data)
}
