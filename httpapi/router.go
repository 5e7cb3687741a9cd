package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/willowbee/nestsdm/state"
)

// ConstructRouter builds the read-only local HTTP interface over the device
// registry. A non-empty jwtSecret places the API behind bearer token
// authentication.
func ConstructRouter(registry *state.Registry, l logwrap.Logger, jwtSecret string) http.Handler {
	protected := mux.NewRouter()

	dc := deviceController{registry: registry, logger: l}
	sc := structureController{registry: registry, logger: l}

	protected.HandleFunc("/devices", dc.listDevices).Methods("GET")
	protected.HandleFunc("/devices/{identifier:.+}", dc.getDevice).Methods("GET")

	protected.HandleFunc("/structures", sc.listStructures).Methods("GET")
	protected.HandleFunc("/structures/{identifier:.+}", sc.getStructure).Methods("GET")

	if jwtSecret == "" {
		return protected
	}

	authenticator := Authenticator{Secret: []byte(jwtSecret)}
	return authenticator.AuthenticationMiddleware(protected)
}
