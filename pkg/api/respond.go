package api

import (
	"encoding/json"
	"net/http"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
)

type (
	ErrorResponse struct {
		Error string `json:"error"`
	}

	// DeleteResponse reports how many rows a delete removed.
	DeleteResponse struct {
		Deleted int `json:"deleted"`
	}

	HealthResponse struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}

	VersionResponse struct {
		ServerVersion         string `json:"serverVersion"`
		RequiredClientVersion string `json:"requiredClientVersion"`
		ProvidedClientVersion string `json:"providedClientVersion,omitempty"`
		ClientCompatible      bool   `json:"clientCompatible"`
	}

	// RegisterSessionResponse carries the registered session along with
	// the outcome of the initial curve load. CurveState is empty when an
	// already running session was returned.
	RegisterSessionResponse struct {
		Session    *model.SessionInfo `json:"session"`
		CurveState string             `json:"curveState,omitempty"`
	}

	CurveStateResponse struct {
		CurveState string `json:"curveState"`
	}
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("error writing response", log.ErrorField(err))
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, &ErrorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
