package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
	"github.com/enduroplan/fueltrace-service-go/pkg/relay"
)

// handlePostTelemetry is the HTTP fallback for providers that cannot
// publish over the message broker. Ticks for sessions living on another
// instance are rejected, the comparator only runs where the session was
// registered.
func (s *apiServer) handlePostTelemetry(w http.ResponseWriter, r *http.Request) {
	spd, ok := s.localSessionAccess(w, r, permission.PermissionPostTelemetry)
	if !ok {
		return
	}
	var tick model.TelemetryTick
	if err := decodeJSON(r, &tick); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	spd.ProcessTick(&tick)
	w.WriteHeader(http.StatusAccepted)
}

func (s *apiServer) handleLastDelta(w http.ResponseWriter, r *http.Request) {
	d, err := s.relay.LastDelta(chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, relay.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, err)
		} else {
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}
	if d == nil {
		// session is live but no tick was processed yet
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *apiServer) handleTraceSnapshot(w http.ResponseWriter, r *http.Request) {
	spd, err := s.lookup.GetSession(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, spd.Processor.TraceSnapshot())
}
