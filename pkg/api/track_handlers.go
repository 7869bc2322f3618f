package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
)

func (s *apiServer) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	ret, err := s.tracks.GetTracks(r.Context())
	if err != nil {
		s.log.Error("error loading tracks", log.ErrorField(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if ret == nil {
		ret = []*model.DbTrack{}
	}
	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := s.tracks.GetTrack(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusNotFound, err)
		} else {
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *apiServer) handleUpdateTrack(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionUpdateTrack) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var info model.TrackInfo
	if err := decodeJSON(r, &info); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	entry := &model.DbTrack{ID: id, Data: info}
	if err := s.tracks.UpdateTrack(r.Context(), entry); err != nil {
		s.log.Error("error updating track",
			log.Int("id", id), log.ErrorField(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// handleDeleteTrack removes a track including the curves recorded on it.
func (s *apiServer) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionDeleteTrack) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.admin.DeleteTrack(r.Context(), id); err != nil {
		s.log.Error("error deleting track",
			log.Int("id", id), log.ErrorField(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
