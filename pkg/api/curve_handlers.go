package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
	"github.com/enduroplan/fueltrace-service-go/pkg/service"
)

var ErrInvalidCurveKey = errors.New("trackId and carName are required")

func (s *apiServer) handleGetCurveSummaries(w http.ResponseWriter, r *http.Request) {
	var ret []*model.FuelCurveSummary
	var err error
	if arg := r.URL.Query().Get("trackId"); arg != "" {
		var trackID int
		if trackID, err = strconv.Atoi(arg); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		ret, err = s.curves.GetCurveSummariesByTrack(r.Context(), trackID)
	} else {
		ret, err = s.curves.GetCurveSummaries(r.Context())
	}
	if err != nil {
		s.log.Error("error loading curve summaries", log.ErrorField(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if ret == nil {
		ret = []*model.FuelCurveSummary{}
	}
	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) handleGetCurve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := s.curves.GetCurveById(r.Context(), id)
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

func (s *apiServer) handleGetLatestCurve(w http.ResponseWriter, r *http.Request) {
	key, err := curveKeyFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := s.curves.GetLatestCurve(r.Context(), key)
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

func (s *apiServer) handleSaveCurve(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionSaveCurve) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	var req service.SaveCurveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	key := model.FuelCurveKey{TrackID: req.TrackID, CarName: req.CarName}
	if !key.Valid() {
		respondError(w, http.StatusBadRequest, ErrInvalidCurveKey)
		return
	}
	if err := validateCurveData(&req.Data); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := s.curves.SaveCurve(r.Context(), &req)
	if err != nil {
		s.log.Error("error saving curve", log.ErrorField(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("curve saved",
		log.Int("trackId", entry.TrackID),
		log.String("carName", entry.CarName),
		log.String("id", entry.ID.String()))
	respondJSON(w, http.StatusCreated, entry)
}

func (s *apiServer) handleDeleteCurve(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionDeleteCurve) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	num, err := s.curves.DeleteCurveById(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, &DeleteResponse{Deleted: num})
}

func (s *apiServer) handleDeleteCurvesByKey(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionDeleteCurve) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	key, err := curveKeyFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	num, err := s.curves.DeleteCurvesByKey(r.Context(), key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, &DeleteResponse{Deleted: num})
}

func curveKeyFromQuery(r *http.Request) (model.FuelCurveKey, error) {
	trackID, err := strconv.Atoi(r.URL.Query().Get("trackId"))
	if err != nil {
		return model.FuelCurveKey{}, ErrInvalidCurveKey
	}
	key := model.FuelCurveKey{
		TrackID: trackID,
		CarName: r.URL.Query().Get("carName"),
	}
	if !key.Valid() {
		return model.FuelCurveKey{}, ErrInvalidCurveKey
	}
	return key, nil
}

func validateCurveData(data *model.FuelCurveData) error {
	for _, sample := range data.Samples {
		if sample.Pct < 0 || sample.Pct >= model.NumBuckets {
			return fmt.Errorf("sample pct %d out of range", sample.Pct)
		}
	}
	return nil
}
