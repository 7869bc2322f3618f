package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
)

var ErrProviderNameMissing = errors.New("provider name is required")

type CreateProviderRequest struct {
	Name string `json:"name"`
}

// CreateProviderResponse carries the plain API key. It is shown exactly
// once, only the hash is stored.
type CreateProviderResponse struct {
	Provider *model.DbProvider `json:"provider"`
	APIKey   string            `json:"apiKey"`
}

type SetProviderActiveRequest struct {
	Active bool `json:"active"`
}

func (s *apiServer) handleGetProviders(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionManageProviders) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	ret, err := s.providers.GetProviders(r.Context())
	if err != nil {
		s.log.Error("error loading providers", log.ErrorField(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if ret == nil {
		ret = []*model.DbProvider{}
	}
	respondJSON(w, http.StatusOK, ret)
}

func (s *apiServer) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionManageProviders) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	var req CreateProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, ErrProviderNameMissing)
		return
	}
	entry, apiKey, err := s.providers.CreateProvider(r.Context(), req.Name)
	if err != nil {
		s.log.Error("error creating provider",
			log.String("name", req.Name), log.ErrorField(err))
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("provider created", log.String("name", entry.Name))
	respondJSON(w, http.StatusCreated,
		&CreateProviderResponse{Provider: entry, APIKey: apiKey})
}

func (s *apiServer) handleSetProviderActive(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionManageProviders) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var req SetProviderActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	num, err := s.providers.SetActive(r.Context(), id, req.Active)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if num == 0 {
		respondError(w, http.StatusNotFound, errors.New("provider not found"))
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *apiServer) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionManageProviders) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	num, err := s.providers.DeleteProvider(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, &DeleteResponse{Deleted: num})
}
