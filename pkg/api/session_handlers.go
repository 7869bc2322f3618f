package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing/fuel"
	"github.com/enduroplan/fueltrace-service-go/pkg/service"
	"github.com/enduroplan/fueltrace-service-go/pkg/session"
)

var ErrSessionAlreadyRegistered = errors.New(
	"session already registered on another instance")

func (s *apiServer) authFrom(r *http.Request) auth.Authentication {
	if a := auth.FromContext(r.Context()); a != nil {
		return a
	}
	return auth.Anonymous()
}

//nolint:funlen // by design
func (s *apiServer) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionRegisterSession) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	var req service.RegisterSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	curveKey := model.FuelCurveKey{TrackID: req.TrackID, CarName: req.CarName}
	if !curveKey.Valid() {
		respondError(w, http.StatusBadRequest, ErrInvalidCurveKey)
		return
	}
	key := req.SessionKey
	if key == "" {
		key = uuid.New().String()
	}
	// re-registering a key on this instance returns the running session
	if spd, err := s.lookup.GetSession(key); err == nil {
		respondJSON(w, http.StatusOK, &RegisterSessionResponse{Session: spd.Session})
		return
	}
	if _, err := s.relay.GetSession(key); err == nil {
		respondError(w, http.StatusConflict, ErrSessionAlreadyRegistered)
		return
	}
	if req.TrackInfo != nil && s.tracks != nil {
		dbTrack := &model.DbTrack{ID: req.TrackID, Data: *req.TrackInfo}
		if err := s.tracks.EnsureTrack(r.Context(), dbTrack); err != nil {
			s.log.Error("error storing track data", log.ErrorField(err))
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	sess := &model.SessionInfo{
		Key:     key,
		Curve:   curveKey,
		Owner:   a.Principal().Name(),
		Created: time.Now(),
	}
	spd := s.lookup.AddSession(sess, s.source)
	outcome, err := spd.LoadCurve(r.Context())
	if err != nil {
		s.log.Warn("initial curve load failed",
			log.String("sessionKey", key),
			log.ErrorField(err))
	}
	if err := s.relay.PublishSessionRegistered(spd); err != nil {
		s.log.Error("error publishing registered session", log.ErrorField(err))
	}
	s.log.Debug("session registered", log.String("sessionKey", key))
	respondJSON(w, http.StatusCreated, &RegisterSessionResponse{
		Session:    sess,
		CurveState: outcome.String(),
	})
}

func (s *apiServer) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.relay.LiveSessions()
	if sessions == nil {
		sessions = []*model.SessionInfo{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.relay.GetSession(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *apiServer) handleUnregisterSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.validateSessionAccess(w, r, permission.PermissionUnregisterSession)
	if !ok {
		return
	}
	s.lookup.RemoveSession(sess.Key)
	if err := s.relay.PublishSessionUnregistered(sess.Key); err != nil {
		s.log.Error("error publishing unregistered session", log.ErrorField(err))
	}
	s.log.Debug("session unregistered", log.String("sessionKey", sess.Key))
	w.WriteHeader(http.StatusNoContent)
}

//nolint:whitespace // editor/linter issue
func (s *apiServer) handleUnregisterAllSessions(
	w http.ResponseWriter,
	r *http.Request,
) {
	a := s.authFrom(r)
	if !s.pe.HasPermission(a, permission.PermissionAdminUnregisterSessions) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return
	}
	removed := s.lookup.GetSessions()
	for _, sess := range removed {
		s.lookup.RemoveSession(sess.Key)
		if err := s.relay.PublishSessionUnregistered(sess.Key); err != nil {
			s.log.Error("error publishing unregistered session",
				log.ErrorField(err))
		}
	}
	respondJSON(w, http.StatusOK, removed)
}

func (s *apiServer) handleResetSession(w http.ResponseWriter, r *http.Request) {
	spd, ok := s.localSessionAccess(w, r, permission.PermissionResetSession)
	if !ok {
		return
	}
	spd.Processor.Reset()
	s.log.Debug("session reset", log.String("sessionKey", spd.Session.Key))
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleReloadCurve(w http.ResponseWriter, r *http.Request) {
	spd, ok := s.localSessionAccess(w, r, permission.PermissionReloadCurve)
	if !ok {
		return
	}
	if s.source != nil {
		// drop the cached entry so the reload hits the store
		s.source.Refresh(r.Context(), spd.Session.Curve)
	}
	outcome, err := spd.LoadCurve(r.Context())
	if outcome == fuel.OutcomeFailed {
		s.log.Error("curve reload failed",
			log.String("sessionKey", spd.Session.Key),
			log.ErrorField(err))
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondJSON(w, http.StatusOK, &CurveStateResponse{CurveState: outcome.String()})
}

// validateSessionAccess resolves the session cluster-wide and checks the
// ownership bound permission. On failure the response is already written.
//
//nolint:whitespace // editor/linter issue
func (s *apiServer) validateSessionAccess(
	w http.ResponseWriter,
	r *http.Request,
	perm permission.Permission,
) (*model.SessionInfo, bool) {
	a := s.authFrom(r)
	sess, err := s.relay.GetSession(chi.URLParam(r, "key"))
	if err != nil {
		if !s.pe.HasPermission(a, perm) {
			respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		} else {
			respondError(w, http.StatusNotFound, err)
		}
		return nil, false
	}
	if !s.pe.HasObjectPermission(a, perm, sess.Owner) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return nil, false
	}
	return sess, true
}

// localSessionAccess is the variant for operations that need the
// comparator, which only lives on the instance that registered it.
//
//nolint:whitespace // editor/linter issue
func (s *apiServer) localSessionAccess(
	w http.ResponseWriter,
	r *http.Request,
	perm permission.Permission,
) (*session.SessionProcessingData, bool) {
	a := s.authFrom(r)
	spd, err := s.lookup.GetSession(chi.URLParam(r, "key"))
	if err != nil {
		if !s.pe.HasPermission(a, perm) {
			respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		} else {
			respondError(w, http.StatusNotFound, err)
		}
		return nil, false
	}
	if !s.pe.HasObjectPermission(a, perm, spd.Session.Owner) {
		respondError(w, http.StatusForbidden, auth.ErrPermissionDenied)
		return nil, false
	}
	return spd, true
}
