package api

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/version"
)

const (
	// oldest telemetry client the live protocol still supports
	RequiredClientVersion string = "v0.3.0"

	clientVersionHeader = "x-client-version"
)

func CheckClientVersion(toCheck string) bool {
	if !strings.HasPrefix(toCheck, "v") {
		toCheck = "v" + toCheck
	}
	res := semver.Compare(toCheck, RequiredClientVersion)
	return res >= 0
}

// requireClientVersion guards the provider surface. Requests without an
// acceptable x-client-version header are rejected.
func (s *apiServer) requireClientVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(clientVersionHeader)
		if !CheckClientVersion(provided) {
			s.log.Info("rejected outdated client",
				log.String("clientVersion", provided),
				log.String("required", RequiredClientVersion))
			respondError(w, http.StatusUpgradeRequired,
				fmt.Errorf("client version %q not supported, need at least %s",
					provided, RequiredClientVersion))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &HealthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

func (s *apiServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get(clientVersionHeader)
	respondJSON(w, http.StatusOK, &VersionResponse{
		ServerVersion:         version.Version,
		RequiredClientVersion: RequiredClientVersion,
		ProvidedClientVersion: provided,
		ClientCompatible:      CheckClientVersion(provided),
	})
}
