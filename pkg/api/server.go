package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
	"github.com/enduroplan/fueltrace-service-go/pkg/processing/fuel"
	"github.com/enduroplan/fueltrace-service-go/pkg/relay"
	"github.com/enduroplan/fueltrace-service-go/pkg/service"
	"github.com/enduroplan/fueltrace-service-go/pkg/session"
)

const (
	// allowed provider telemetry requests per client per minute
	DEFAULT_TELEMETRY_LIMIT = 600
)

// CurveSource delivers ideal laps for comparator sessions and drops
// cached entries when a reload is requested.
type CurveSource interface {
	fuel.Source
	Refresh(ctx context.Context, key model.FuelCurveKey)
}

func NewServer(opts ...Option) *apiServer {
	ret := &apiServer{
		telemetryLimit: DEFAULT_TELEMETRY_LIMIT,
		log:            log.Default().Named("api"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("fts")
	}
	return ret
}

type Option func(*apiServer)

func WithSessionLookup(lookup *session.SessionLookup) Option {
	return func(srv *apiServer) {
		srv.lookup = lookup
	}
}

func WithRelay(arg relay.DataRelay) Option {
	return func(srv *apiServer) {
		srv.relay = arg
	}
}

// WithCurveSource sets the source used by comparator sessions.
func WithCurveSource(arg CurveSource) Option {
	return func(srv *apiServer) {
		srv.source = arg
	}
}

// WithCurveService wires the persistent curve store. It also serves as
// the session curve source unless one was set explicitly.
func WithCurveService(arg *service.CurveService) Option {
	return func(srv *apiServer) {
		srv.curves = arg
		if srv.source == nil {
			srv.source = arg
		}
	}
}

func WithTrackService(arg *service.TrackService) Option {
	return func(srv *apiServer) {
		srv.tracks = arg
	}
}

func WithAdminService(arg *service.AdminService) Option {
	return func(srv *apiServer) {
		srv.admin = arg
	}
}

func WithProviderService(arg *service.ProviderService) Option {
	return func(srv *apiServer) {
		srv.providers = arg
	}
}

func WithPermissionEvaluator(pe permission.PermissionEvaluator) Option {
	return func(srv *apiServer) {
		srv.pe = pe
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(srv *apiServer) {
		srv.tracer = tracer
	}
}

// WithAuthMiddleware installs the middleware resolving api-token headers.
func WithAuthMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(srv *apiServer) {
		srv.authMW = mw
	}
}

// WithTelemetryLimit caps telemetry posts per client IP per minute.
func WithTelemetryLimit(requestsPerMinute int) Option {
	return func(srv *apiServer) {
		if requestsPerMinute > 0 {
			srv.telemetryLimit = requestsPerMinute
		}
	}
}

func WithDebugWire(arg bool) Option {
	return func(srv *apiServer) {
		srv.debugWire = arg
	}
}

type apiServer struct {
	lookup    *session.SessionLookup
	relay     relay.DataRelay
	source    CurveSource
	curves    *service.CurveService
	tracks    *service.TrackService
	admin     *service.AdminService
	providers *service.ProviderService
	pe        permission.PermissionEvaluator

	authMW         func(http.Handler) http.Handler
	telemetryLimit int
	debugWire      bool // if true, debug events affecting "wire" actions (send/receive)
	tracer         trace.Tracer
	log            *log.Logger
}

// Handler assembles the route tree.
//
//nolint:funlen // route table
func (s *apiServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.traceRequests)
	if s.authMW != nil {
		r.Use(s.authMW)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)

		r.Route("/tracks", func(r chi.Router) {
			r.Get("/", s.handleGetTracks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTrack)
				r.Put("/", s.handleUpdateTrack)
				r.Delete("/", s.handleDeleteTrack)
			})
		})

		r.Route("/curves", func(r chi.Router) {
			r.Get("/", s.handleGetCurveSummaries)
			r.Get("/latest", s.handleGetLatestCurve)
			r.With(s.requireClientVersion).Post("/", s.handleSaveCurve)
			r.Delete("/", s.handleDeleteCurvesByKey)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCurve)
				r.Delete("/", s.handleDeleteCurve)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleGetSessions)
			r.With(s.requireClientVersion).Post("/", s.handleRegisterSession)
			r.Delete("/", s.handleUnregisterAllSessions)
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleUnregisterSession)
				r.Post("/reset", s.handleResetSession)
				r.Post("/curve", s.handleReloadCurve)
				r.With(
					s.requireClientVersion,
					httprate.LimitByIP(s.telemetryLimit, time.Minute),
				).Post("/telemetry", s.handlePostTelemetry)
				r.Get("/delta", s.handleLastDelta)
				r.Get("/trace", s.handleTraceSnapshot)
				r.Get("/live", s.handleLiveDeltas)
			})
		})

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleGetProviders)
			r.Post("/", s.handleCreateProvider)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", s.handleSetProviderActive)
				r.Delete("/", s.handleDeleteProvider)
			})
		})
	})
	return r
}
