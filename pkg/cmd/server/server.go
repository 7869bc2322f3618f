package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/pgx-contrib/pgxtrace"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/api"
	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	"github.com/enduroplan/fueltrace-service-go/pkg/db/postgres"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/permission"
	"github.com/enduroplan/fueltrace-service-go/pkg/relay"
	"github.com/enduroplan/fueltrace-service-go/pkg/relay/local"
	natsrelay "github.com/enduroplan/fueltrace-service-go/pkg/relay/nats"
	"github.com/enduroplan/fueltrace-service-go/pkg/service"
	"github.com/enduroplan/fueltrace-service-go/pkg/session"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache"
)

var debugWire bool

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the fueltrace server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer()
		},
	}
	cmd.Flags().StringVarP(&config.APIServerAddr,
		"api-server-addr",
		"a",
		"localhost:8080",
		"HTTP API server listen address")
	cmd.Flags().StringVar(&config.TLSServerAddr,
		"tls-server-addr",
		"",
		"HTTP API server listen address (TLS)")
	cmd.Flags().StringVar(&config.TLSCertFile,
		"tls-cert-file",
		"",
		"file containing the TLS certificate")
	cmd.Flags().StringVar(&config.TLSKeyFile,
		"tls-key-file",
		"",
		"file containing the TLS private key")
	cmd.Flags().StringVar(&config.TLSCAFile,
		"tls-ca-file",
		"",
		"file containing the CA bundle used to verify client certificates")
	cmd.Flags().StringVar(&config.TraefikCerts,
		"traefik-certs",
		"",
		"file containing the traefik certificates (acme.json)")
	cmd.Flags().StringVar(&config.TraefikCertDomain,
		"traefik-cert-domain",
		"",
		"the domain to lookup within the traefik certificates")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().BoolVar(&debugWire,
		"debug-wire",
		false,
		"if true and log level is debug, the telemetry payload will be printed")
	cmd.Flags().StringVar(&config.AdminToken,
		"admin-token",
		"",
		"admin token value")
	cmd.Flags().StringVar(&config.ProviderToken,
		"provider-token",
		"",
		"static provider token value (accepted in addition to issued API keys)")
	cmd.Flags().StringVar(&config.StaleDuration,
		"stale-duration",
		"1m",
		"session is removed if no telemetry was received for this duration")
	cmd.Flags().IntVar(&config.ProviderRateLimit,
		"provider-rate-limit",
		api.DEFAULT_TELEMETRY_LIMIT,
		"allowed telemetry posts per client per minute")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

//nolint:funlen,cyclop,gocognit // by design
func startServer() error {
	var logger *log.Logger
	var sqlLogger *log.Logger
	var telemetry *config.Telemetry

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.New(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))

	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))

		sqlLogger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}

	if config.LogConfig != "" {
		cfg, err := log.LoadConfig(config.LogConfig)
		if err != nil {
			logger.Warn("could not read log config", log.ErrorField(err))
		} else if filtered, fErr := log.NewWithConfig(
			cfg,
			os.Stderr,
			config.LogFormat,
			log.WithCaller(true),
			log.AddCallerSkip(1)); fErr != nil {

			logger.Warn("could not apply log config", log.ErrorField(fErr))
		} else {
			logger = filtered
			if wErr := log.WatchConfig(ctx, config.LogConfig, logger); wErr != nil {
				logger.Warn("could not watch log config", log.ErrorField(wErr))
			}
		}
	}

	log.ResetDefault(logger)

	log.Debug("Config:",
		log.String("db", config.DB),
		log.String("nats", config.NatsURL),
		log.String("addr", config.APIServerAddr),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	pgTracer := pgxtrace.CompositeQueryTracer{
		postgres.NewMyTracer(sqlLogger, log.DebugLevel),
	}

	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(ctx); err == nil {
			pgTracer = append(pgTracer, postgres.NewOtlpTracer())
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	log.Info("Starting server")
	pool := postgres.InitWithUrl(
		config.DB,
		postgres.WithTracer(pgTracer),
	)

	staleDuration, err := time.ParseDuration(config.StaleDuration)
	if err != nil {
		staleDuration = 1 * time.Minute
	}
	log.Debug("init with stale duration", log.Duration("duration", staleDuration))

	// assigned below, before the API server accepts registrations
	var dataRelay relay.DataRelay
	lookup := session.NewSessionLookup(
		session.WithStaleDuration(staleDuration),
		session.WithEvictCallback(func(sessionKey string) {
			dataRelay.DeleteSessionCallback(sessionKey)
		}))

	if config.NatsURL != "" {
		nc, ncErr := nats.Connect(config.NatsURL,
			nats.Name("fueltrace-service"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second))
		if ncErr != nil {
			log.Error("could not connect to NATS server", log.ErrorField(ncErr))
			return ncErr
		}
		nr, nrErr := natsrelay.NewNatsRelay(nc, natsrelay.WithContext(ctx))
		if nrErr != nil {
			log.Error("could not setup NATS relay", log.ErrorField(nrErr))
			return nrErr
		}
		// unregister announcements from other members remove the local session
		nr.SetOnUnregisterCB(lookup.RemoveSession)
		dataRelay = nr
	} else {
		log.Info("No NATS server configured. Running standalone")
		dataRelay = local.NewLocalRelay(lookup)
	}

	pe, err := permission.NewOpaPermissionEvaluator()
	if err != nil {
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}

	curveService := service.InitCurveService(pool)
	apiServer := api.NewServer(
		api.WithSessionLookup(lookup),
		api.WithRelay(dataRelay),
		api.WithCurveService(curveService),
		api.WithTrackService(service.InitTrackService(pool)),
		api.WithAdminService(service.InitAdminService(pool, curveService)),
		api.WithProviderService(service.InitProviderService(pool)),
		api.WithPermissionEvaluator(pe),
		api.WithAuthMiddleware(auth.NewMiddleware(
			auth.WithAdminToken(config.AdminToken),
			auth.WithProviderCache(newProviderCache(pool)))),
		api.WithTelemetryLimit(config.ProviderRateLimit),
		api.WithDebugWire(debugWire),
	)

	handler := h2c.NewHandler(newCORS().Handler(apiServer.Handler()), &http2.Server{})
	//nolint:gosec // by design
	httpServer := &http.Server{
		Addr:    config.APIServerAddr,
		Handler: handler,
	}
	go func() {
		log.Info("Starting HTTP server", log.String("addr", config.APIServerAddr))
		serveErr := httpServer.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("HTTP server stopped", log.ErrorField(serveErr))
		}
	}()

	var tlsServer *http.Server
	if config.TLSServerAddr != "" {
		if tlsConfig := NewTlsConfigProvider(ctx); tlsConfig != nil {
			//nolint:gosec // by design
			tlsServer = &http.Server{
				Addr:      config.TLSServerAddr,
				Handler:   handler,
				TLSConfig: tlsConfig,
			}
			go func() {
				log.Info("Starting HTTPS server", log.String("addr", config.TLSServerAddr))
				serveErr := tlsServer.ListenAndServeTLS("", "")
				if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					log.Error("HTTPS server stopped", log.ErrorField(serveErr))
				}
			}()
		} else {
			log.Warn("TLS server requested but no certificates are available")
		}
	}

	log.Info("Server started")
	setupGoRoutinesDump()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	v := <-sigChan
	log.Debug("Got signal ", log.Any("signal", v))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	//nolint:errcheck // by design
	httpServer.Shutdown(shutdownCtx)
	if tlsServer != nil {
		//nolint:errcheck // by design
		tlsServer.Shutdown(shutdownCtx)
	}
	lookup.Close()
	dataRelay.Close()
	if telemetry != nil {
		telemetry.Shutdown()
	}

	log.Info("Server terminated")
	return nil
}

// staticProviderCache accepts the configured provider token in addition
// to the keys issued via the provider endpoints.
type staticProviderCache struct {
	keyHash  string
	delegate cache.Cache[string, model.DbProvider]
}

func (c *staticProviderCache) Get(ctx context.Context, key string) (
	*model.DbProvider, error,
) {
	if key == c.keyHash {
		return &model.DbProvider{Name: "provider", Active: true}, nil
	}
	return c.delegate.Get(ctx, key)
}

func (c *staticProviderCache) Invalidate(ctx context.Context, key string) {
	c.delegate.Invalidate(ctx, key)
}

func newProviderCache(pool *pgxpool.Pool) cache.Cache[string, model.DbProvider] {
	ret := service.NewProviderCache(pool, time.Minute)
	if config.ProviderToken != "" {
		return &staticProviderCache{
			keyHash:  utils.HashAPIKey(config.ProviderToken),
			delegate: ret,
		}
	}
	return ret
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func waitForRequiredServices() {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	wg := sync.WaitGroup{}
	checkTcp := func(addr string) {
		if err = utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
		wg.Done()
	}

	if postgresAddr := utils.ExtractFromDBURL(config.DB); postgresAddr != "" {
		wg.Add(1)
		go checkTcp(postgresAddr)
	}
	if config.NatsURL != "" {
		if natsAddr := utils.ExtractFromNatsURL(config.NatsURL); natsAddr != "" {
			wg.Add(1)
			go checkTcp(natsAddr)
		}
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	log.Debug("Required services are available")
}

func newCORS() *cors.Cors {
	// To let web developers play with the service from browsers, we need a
	// very permissive CORS setup.
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			// Allow all origins, which effectively disables CORS.
			return true
		},
		AllowedHeaders: []string{"*", "api-token", "x-client-version"},
		ExposedHeaders: []string{
			// Content-Type is in the default safelist.
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
			"Retry-After",
		},
		// Let browsers cache CORS information for longer, which reduces the number
		// of preflight requests. Any changes to ExposedHeaders won't take effect
		// until the cached data expires. FF caps this value at 24h, and modern
		// Chrome caps it at 2h.
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
