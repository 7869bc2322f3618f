package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                   string // connection string for the database
	NatsURL              string // URL of the NATS server
	WaitForServices      string // duration to wait for other services to be ready
	LogLevel             string // sets the log level (zap log level values)
	SQLLogLevel          string // sets the log level for sql subsystem
	LogFormat            string // text vs json
	LogConfig            string // path to log config file
	MigrationSourceURL   string // location of migration files
	EnableTelemetry      bool   // enable telemetry
	TelemetryEndpoint    string // endpoint for telemetry
	ProfilingPort        int    // port for profiling
	APIServerAddr        string // listen addr for the HTTP API server (insecure)
	TLSServerAddr        string // listen addr for the HTTP API server (tls)
	TLSCertFile          string // path to TLS certificate
	TLSKeyFile           string // path to TLS key
	TLSCAFile            string // path to TLS client CA bundle
	TraefikCerts         string // path to traefik certs file
	TraefikCertDomain    string // the domain to lookup within the traefik certs
	ProviderToken        string // token for telemetry provider access
	AdminToken           string // token for admin access
	StaleDuration        string // duration after which a session is considered stale
	ProviderRateLimit    int    // allowed provider requests per client per minute
)
