package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/certs/traefik"
)

// certSource yields the server certificate and the files to watch for
// renewals.
type certSource interface {
	load() (tls.Certificate, error)
	files() []string
}

type keyPairSource struct {
	certFile string
	keyFile  string
}

func (s keyPairSource) load() (tls.Certificate, error) {
	return tls.LoadX509KeyPair(s.certFile, s.keyFile)
}

func (s keyPairSource) files() []string { return []string{s.certFile, s.keyFile} }

type traefikSource struct {
	acmeFile string
	domain   string
}

func (s traefikSource) load() (tls.Certificate, error) {
	return traefik.GetCertFromTraefik(s.acmeFile, s.domain)
}

func (s traefikSource) files() []string { return []string{s.acmeFile} }

type certProvider struct {
	log    *log.Logger
	source certSource
	cert   atomic.Pointer[tls.Certificate]
}

// NewTlsConfigProvider builds the TLS config for the HTTPS listener.
// Certificates are reloaded when the underlying files change, so
// renewals don't require a restart. Returns nil when no usable
// certificate is configured.
func NewTlsConfigProvider(ctx context.Context) *tls.Config {
	p := &certProvider{log: log.GetFromContext(ctx).Named("server.certs")}
	switch {
	case config.TraefikCerts != "" && config.TraefikCertDomain != "":
		p.log.Info("Looking up traefik certs",
			log.String("file", config.TraefikCerts),
			log.String("domain", config.TraefikCertDomain))
		p.source = traefikSource{
			acmeFile: config.TraefikCerts,
			domain:   config.TraefikCertDomain,
		}
	case config.TLSCertFile != "" && config.TLSKeyFile != "":
		p.log.Info("Loading cert",
			log.String("key", config.TLSKeyFile),
			log.String("cert", config.TLSCertFile))
		p.source = keyPairSource{
			certFile: config.TLSCertFile,
			keyFile:  config.TLSKeyFile,
		}
	default:
		return nil
	}
	if !p.reload() {
		return nil
	}
	ret := &tls.Config{
		GetCertificate: func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
			return p.cert.Load(), nil
		},
		MinVersion: tls.VersionTLS13,
	}
	if config.TLSCAFile != "" {
		p.log.Info("Loading ca cert", log.String("file", config.TLSCAFile))
		caCert, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			p.log.Error("could not read TLS root CA", log.ErrorField(err))
		}
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
			p.log.Error("could not append cert to pool")
		}
		ret.ClientCAs = caCertPool
		ret.ClientAuth = tls.VerifyClientCertIfGiven
	}
	go p.watchAndReload(ctx)
	return ret
}

// reload reports whether a certificate is available afterwards. A failed
// reload keeps the previous certificate in place.
func (p *certProvider) reload() bool {
	cert, err := p.source.load()
	if err != nil {
		p.log.Error("could not load certificate", log.ErrorField(err))
		return p.cert.Load() != nil
	}
	p.cert.Store(&cert)
	return true
}

func (p *certProvider) watchAndReload(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.log.Error("could not create fsnotify watcher", log.ErrorField(err))
		return
	}
	defer watcher.Close()
	for _, f := range p.source.files() {
		if wErr := watcher.Add(f); wErr != nil {
			p.log.Error("could not watch cert file",
				log.String("file", f), log.ErrorField(wErr))
		}
	}
	for {
		select {
		case <-ctx.Done():
			p.log.Info("context done, stopping cert reload")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				p.log.Info("watcher events channel closed, stopping cert reload")
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
				p.log.Info("cert file changed, reloading cert",
					log.String("file", event.Name))
				p.reload()
			}
		case wErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.log.Error("watcher error", log.ErrorField(wErr))
		}
	}
}
