package auth

import (
	"context"
	"net/http"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils/cache"
)

const (
	tokenHeader = "api-token"
)

type middleware struct {
	cfg          *Config
	authProvider []AuthenticationProvider
	l            *log.Logger
}

// NewMiddleware resolves the api-token header into an Authentication
// stored in the request context. Requests without usable credentials
// continue as anonymous.
func NewMiddleware(opts ...Option) func(http.Handler) http.Handler {
	ret := &middleware{
		cfg: &Config{},
		l:   log.Default().Named("auth"),
	}
	for _, opt := range opts {
		opt(ret.cfg)
	}
	ret.authProvider = []AuthenticationProvider{
		&apiKeyAuthenticator{
			adminToken:    ret.cfg.AdminToken,
			providerCache: ret.cfg.ProviderCache,
		},
		&anonymousAuthenticator{},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ret.handleAuth(r.Context(), r.Header)))
		})
	}
}

//nolint:lll // better readability
func (i *middleware) handleAuth(ctx context.Context, h http.Header) context.Context {
	for _, p := range i.authProvider {
		a, err := p.Authenticate(ctx, h)
		if a != nil {
			return AddAuthToContext(ctx, a)
		}
		if err != nil {
			i.l.Error("error authenticating", log.ErrorField(err))
		}
	}
	// if no auth found, continue with current context
	return ctx
}

type (
	SimpleAuth struct {
		principal Principal
		roles     []Role
	}
	SimplePrincipal struct {
		name string
	}
)

func (s *SimplePrincipal) Name() string {
	return s.name
}

func (s *SimpleAuth) Principal() Principal {
	return s.principal
}

func (s *SimpleAuth) Roles() []Role {
	return s.roles
}

func NewSimplePrincipal(name string) *SimplePrincipal {
	return &SimplePrincipal{name: name}
}

// compile time check if everything implements the interface
var _ Authentication = (*SimpleAuth)(nil)

var anon = &SimpleAuth{principal: &SimplePrincipal{name: "anon"}, roles: []Role{}}

// Anonymous is the authentication used when no credentials were presented.
func Anonymous() Authentication {
	return anon
}

type (
	anonymousAuthenticator struct{}
	apiKeyAuthenticator    struct {
		adminToken    string
		providerCache cache.Cache[string, model.DbProvider]
	}
)

//nolint:whitespace // editor/linter issue
func (a *anonymousAuthenticator) Authenticate(
	ctx context.Context,
	h http.Header,
) (Authentication, error) {
	return anon, nil
}

//nolint:lll,whitespace // editor/linter issue
func (a *apiKeyAuthenticator) Authenticate(
	ctx context.Context,
	h http.Header,
) (Authentication, error) {
	if h.Get(tokenHeader) == "" {
		return nil, nil
	}
	if a.adminToken != "" && h.Get(tokenHeader) == a.adminToken {
		return &SimpleAuth{
			principal: &SimplePrincipal{name: "admin"},
			roles:     []Role{RoleAdmin},
		}, nil
	}
	if a.providerCache == nil {
		return nil, nil
	}

	if p, err := a.providerCache.Get(ctx, utils.HashAPIKey(h.Get(tokenHeader))); err == nil &&
		p.Active {

		return &SimpleAuth{
			principal: &SimplePrincipal{name: p.Name},
			roles:     []Role{RoleProvider},
		}, nil
	} else {
		return nil, err
	}
}
