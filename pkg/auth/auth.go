package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

type Role int

const (
	RoleAdmin Role = iota
	RoleProvider
)

var ErrPermissionDenied = errors.New("permission denied")

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleProvider:
		return "provider"
	}
	return "unknown"
}

// roles travel by name in policy evaluation requests
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

type Principal interface {
	Name() string
}

type Authentication interface {
	Principal() Principal
	Roles() []Role
}

type AuthenticationProvider interface {
	Authenticate(ctx context.Context, h http.Header) (Authentication, error)
}

type authCtxKey int

type authHolder struct {
	auth Authentication
}

func AddAuthToContext(ctx context.Context, a Authentication) context.Context {
	return context.WithValue(ctx, authCtxKey(0), &authHolder{auth: a})
}

func FromContext(ctx context.Context) Authentication {
	if val, ok := ctx.Value(authCtxKey(0)).(*authHolder); ok {
		return val.auth
	}
	return nil
}

// HasRole reports if the authentication carries the role.
func HasRole(a Authentication, role Role) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles() {
		if r == role {
			return true
		}
	}
	return false
}
