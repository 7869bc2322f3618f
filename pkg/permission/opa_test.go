//nolint:dupl,funlen,errcheck //ok for this test code
package permission

import (
	_ "embed"
	"testing"

	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
)

type TestAuth struct {
	auth.Authentication
	p auth.Principal
	r []auth.Role
}
type TestPrincipal struct {
	auth.Principal
	name string
}

func (s *TestPrincipal) Name() string {
	return s.name
}

func (s *TestAuth) Principal() auth.Principal {
	return s.p
}

func (s *TestAuth) Roles() []auth.Role {
	return s.r
}

var (
	admin = TestAuth{
		p: &TestPrincipal{name: "admin"},
		r: []auth.Role{auth.RoleAdmin},
	}
	provider = TestAuth{
		p: &TestPrincipal{name: "someprovider"},
		r: []auth.Role{auth.RoleProvider},
	}
	anon = TestAuth{
		p: &TestPrincipal{name: "anon"},
		r: []auth.Role{},
	}
)

func TestOpa_HasPermission_Provider(t *testing.T) {
	type args struct {
		perm Permission
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{
			name: "register session",
			args: args{perm: PermissionRegisterSession},
			want: true,
		},
		{
			name: "save curve",
			args: args{perm: PermissionSaveCurve},
			want: true,
		},
		{
			name: "delete curve",
			args: args{perm: PermissionDeleteCurve},
			want: false,
		},
		{
			name: "delete track",
			args: args{perm: PermissionDeleteTrack},
			want: false,
		},
		{
			name: "manage providers",
			args: args{perm: PermissionManageProviders},
			want: false,
		},
	}
	opaPE, err := NewOpaPermissionEvaluator()
	if err != nil {
		t.Errorf("NewOpaPermissionEvaluator() error = %v", err)
		return
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := opaPE.HasPermission(&provider, tt.args.perm); got != tt.want {
				t.Errorf("opaPE.HasPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpa_HasObjectPermission_Provider(t *testing.T) {
	type args struct {
		perm     Permission
		objOwner string
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		// Note: if we omit the objOwner, the result should be the same as hasPermission
		{
			name: "register session",
			args: args{perm: PermissionRegisterSession},
			want: true,
		},
		{
			name: "unregister session",
			args: args{
				perm:     PermissionUnregisterSession,
				objOwner: provider.Principal().Name(),
			},
			want: true,
		},
		{
			name: "unregister foreign session",
			args: args{perm: PermissionUnregisterSession, objOwner: "other"},
			want: false,
		},
		{
			name: "post telemetry",
			args: args{
				perm:     PermissionPostTelemetry,
				objOwner: provider.Principal().Name(),
			},
			want: true,
		},
		{
			name: "post telemetry foreign session",
			args: args{perm: PermissionPostTelemetry, objOwner: "other"},
			want: false,
		},
		{
			name: "reset session",
			args: args{
				perm:     PermissionResetSession,
				objOwner: provider.Principal().Name(),
			},
			want: true,
		},
		{
			name: "reload curve",
			args: args{
				perm:     PermissionReloadCurve,
				objOwner: provider.Principal().Name(),
			},
			want: true,
		},
	}
	opaPE, err := NewOpaPermissionEvaluator()
	if err != nil {
		t.Errorf("NewOpaPermissionEvaluator() error = %v", err)
		return
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := opaPE.HasObjectPermission(
				&provider,
				tt.args.perm,
				tt.args.objOwner); got != tt.want {
				t.Errorf("opaPE.HasObjectPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpa_HasPermission_Admin(t *testing.T) {
	type args struct {
		perm Permission
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		// Note: admins pass any check including foreign sessions
		{
			name: "register session",
			args: args{perm: PermissionRegisterSession},
			want: true,
		},
		{
			name: "delete curve",
			args: args{perm: PermissionDeleteCurve},
			want: true,
		},
		{
			name: "delete track",
			args: args{perm: PermissionDeleteTrack},
			want: true,
		},
		{
			name: "manage providers",
			args: args{perm: PermissionManageProviders},
			want: true,
		},
		{
			name: "unregister all sessions",
			args: args{perm: PermissionAdminUnregisterSessions},
			want: true,
		},
	}
	opaPE, err := NewOpaPermissionEvaluator()
	if err != nil {
		t.Errorf("NewOpaPermissionEvaluator() error = %v", err)
		return
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := opaPE.HasPermission(
				&admin,
				tt.args.perm); got != tt.want {
				t.Errorf("opaPE.HasPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpa_HasObjectPermission_Admin(t *testing.T) {
	opaPE, err := NewOpaPermissionEvaluator()
	if err != nil {
		t.Errorf("NewOpaPermissionEvaluator() error = %v", err)
		return
	}
	if got := opaPE.HasObjectPermission(
		&admin, PermissionUnregisterSession, "other"); got != true {
		t.Errorf("opaPE.HasObjectPermission() = %v, want true", got)
	}
}

func TestOpa_HasPermission_Anon(t *testing.T) {
	opaPE, err := NewOpaPermissionEvaluator()
	if err != nil {
		t.Errorf("NewOpaPermissionEvaluator() error = %v", err)
		return
	}
	if got := opaPE.HasPermission(&anon, PermissionRegisterSession); got != false {
		t.Errorf("opaPE.HasPermission() = %v, want false", got)
	}
}
