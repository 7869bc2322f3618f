package permission

import (
	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
)

type Permission string

const (
	PermissionRegisterSession   Permission = "register-session"
	PermissionUnregisterSession Permission = "unregister-session"
	PermissionPostTelemetry     Permission = "post-telemetry"
	PermissionResetSession      Permission = "reset-session"
	PermissionReloadCurve       Permission = "reload-curve"
)

const (
	PermissionSaveCurve   Permission = "save-curve"
	PermissionDeleteCurve Permission = "delete-curve"
)

const (
	PermissionDeleteTrack Permission = "delete-track"
	PermissionUpdateTrack Permission = "update-track"
)

// collection of admin specific permissions
const (
	PermissionManageProviders         Permission = "manage-providers"
	PermissionAdminUnregisterSessions Permission = "unregister-all-sessions"
)

type PermissionEvaluator interface {
	HasPermission(auth auth.Authentication, perm Permission) bool
	HasObjectPermission(auth auth.Authentication, perm Permission, objectOwner string) bool
}

func NewPermissionEvaluator() PermissionEvaluator {
	if ret, err := NewOpaPermissionEvaluator(); err != nil {
		log.Default().Error("failed to create permission evaluator", log.ErrorField(err))
		return nil
	} else {
		return ret
	}
}
