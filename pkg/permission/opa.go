package permission

import (
	"bytes"
	"context"
	_ "embed"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/auth"
)

type OpaPermissionEvaluator struct {
	r     *rego.Rego
	query rego.PreparedEvalQuery
	l     *log.Logger
}

type EvalRequest struct {
	Roles       []auth.Role `json:"roles"`
	Action      Permission  `json:"action"`
	Principal   string      `json:"principal"`
	ObjectOwner string      `json:"objectOwner,omitempty"`
}

// check interface compliance
var _ PermissionEvaluator = (*OpaPermissionEvaluator)(nil)

//go:embed policy.rego
var policy []byte

//go:embed data.json
var data []byte

func NewOpaPermissionEvaluator() (*OpaPermissionEvaluator, error) {
	l := log.Default().Named("permission").Named("opa")
	store := inmem.NewFromReader(bytes.NewReader(data))
	r := rego.New(
		rego.Query("data.fueltrace.authz.allow"),
		rego.Module("fueltrace.authz", string(policy)),
		rego.Store(store),
	)
	if query, err := r.PrepareForEval(context.Background()); err != nil {
		l.Error("failed to prepare query", log.ErrorField(err))
		return nil, err
	} else {
		return &OpaPermissionEvaluator{
			r:     r,
			query: query,
			l:     l,
		}, nil
	}
}

//nolint:whitespace // editor/linter issue
func (ope *OpaPermissionEvaluator) HasPermission(
	a auth.Authentication,
	perm Permission,
) bool {
	ope.l.Debug("HasPermission",
		log.String("name", a.Principal().Name()),
		log.Any("roles", a.Roles()),
		log.String("perm", string(perm)))
	req := EvalRequest{
		Roles:     a.Roles(),
		Action:    perm,
		Principal: a.Principal().Name(),
	}
	if rs, err := ope.query.Eval(context.Background(), rego.EvalInput(req)); err != nil {
		ope.l.Error("HasPermission", log.ErrorField(err))
		return false
	} else {
		ope.l.Debug("res", log.Any("res", rs))
		return rs.Allowed()
	}
}

//nolint:whitespace // editor/linter issue
func (ope *OpaPermissionEvaluator) HasObjectPermission(
	a auth.Authentication,
	perm Permission,
	objectOwner string,
) bool {
	ope.l.Debug("HasObjectPermission",
		log.String("name", a.Principal().Name()),
		log.Any("roles", a.Roles()),
		log.String("perm", string(perm)),
		log.String("objectOwner", objectOwner))

	req := EvalRequest{
		Roles:       a.Roles(),
		Action:      perm,
		Principal:   a.Principal().Name(),
		ObjectOwner: objectOwner,
	}
	if rs, err := ope.query.Eval(context.Background(), rego.EvalInput(req)); err != nil {
		ope.l.Error("HasObjectPermission", log.ErrorField(err))
		return false
	} else {
		ope.l.Debug("res", log.Any("res", rs))
		return rs.Allowed()
	}
}
