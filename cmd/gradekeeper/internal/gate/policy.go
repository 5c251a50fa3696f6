package gate

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
)

//go:embed model.conf
var casbinModelContent string

// Objects and actions checked by the gate.
const (
	ObjGrade        = "grade"
	ObjAcademicYear = "academic-year"
	ObjAssignment   = "assignment"
	ObjLedger       = "ledger"

	ActAny      = "any"      // every grade, no membership lookup
	ActAssigned = "assigned" // grades the caller is assigned to
	ActManage   = "manage"
	ActRead     = "read"
)

// rolePolicies is the static role policy. SUPERADMIN inherits ADMIN.
var rolePolicies = [][]string{
	{string(identity.RoleAdmin), ObjGrade, ActAny},
	{string(identity.RoleAdmin), ObjGrade, ActManage},
	{string(identity.RoleAdmin), ObjAcademicYear, ActManage},
	{string(identity.RoleAdmin), ObjAssignment, ActManage},
	{string(identity.RoleAdmin), ObjLedger, ActRead},
	{string(identity.RoleTeacher), ObjGrade, ActAssigned},
}

var roleGroupings = [][]string{
	{string(identity.RoleSuperAdmin), string(identity.RoleAdmin)},
}

// NewEnforcer creates a Casbin enforcer with the embedded model and the static role policy.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if _, err := enforcer.AddPolicies(rolePolicies); err != nil {
		return nil, fmt.Errorf("load role policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(roleGroupings); err != nil {
		return nil, fmt.Errorf("load role groupings: %w", err)
	}
	return enforcer, nil
}
