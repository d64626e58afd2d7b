package entities

import (
	"fmt"

	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

// Role is the portal role of the acting user
type Role string

const (
	RoleSystemAdmin Role = "systemAdmin"
	RoleStateAdmin  Role = "stateAdmin"
	RoleStaff       Role = "staff"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleSystemAdmin || r == RoleStateAdmin || r == RoleStaff
}

// IsAdmin reports whether r is one of the admin roles
func (r Role) IsAdmin() bool {
	return r == RoleSystemAdmin || r == RoleStateAdmin
}

// ActorContext identifies who issues commands in a session
type ActorContext struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
	// State is set only for stateAdmin.
	State string `json:"state,omitempty"`
	// Token is forwarded to the dispatch backend on every call.
	Token string `json:"-"`
}

// SessionKey identifies the actor's session in the registry
func (a ActorContext) SessionKey() string {
	return string(a.Role) + ":" + a.State + ":" + a.Subject
}

// InState reports whether the actor is scoped to state. Only state admins
// carry a scope; everyone else sees every state.
func (a ActorContext) InState(state string) bool {
	if a.Role != RoleStateAdmin {
		return true
	}
	return state != "" && a.State == state
}

// Capability names a command the actor may attempt
type Capability string

const (
	CapViewRequest      Capability = "view_request"
	CapMarkRead         Capability = "mark_read"
	CapForward          Capability = "forward"
	CapListHospitals    Capability = "list_hospitals"
	CapListAllHospitals Capability = "list_all_hospitals"
	CapViewAudit        Capability = "view_audit"
	CapSuspendAdmin     Capability = "suspend_admin"
	CapDeleteAdmin      Capability = "delete_admin"
)

// Target is what a capability is checked against. Unused fields stay nil.
type Target struct {
	Request  *DispatchRequest
	Hospital *Hospital
	Subject  *ActorContext
}

// Authorize is the single capability check every mutating command goes
// through. It returns nil when actor may perform capability on target.
func Authorize(actor ActorContext, capability Capability, target Target) error {
	if !actor.Role.Valid() {
		return apperrors.NewUnauthorizedError("unknown role")
	}
	if actor.Role == RoleStateAdmin && actor.State == "" {
		return apperrors.NewForbiddenError("state admin without a state")
	}

	switch capability {
	case CapViewRequest, CapMarkRead:
		return requireRequestScope(actor, target.Request)

	case CapForward:
		if !actor.Role.IsAdmin() {
			return apperrors.NewForbiddenError("only admins may forward requests")
		}
		if err := requireRequestScope(actor, target.Request); err != nil {
			return err
		}
		if target.Hospital == nil {
			return apperrors.NewValidationError("forward target hospital is required")
		}
		if !actor.InState(target.Hospital.State) {
			return outOfScope(fmt.Sprintf("hospital %d is outside state %s", target.Hospital.ID, actor.State))
		}
		return nil

	case CapListHospitals:
		if !actor.Role.IsAdmin() {
			return apperrors.NewForbiddenError("only admins may list hospitals")
		}
		return nil

	case CapListAllHospitals:
		if actor.Role != RoleSystemAdmin {
			return apperrors.NewForbiddenError("unscoped hospital listing is system admin only")
		}
		return nil

	case CapViewAudit:
		if !actor.Role.IsAdmin() {
			return apperrors.NewForbiddenError("only admins may view the audit journal")
		}
		return requireRequestScope(actor, target.Request)

	case CapSuspendAdmin, CapDeleteAdmin:
		if target.Subject == nil {
			return apperrors.NewValidationError("target admin is required")
		}
		if actor.Role != RoleSystemAdmin || target.Subject.Role != RoleStateAdmin {
			return apperrors.NewForbiddenError("only a system admin may manage a state admin")
		}
		return nil
	}

	return apperrors.NewForbiddenError(fmt.Sprintf("unknown capability %q", capability))
}

func requireRequestScope(actor ActorContext, req *DispatchRequest) error {
	if req == nil {
		return apperrors.NewValidationError("request is required")
	}
	if !actor.InState(req.OwnerState) {
		return outOfScope(fmt.Sprintf("request %d is outside state %s", req.ID, actor.State))
	}
	return nil
}

func outOfScope(msg string) error {
	err := apperrors.NewForbiddenError(msg)
	err.Reason = apperrors.ReasonOutOfScope
	return err
}
