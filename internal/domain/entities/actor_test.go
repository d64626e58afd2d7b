package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

func TestAuthorize_Forward(t *testing.T) {
	maharashtraReq := &DispatchRequest{ID: 1, OwnerState: "Maharashtra"}
	goaReq := &DispatchRequest{ID: 2, OwnerState: "Goa"}
	maharashtraHospital := &Hospital{ID: 7, State: "Maharashtra"}
	goaHospital := &Hospital{ID: 8, State: "Goa"}

	system := ActorContext{Role: RoleSystemAdmin, Subject: "root"}
	state := ActorContext{Role: RoleStateAdmin, State: "Maharashtra", Subject: "mh"}
	staff := ActorContext{Role: RoleStaff, Subject: "s1"}

	tests := []struct {
		name    string
		actor   ActorContext
		target  Target
		errType apperrors.ErrorType
	}{
		{name: "system admin anywhere", actor: system, target: Target{Request: goaReq, Hospital: maharashtraHospital}},
		{name: "state admin in state", actor: state, target: Target{Request: maharashtraReq, Hospital: maharashtraHospital}},
		{name: "state admin foreign request", actor: state, target: Target{Request: goaReq, Hospital: maharashtraHospital}, errType: apperrors.ErrorTypeForbidden},
		{name: "state admin foreign hospital", actor: state, target: Target{Request: maharashtraReq, Hospital: goaHospital}, errType: apperrors.ErrorTypeForbidden},
		{name: "staff may not forward", actor: staff, target: Target{Request: maharashtraReq, Hospital: maharashtraHospital}, errType: apperrors.ErrorTypeForbidden},
		{name: "missing hospital", actor: system, target: Target{Request: maharashtraReq}, errType: apperrors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, CapForward, tt.target)
			if tt.errType == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsType(err, tt.errType), "got %v", err)
		})
	}
}

func TestAuthorize_View(t *testing.T) {
	req := &DispatchRequest{ID: 1, OwnerState: "Goa"}

	assert.NoError(t, Authorize(ActorContext{Role: RoleStaff}, CapMarkRead, Target{Request: req}))
	assert.NoError(t, Authorize(ActorContext{Role: RoleStateAdmin, State: "Goa"}, CapViewRequest, Target{Request: req}))

	err := Authorize(ActorContext{Role: RoleStateAdmin, State: "Kerala"}, CapViewRequest, Target{Request: req})
	assert.Equal(t, apperrors.ReasonOutOfScope, apperrors.ReasonOf(err))

	t.Run("state must match exactly", func(t *testing.T) {
		err := Authorize(ActorContext{Role: RoleStateAdmin, State: "goa"}, CapViewRequest, Target{Request: req})
		assert.Equal(t, apperrors.ReasonOutOfScope, apperrors.ReasonOf(err))
		assert.False(t, ActorContext{Role: RoleStateAdmin, State: "Goa"}.InState("GOA"))
	})

	t.Run("state admin without state is refused", func(t *testing.T) {
		err := Authorize(ActorContext{Role: RoleStateAdmin}, CapViewRequest, Target{Request: req})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))
	})

	t.Run("unknown request owner hidden from state admins", func(t *testing.T) {
		err := Authorize(ActorContext{Role: RoleStateAdmin, State: "Goa"}, CapViewRequest, Target{Request: &DispatchRequest{ID: 3}})
		assert.Error(t, err)
	})
}

func TestAuthorize_AdminManagement(t *testing.T) {
	system := ActorContext{Role: RoleSystemAdmin}
	state := ActorContext{Role: RoleStateAdmin, State: "Goa"}

	assert.NoError(t, Authorize(system, CapSuspendAdmin, Target{Subject: &state}))
	assert.NoError(t, Authorize(system, CapDeleteAdmin, Target{Subject: &state}))
	assert.Error(t, Authorize(state, CapSuspendAdmin, Target{Subject: &system}))
	assert.Error(t, Authorize(state, CapDeleteAdmin, Target{Subject: &ActorContext{Role: RoleStateAdmin, State: "Goa"}}))
	assert.Error(t, Authorize(system, CapDeleteAdmin, Target{Subject: &system}))
}

func TestAuthorize_Hospitals(t *testing.T) {
	assert.NoError(t, Authorize(ActorContext{Role: RoleStateAdmin, State: "Goa"}, CapListHospitals, Target{}))
	assert.Error(t, Authorize(ActorContext{Role: RoleStateAdmin, State: "Goa"}, CapListAllHospitals, Target{}))
	assert.NoError(t, Authorize(ActorContext{Role: RoleSystemAdmin}, CapListAllHospitals, Target{}))
	assert.Error(t, Authorize(ActorContext{Role: RoleStaff}, CapListHospitals, Target{}))
}
