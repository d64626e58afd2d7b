package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/repositories"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

// TransitionEventType names a lifecycle event
type TransitionEventType string

const (
	EventForward        TransitionEventType = "forward"
	EventAssign         TransitionEventType = "assign"
	EventHospitalAccept TransitionEventType = "hospital_accept"
	EventHospitalReject TransitionEventType = "hospital_reject"
	EventDispatch       TransitionEventType = "dispatch"
	EventArrive         TransitionEventType = "arrive"
	EventCancel         TransitionEventType = "cancel"
)

// TransitionEvent is one input to the lifecycle state machine
type TransitionEvent struct {
	Type TransitionEventType
	// Hospital is the forward target (forward only).
	Hospital *entities.Hospital
	// HospitalID is the responding hospital (accept and reject only).
	HospitalID int64
	Ambulance  *entities.AssignedAmbulance
	Notes      string
	At         time.Time
}

var eventTargets = map[TransitionEventType]entities.RequestStatus{
	EventForward:        entities.StatusForwardedToHospital,
	EventAssign:         entities.StatusAssigned,
	EventHospitalAccept: entities.StatusHospitalAccepted,
	EventHospitalReject: entities.StatusHospitalRejected,
	EventDispatch:       entities.StatusOnTheWay,
	EventArrive:         entities.StatusCompleted,
	EventCancel:         entities.StatusCancelled,
}

// LifecycleEngine owns every status change of a dispatch request
type LifecycleEngine struct {
	repo    repositories.DispatchRepository
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLifecycleEngine creates an engine that forwards through repo
func NewLifecycleEngine(repo repositories.DispatchRepository, metrics *observability.Metrics) *LifecycleEngine {
	return &LifecycleEngine{
		repo:    repo,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Apply returns req after ev. req itself is never modified.
func (e *LifecycleEngine) Apply(req entities.DispatchRequest, ev TransitionEvent) (entities.DispatchRequest, error) {
	target, known := eventTargets[ev.Type]
	if !known {
		return req, apperrors.NewValidationError(fmt.Sprintf("unknown lifecycle event %q", ev.Type))
	}

	out := req.Clone()
	switch ev.Type {
	case EventForward:
		if req.IsForwarded() {
			return req, apperrors.NewPreconditionFailedError(apperrors.ReasonAlreadyForwarded,
				fmt.Sprintf("request %d was already forwarded to hospital %d", req.ID, req.Forward.HospitalID))
		}
		if req.Status != entities.StatusPending {
			return req, apperrors.NewPreconditionFailedError(apperrors.ReasonNotPending,
				fmt.Sprintf("request %d is %s, only pending requests can be forwarded", req.ID, req.Status))
		}
		if ev.Hospital == nil {
			return req, apperrors.NewValidationError("forward requires a hospital")
		}
		out.Forward = &entities.Forward{
			HospitalID:      ev.Hospital.ID,
			HospitalName:    ev.Hospital.Name,
			HospitalAddress: ev.Hospital.Address,
			Response:        entities.ForwardResponsePending,
		}

	case EventHospitalAccept, EventHospitalReject:
		if req.Forward == nil || req.Forward.HospitalID != ev.HospitalID {
			return req, apperrors.NewPreconditionFailedError(apperrors.ReasonIllegalTransition,
				fmt.Sprintf("hospital %d did not receive request %d", ev.HospitalID, req.ID))
		}
		at := ev.At
		if at.IsZero() {
			at = e.now()
		}
		out.Forward.Response = entities.ForwardResponseAccepted
		if ev.Type == EventHospitalReject {
			out.Forward.Response = entities.ForwardResponseRejected
		}
		out.Forward.ResponseNotes = ev.Notes
		out.Forward.RespondedAt = &at

	case EventCancel:
		if req.IsForwarded() {
			return req, apperrors.NewPreconditionFailedError(apperrors.ReasonIllegalTransition,
				fmt.Sprintf("request %d was forwarded to hospital %d and cannot be cancelled", req.ID, req.Forward.HospitalID))
		}

	case EventAssign:
		if ev.Ambulance != nil {
			amb := *ev.Ambulance
			out.AssignedAmbulance = &amb
		}
	}

	if !entities.CanTransition(req.Status, target) {
		return req, illegal(req, ev)
	}
	out.Status = target
	return out, nil
}

func illegal(req entities.DispatchRequest, ev TransitionEvent) error {
	return apperrors.NewPreconditionFailedError(apperrors.ReasonIllegalTransition,
		fmt.Sprintf("event %s is not allowed for request %d in status %s", ev.Type, req.ID, req.Status))
}

// Forward sends req to hospital. Local guards run before any network call.
// The returned patch carries the new status and a forward record whose
// response is still pending.
func (e *LifecycleEngine) Forward(ctx context.Context, actor entities.ActorContext, req entities.DispatchRequest, hospital entities.Hospital) (entities.RequestPatch, error) {
	ctx, span := observability.StartSpan(ctx, "LifecycleEngine.Forward")
	defer span.End()

	if err := entities.Authorize(actor, entities.CapForward, entities.Target{Request: &req, Hospital: &hospital}); err != nil {
		e.metrics.RecordTransition(ctx, string(EventForward), "denied")
		return entities.RequestPatch{}, err
	}

	after, err := e.Apply(req, TransitionEvent{Type: EventForward, Hospital: &hospital})
	if err != nil {
		e.metrics.RecordTransition(ctx, string(EventForward), "precondition_failed")
		return entities.RequestPatch{}, err
	}

	if err := e.repo.Forward(ctx, req.ID, hospital.ID); err != nil {
		observability.RecordError(span, err)
		switch apperrors.TypeOf(err) {
		case apperrors.ErrorTypeTransitionRejected, apperrors.ErrorTypeUnauthorized:
		default:
			err = apperrors.NewTransitionRejectedError("forward failed", err)
		}
		e.metrics.RecordTransition(ctx, string(EventForward), "rejected")
		return entities.RequestPatch{}, err
	}

	e.metrics.RecordTransition(ctx, string(EventForward), "succeeded")
	return PatchBetween(req, after), nil
}

// PatchBetween describes how after differs from before
func PatchBetween(before, after entities.DispatchRequest) entities.RequestPatch {
	var patch entities.RequestPatch
	if after.Status != before.Status {
		status := after.Status
		patch.Status = &status
	}
	if after.Forward != nil && (before.Forward == nil || !sameForward(before.Forward, after.Forward)) {
		fwd := *after.Forward
		patch.Forward = &fwd
	}
	if after.AssignedAmbulance != nil && (before.AssignedAmbulance == nil || *after.AssignedAmbulance != *before.AssignedAmbulance) {
		amb := *after.AssignedAmbulance
		patch.AssignedAmbulance = &amb
	}
	return patch
}

func sameForward(a, b *entities.Forward) bool {
	x, y := *a, *b
	x.RespondedAt, y.RespondedAt = nil, nil
	if x != y {
		return false
	}
	if a.RespondedAt == nil || b.RespondedAt == nil {
		return a.RespondedAt == nil && b.RespondedAt == nil
	}
	return a.RespondedAt.Equal(*b.RespondedAt)
}
