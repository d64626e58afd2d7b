package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

var (
	systemAdmin = entities.ActorContext{Subject: "root", Role: entities.RoleSystemAdmin, Token: "root-token"}
	mhAdmin     = entities.ActorContext{Subject: "sa-mh", Role: entities.RoleStateAdmin, State: "Maharashtra", Token: "mh-token"}
	goaAdmin    = entities.ActorContext{Subject: "sa-goa", Role: entities.RoleStateAdmin, State: "Goa", Token: "goa-token"}
	staffMember = entities.ActorContext{Subject: "staff-1", Role: entities.RoleStaff, Token: "staff-token"}
)

func newRequest(id int64, status entities.RequestStatus, state string) entities.DispatchRequest {
	return entities.DispatchRequest{
		ID:            id,
		Status:        status,
		Priority:      entities.PriorityHigh,
		EmergencyType: "cardiac",
		Pickup:        entities.AddressPickup("12 MG Road"),
		Patient:       entities.PatientInfo{Name: "Patient " + string(rune('A'+id%26)), Phone: "9000000000"},
		OwnerState:    state,
		CreatedAt:     baseTime.Add(time.Duration(id) * time.Minute),
	}
}

func forwardedRequest(id, hospitalID int64, state string) entities.DispatchRequest {
	req := newRequest(id, entities.StatusForwardedToHospital, state)
	req.Forward = &entities.Forward{
		HospitalID:   hospitalID,
		HospitalName: "City Hospital",
		Response:     entities.ForwardResponsePending,
	}
	return req
}

func withStatus(req entities.DispatchRequest, status entities.RequestStatus) entities.DispatchRequest {
	req.Status = status
	return req
}

var testHospitals = []entities.Hospital{
	{ID: 7, Name: "Sassoon General", Address: "Pune", State: "Maharashtra", AmbulanceCount: 4},
	{ID: 8, Name: "KEM", Address: "Mumbai", State: "Maharashtra", AmbulanceCount: 6},
	{ID: 21, Name: "GMC Bambolim", Address: "Panaji", State: "Goa", AmbulanceCount: 2},
}

type forwardCall struct {
	requestID  int64
	hospitalID int64
	token      string
}

// fakeBackend implements the dispatch and hospital repositories
type fakeBackend struct {
	mu        sync.Mutex
	requests  []entities.DispatchRequest
	hospitals []entities.Hospital

	listErr     error
	listFn      func(ctx context.Context) ([]entities.DispatchRequest, error)
	listCalls   int
	markReadErr error
	markReads   []int64
	forwardErr  error
	forwards    []forwardCall
	scopes      []string

	// forwardStarted is signalled when Forward is entered; forwardGate, when
	// set, holds Forward until it is closed.
	forwardStarted chan struct{}
	forwardGate    chan struct{}
}

func newFakeBackend(requests ...entities.DispatchRequest) *fakeBackend {
	return &fakeBackend{requests: requests, hospitals: testHospitals}
}

func (b *fakeBackend) setRequests(requests ...entities.DispatchRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = requests
}

func (b *fakeBackend) setListErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

func (b *fakeBackend) ListRequests(ctx context.Context) ([]entities.DispatchRequest, error) {
	b.mu.Lock()
	b.listCalls++
	fn := b.listFn
	err := b.listErr
	out := make([]entities.DispatchRequest, len(b.requests))
	for i, req := range b.requests {
		out[i] = req.Clone()
	}
	b.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *fakeBackend) MarkRead(ctx context.Context, requestID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markReads = append(b.markReads, requestID)
	return b.markReadErr
}

func (b *fakeBackend) Forward(ctx context.Context, requestID, hospitalID int64) error {
	actor, _ := entities.ActorFromContext(ctx)

	b.mu.Lock()
	b.forwards = append(b.forwards, forwardCall{requestID: requestID, hospitalID: hospitalID, token: actor.Token})
	started, gate, err := b.forwardStarted, b.forwardGate, b.forwardErr
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (b *fakeBackend) ListHospitals(ctx context.Context, state string) ([]entities.Hospital, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scopes = append(b.scopes, state)
	return append([]entities.Hospital(nil), b.hospitals...), nil
}

func (b *fakeBackend) forwardCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.forwards)
}

func (b *fakeBackend) listCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

func (b *fakeBackend) markReadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.markReads)
}

// fakeAudit records journal entries in memory
type fakeAudit struct {
	mu      sync.Mutex
	entries []*entities.AuditEntry
	written chan struct{}
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{written: make(chan struct{}, 16)}
}

func (a *fakeAudit) Record(ctx context.Context, entry *entities.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()
	a.written <- struct{}{}
	return nil
}

func (a *fakeAudit) ListByRequest(ctx context.Context, requestID int64, limit int) ([]*entities.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*entities.AuditEntry
	for _, e := range a.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *fakeAudit) all() []*entities.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*entities.AuditEntry(nil), a.entries...)
}

// fakeGeocoder counts lookups and can hold them until released
type fakeGeocoder struct {
	mu      sync.Mutex
	calls   int
	address string
	err     error
	gate    chan struct{}
}

func (g *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*providers.GeocodedAddress, error) {
	g.mu.Lock()
	g.calls++
	gate, address, err := g.gate, g.address, g.err
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	return &providers.GeocodedAddress{FormattedAddress: address, Latitude: lat, Longitude: lon}, nil
}

func (g *fakeGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recordingBus captures published events
type recordingBus struct {
	mu     sync.Mutex
	events []*entities.DispatchEvent
}

func (b *recordingBus) Publish(ctx context.Context, channel string, event *entities.DispatchEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.DispatchEvent, error) {
	return make(chan *entities.DispatchEvent), nil
}

func (b *recordingBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) published() []*entities.DispatchEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*entities.DispatchEvent(nil), b.events...)
}
