package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/repositories"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
	"github.com/shivam13669/CRMManagementt-sub003/pkg/retry"
)

// Invalidation reasons sent to browsers
const (
	ReasonRefreshed = "refreshed"
	ReasonSelected  = "selected"
	ReasonForwarded = "forwarded"
	ReasonPushed    = "pushed"
	ReasonAddress   = "address_resolved"
)

// CoordinatorOptions configures a DispatchCoordinator
type CoordinatorOptions struct {
	PageSize       int
	ForwardTimeout time.Duration
	// Audit is optional; journal writes never block a command.
	Audit repositories.AuditRepository
	// Events, when set, tells other sessions and replicas about forwards.
	Events  providers.EventBus
	Metrics *observability.Metrics
}

// PendingFlags marks commands still waiting on the backend
type PendingFlags struct {
	Refreshing  bool    `json:"refreshing"`
	Forwarding  []int64 `json:"forwarding"`
	MarkingRead []int64 `json:"marking_read"`
}

// SelectedRequest is the request open in the detail view
type SelectedRequest struct {
	Request entities.DispatchRequest `json:"request"`
	Pickup  Resolution               `json:"pickup"`
}

// ViewModel is everything the dispatch screen renders
type ViewModel struct {
	Items        []entities.DispatchRequest `json:"items"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"page_size"`
	Total        int                        `json:"total"`
	TotalPages   int                        `json:"total_pages"`
	Criteria     Criteria                   `json:"criteria"`
	Addresses    map[int64]Resolution       `json:"addresses"`
	Selected     *SelectedRequest           `json:"selected,omitempty"`
	Pending      PendingFlags               `json:"pending"`
	Banner       string                     `json:"banner,omitempty"`
	LastLoadedAt *time.Time                 `json:"last_loaded_at,omitempty"`
}

// DispatchCoordinator is one operator session's view of the dispatch list.
// It is the only caller of LifecycleEngine.Forward.
type DispatchCoordinator struct {
	store     *RequestStore
	engine    *LifecycleEngine
	filter    *VisibilityFilter
	geo       *GeoResolver
	hospitals *HospitalDirectory
	repo      repositories.DispatchRepository
	opts      CoordinatorOptions
	locks     *keyedMutex

	mu          sync.Mutex
	actor       entities.ActorContext
	criteria    Criteria
	page        int
	selectedID  int64
	hasSelected bool
	refreshing  int
	forwarding  map[int64]struct{}
	markingRead map[int64]struct{}
	onChange    func(entities.ViewInvalidation)
}

// NewDispatchCoordinator wires a session around its collaborators. geo may
// be shared between sessions.
func NewDispatchCoordinator(
	actor entities.ActorContext,
	repo repositories.DispatchRepository,
	hospitals repositories.HospitalRepository,
	geo *GeoResolver,
	opts CoordinatorOptions,
) *DispatchCoordinator {
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.ForwardTimeout <= 0 {
		opts.ForwardTimeout = 15 * time.Second
	}
	return &DispatchCoordinator{
		store:       NewRequestStore(repo, opts.Metrics),
		engine:      NewLifecycleEngine(repo, opts.Metrics),
		filter:      NewVisibilityFilter(),
		geo:         geo,
		hospitals:   NewHospitalDirectory(hospitals),
		repo:        repo,
		opts:        opts,
		locks:       newKeyedMutex(),
		actor:       actor,
		criteria:    DefaultCriteria(),
		page:        1,
		forwarding:  make(map[int64]struct{}),
		markingRead: make(map[int64]struct{}),
	}
}

// Actor returns the session's acting user
func (c *DispatchCoordinator) Actor() entities.ActorContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actor
}

// UpdateActor swaps in a fresh token for the same user
func (c *DispatchCoordinator) UpdateActor(actor entities.ActorContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actor = actor
}

// OnChange registers fn to be told whenever the session view changes
func (c *DispatchCoordinator) OnChange(fn func(entities.ViewInvalidation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Store exposes the session's request store
func (c *DispatchCoordinator) Store() *RequestStore {
	return c.store
}

func (c *DispatchCoordinator) actorContext(ctx context.Context) (context.Context, entities.ActorContext) {
	actor := c.Actor()
	return entities.ContextWithActor(ctx, actor), actor
}

func (c *DispatchCoordinator) notify(requestID int64, reason string) {
	c.mu.Lock()
	fn := c.onChange
	key := c.actor.SessionKey()
	c.mu.Unlock()
	if fn != nil {
		fn(entities.NewViewInvalidation(key, requestID, reason))
	}
}

// Refresh reloads every request from the backend. A failure keeps the
// previous list on screen and surfaces as the view banner.
func (c *DispatchCoordinator) Refresh(ctx context.Context) error {
	ctx, _ = c.actorContext(ctx)
	ctx, span := observability.StartSpan(ctx, "DispatchCoordinator.Refresh")
	defer span.End()

	c.mu.Lock()
	c.refreshing++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.refreshing--
		c.mu.Unlock()
	}()

	if _, err := c.store.LoadAll(ctx); err != nil {
		observability.RecordError(span, err)
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("dispatch refresh failed, keeping last known list")
		return err
	}
	c.notify(0, ReasonRefreshed)
	return nil
}

// refreshWithRetry is the poller's refresh; a refused token is not retried
func (c *DispatchCoordinator) refreshWithRetry(ctx context.Context) error {
	cfg := retry.RefreshConfig()
	cfg.ShouldRetry = func(err error) bool {
		return !apperrors.IsType(err, apperrors.ErrorTypeUnauthorized)
	}
	logger := observability.LoggerFromContext(entities.ContextWithActor(ctx, c.Actor()))
	return retry.DoWithLog(ctx, cfg, "dispatch refresh", func() error {
		return c.Refresh(ctx)
	}, func(attempt int, err error, next time.Duration) {
		logger.Debug().Err(err).Int("attempt", attempt).Dur("next_delay", next).Msg("retrying dispatch refresh")
	})
}

// StartPolling refreshes now and then every interval until ctx ends
func (c *DispatchCoordinator) StartPolling(ctx context.Context, interval time.Duration) {
	logger := observability.LoggerFromContext(entities.ContextWithActor(ctx, c.Actor()))

	if err := c.refreshWithRetry(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial dispatch refresh failed")
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug().Msg("stopping dispatch poller")
				return
			case <-ticker.C:
				if err := c.refreshWithRetry(ctx); err != nil {
					logger.Warn().Err(err).Msg("periodic dispatch refresh failed")
				}
			}
		}
	}()
	logger.Debug().Dur("interval", interval).Msg("started dispatch poller")
}

// SetCriteria replaces the filter and returns to the first page
func (c *DispatchCoordinator) SetCriteria(criteria Criteria) error {
	criteria = criteria.Normalize()
	if criteria.Tab != TabAll && criteria.Tab != TabUnread {
		return apperrors.NewValidationError(fmt.Sprintf("unknown tab %q", criteria.Tab))
	}
	if criteria.Status != FilterAll && !entities.RequestStatus(criteria.Status).Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown status %q", criteria.Status))
	}
	if criteria.Priority != FilterAll && !entities.Priority(criteria.Priority).Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown priority %q", criteria.Priority))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if criteria != c.criteria {
		c.criteria = criteria
		c.page = 1
	}
	return nil
}

// SetPage moves to page n; View clamps it to the available range
func (c *DispatchCoordinator) SetPage(n int) error {
	if n < 1 {
		return apperrors.NewValidationError("page must be 1 or greater")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = n
	return nil
}

// Select opens a request in the detail view and acknowledges it as read
func (c *DispatchCoordinator) Select(ctx context.Context, requestID int64) (SelectedRequest, error) {
	ctx, actor := c.actorContext(ctx)
	logger := observability.LoggerFromContext(ctx)

	req, ok := c.store.Get(requestID)
	if !ok {
		return SelectedRequest{}, apperrors.NewNotFoundError(fmt.Sprintf("request %d not found", requestID))
	}
	if err := entities.Authorize(actor, entities.CapViewRequest, entities.Target{Request: &req}); err != nil {
		return SelectedRequest{}, err
	}

	c.mu.Lock()
	c.selectedID, c.hasSelected = requestID, true
	c.mu.Unlock()

	pickup := c.resolve(ctx, req)

	if !req.IsRead {
		if err := c.markRead(ctx, actor, req); err != nil {
			logger.Warn().Err(err).Int64("request_id", requestID).Msg("mark read failed, request stays unread")
		}
		if updated, ok := c.store.Get(requestID); ok {
			req = updated
		}
	}

	c.notify(requestID, ReasonSelected)
	return SelectedRequest{Request: req, Pickup: pickup}, nil
}

func (c *DispatchCoordinator) markRead(ctx context.Context, actor entities.ActorContext, req entities.DispatchRequest) error {
	if err := entities.Authorize(actor, entities.CapMarkRead, entities.Target{Request: &req}); err != nil {
		return err
	}

	unlock := c.locks.Lock(req.ID)
	defer unlock()

	if current, ok := c.store.Get(req.ID); ok && current.IsRead {
		return nil
	}

	c.setPending(c.markingRead, req.ID, true)
	defer c.setPending(c.markingRead, req.ID, false)

	err := c.repo.MarkRead(ctx, req.ID)
	outcome := entities.AuditOutcomeSucceeded
	if err != nil {
		outcome = entities.AuditOutcomeFailed
	} else {
		c.store.MarkRead(req.ID)
	}
	c.record(ctx, entities.NewAuditEntry(actor, req.ID, entities.AuditActionMarkRead, outcome), err)
	return err
}

// ClearSelection closes the detail view
func (c *DispatchCoordinator) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedID, c.hasSelected = 0, false
}

// Hospitals lists the forward targets of this session
func (c *DispatchCoordinator) Hospitals(ctx context.Context) ([]entities.Hospital, error) {
	ctx, actor := c.actorContext(ctx)
	return c.hospitals.List(ctx, actor)
}

type forwardResult struct {
	req entities.DispatchRequest
	err error
}

// Forward sends the selected request to hospitalID. Once the backend call
// has started it completes and updates the store even if ctx is cancelled.
func (c *DispatchCoordinator) Forward(ctx context.Context, hospitalID int64) (entities.DispatchRequest, error) {
	ctx, actor := c.actorContext(ctx)

	c.mu.Lock()
	requestID, selected := c.selectedID, c.hasSelected
	_, inFlight := c.forwarding[requestID]
	c.mu.Unlock()

	if !selected {
		return entities.DispatchRequest{}, apperrors.NewPreconditionFailedError(apperrors.ReasonNoSelection, "no request is selected")
	}
	req, ok := c.store.Get(requestID)
	if !ok {
		return entities.DispatchRequest{}, apperrors.NewPreconditionFailedError(apperrors.ReasonNoSelection, fmt.Sprintf("selected request %d is no longer listed", requestID))
	}
	if req.IsForwarded() || inFlight {
		return req, apperrors.NewPreconditionFailedError(apperrors.ReasonAlreadyForwarded, fmt.Sprintf("request %d was already forwarded", requestID))
	}

	hospital, err := c.hospitals.Find(ctx, actor, hospitalID)
	if err != nil {
		return req, err
	}

	c.setPending(c.forwarding, requestID, true)
	c.notify(requestID, ReasonForwarded)

	done := make(chan forwardResult, 1)
	go func() {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ForwardTimeout)
		defer cancel()
		req, err := c.forward(fctx, actor, requestID, hospital)
		c.setPending(c.forwarding, requestID, false)
		c.notify(requestID, ReasonForwarded)
		done <- forwardResult{req: req, err: err}
	}()

	select {
	case res := <-done:
		return res.req, res.err
	case <-ctx.Done():
		return req, ctx.Err()
	}
}

func (c *DispatchCoordinator) forward(ctx context.Context, actor entities.ActorContext, requestID int64, hospital entities.Hospital) (entities.DispatchRequest, error) {
	logger := observability.LoggerFromContext(ctx)

	unlock := c.locks.Lock(requestID)
	defer unlock()

	// Re-read under the lock: a push event may have moved the request on.
	req, ok := c.store.Get(requestID)
	if !ok {
		return entities.DispatchRequest{}, apperrors.NewPreconditionFailedError(apperrors.ReasonNoSelection, fmt.Sprintf("request %d is no longer listed", requestID))
	}

	patch, err := c.engine.Forward(ctx, actor, req, hospital)
	if err != nil {
		outcome := entities.AuditOutcomeRejected
		switch apperrors.ReasonOf(err) {
		case "timeout", "transport failure":
			outcome = entities.AuditOutcomeFailed
		}
		entry := entities.NewAuditEntry(actor, requestID, entities.AuditActionForward, outcome)
		entry.HospitalID = &hospital.ID
		c.record(ctx, entry, err)
		logger.Warn().Err(err).Int64("request_id", requestID).Int64("hospital_id", hospital.ID).Msg("forward refused")
		return req, err
	}

	if _, err := c.store.ApplyPatch(requestID, patch); err != nil {
		// The backend accepted; the next load will carry its view.
		logger.Warn().Err(err).Int64("request_id", requestID).Msg("forward acknowledged but local patch refused")
	}

	entry := entities.NewAuditEntry(actor, requestID, entities.AuditActionForward, entities.AuditOutcomeSucceeded)
	entry.HospitalID = &hospital.ID
	c.record(ctx, entry, nil)

	logger.Info().Int64("request_id", requestID).Int64("hospital_id", hospital.ID).Msg("request forwarded")
	c.announce(ctx, requestID, hospital.ID)
	updated, _ := c.store.Get(requestID)
	return updated, nil
}

// announce publishes the forward for every other session
func (c *DispatchCoordinator) announce(ctx context.Context, requestID, hospitalID int64) {
	if c.opts.Events == nil {
		return
	}
	event := entities.NewDispatchEvent(entities.DispatchEventForwarded, requestID)
	event.HospitalID = hospitalID
	if err := c.opts.Events.Publish(ctx, providers.EventChannelDispatchEvents, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Int64("request_id", requestID).Msg("failed to publish forward event")
	}
}

// record writes a journal entry in the background
func (c *DispatchCoordinator) record(ctx context.Context, entry *entities.AuditEntry, cause error) {
	if c.opts.Audit == nil {
		return
	}
	if cause != nil {
		entry.Reason = apperrors.ReasonOf(cause)
		if entry.Reason == "" {
			entry.Reason = cause.Error()
		}
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	go func() {
		defer cancel()
		if err := c.opts.Audit.Record(actx, entry); err != nil {
			observability.LoggerFromContext(actx).Warn().Err(err).Int64("request_id", entry.RequestID).Msg("audit journal write failed")
		}
	}()
}

// Audit returns the journal for a request the actor may see
func (c *DispatchCoordinator) Audit(ctx context.Context, requestID int64, limit int) ([]*entities.AuditEntry, error) {
	ctx, actor := c.actorContext(ctx)
	req, ok := c.store.Get(requestID)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("request %d not found", requestID))
	}
	if err := entities.Authorize(actor, entities.CapViewAudit, entities.Target{Request: &req}); err != nil {
		return nil, err
	}
	if c.opts.Audit == nil {
		return []*entities.AuditEntry{}, nil
	}
	return c.opts.Audit.ListByRequest(ctx, requestID, limit)
}

// Address returns the pickup resolution of a visible request, starting a
// lookup when none has been made yet
func (c *DispatchCoordinator) Address(ctx context.Context, requestID int64) (Resolution, error) {
	ctx, actor := c.actorContext(ctx)
	req, ok := c.store.Get(requestID)
	if !ok {
		return Resolution{}, apperrors.NewNotFoundError(fmt.Sprintf("request %d not found", requestID))
	}
	if err := entities.Authorize(actor, entities.CapViewRequest, entities.Target{Request: &req}); err != nil {
		return Resolution{}, err
	}
	return c.resolve(ctx, req), nil
}

// RetryAddress looks an unavailable pickup address up again. Other states
// are returned unchanged.
func (c *DispatchCoordinator) RetryAddress(ctx context.Context, requestID int64) (Resolution, error) {
	ctx, actor := c.actorContext(ctx)
	req, ok := c.store.Get(requestID)
	if !ok {
		return Resolution{}, apperrors.NewNotFoundError(fmt.Sprintf("request %d not found", requestID))
	}
	if err := entities.Authorize(actor, entities.CapViewRequest, entities.Target{Request: &req}); err != nil {
		return Resolution{}, err
	}
	if c.geo != nil {
		if res, ok := c.geo.Lookup(requestID); ok && res.State == ResolutionUnavailable {
			c.geo.Invalidate(requestID)
			observability.LoggerFromContext(ctx).Info().Int64("request_id", requestID).Msg("retrying pickup address lookup")
		}
	}
	return c.resolve(ctx, req), nil
}

func (c *DispatchCoordinator) resolve(ctx context.Context, req entities.DispatchRequest) Resolution {
	if c.geo == nil || !req.Pickup.IsCoordinates() {
		return Resolution{State: ResolutionNotApplicable, Address: req.Pickup.Address, Display: req.Pickup.Raw()}
	}
	return c.geo.Resolve(ctx, req.ID, req.Pickup)
}

// ApplyEvent folds a pushed backend event into the list. Events the
// lifecycle cannot apply locally fall back to a full refresh.
func (c *DispatchCoordinator) ApplyEvent(ctx context.Context, event *entities.DispatchEvent) error {
	ctx, _ = c.actorContext(ctx)
	logger := observability.LoggerFromContext(ctx)

	tev, ok := transitionFor(event)
	if !ok {
		return c.Refresh(ctx)
	}

	applied := func() bool {
		unlock := c.locks.Lock(event.RequestID)
		defer unlock()

		req, found := c.store.Get(event.RequestID)
		if !found {
			return false
		}
		after, err := c.engine.Apply(req, tev)
		if err != nil {
			logger.Debug().Err(err).Int64("request_id", event.RequestID).Str("event", string(event.Type)).Msg("pushed event not applicable locally")
			return false
		}
		if _, err := c.store.ApplyPatch(event.RequestID, PatchBetween(req, after)); err != nil {
			return false
		}
		c.opts.Metrics.RecordTransition(ctx, string(tev.Type), "pushed")
		return true
	}()

	if !applied {
		return c.Refresh(ctx)
	}
	c.notify(event.RequestID, ReasonPushed)
	return nil
}

func transitionFor(event *entities.DispatchEvent) (TransitionEvent, bool) {
	tev := TransitionEvent{HospitalID: event.HospitalID, Notes: event.Notes, At: event.Timestamp, Ambulance: event.Ambulance}
	switch event.Type {
	case entities.DispatchEventAssigned:
		tev.Type = EventAssign
	case entities.DispatchEventDispatched:
		tev.Type = EventDispatch
	case entities.DispatchEventArrived:
		tev.Type = EventArrive
	case entities.DispatchEventCancelled:
		tev.Type = EventCancel
	case entities.DispatchEventHospitalAccepted:
		tev.Type = EventHospitalAccept
	case entities.DispatchEventHospitalRejected:
		tev.Type = EventHospitalReject
	default:
		// created and forwarded carry data only a full load has
		return TransitionEvent{}, false
	}
	return tev, true
}

// View renders the current page. Pickup lookups start lazily for the
// displayed items and the selected request only.
func (c *DispatchCoordinator) View(ctx context.Context) ViewModel {
	ctx, actor := c.actorContext(ctx)

	c.mu.Lock()
	criteria := c.criteria
	pageNo := c.page
	selectedID, hasSelected := c.selectedID, c.hasSelected
	pending := PendingFlags{
		Refreshing:  c.refreshing > 0,
		Forwarding:  sortedIDs(c.forwarding),
		MarkingRead: sortedIDs(c.markingRead),
	}
	c.mu.Unlock()

	visible := c.filter.Apply(actor, c.store.Snapshot(), criteria)
	page := Paginate(visible, pageNo, c.opts.PageSize)

	vm := ViewModel{
		Items:      page.Items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Criteria:   criteria,
		Addresses:  make(map[int64]Resolution, len(page.Items)),
		Pending:    pending,
	}
	for _, req := range page.Items {
		vm.Addresses[req.ID] = c.resolve(ctx, req)
	}

	if hasSelected {
		if req, ok := c.store.Get(selectedID); ok && entities.Authorize(actor, entities.CapViewRequest, entities.Target{Request: &req}) == nil {
			vm.Selected = &SelectedRequest{Request: req, Pickup: c.resolve(ctx, req)}
		}
	}

	if loadedAt := c.store.LastLoadedAt(); !loadedAt.IsZero() {
		vm.LastLoadedAt = &loadedAt
	}
	if err := c.store.LastError(); err != nil {
		vm.Banner = bannerFor(err, vm.LastLoadedAt)
	}
	return vm
}

func bannerFor(err error, loadedAt *time.Time) string {
	if apperrors.IsType(err, apperrors.ErrorTypeUnauthorized) {
		return "Your session has expired. Sign in again to see new dispatch requests."
	}
	if loadedAt == nil {
		return "Could not load dispatch requests. Retrying."
	}
	return fmt.Sprintf("Could not refresh dispatch requests. Showing the list from %s.", loadedAt.Format("15:04:05"))
}

func (c *DispatchCoordinator) setPending(set map[int64]struct{}, id int64, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		set[id] = struct{}{}
	} else {
		delete(set, id)
	}
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
