package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/repositories"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

// requestSnapshot is immutable once published
type requestSnapshot struct {
	byID    map[int64]entities.DispatchRequest
	order   []int64
	version uint64
}

func (s *requestSnapshot) get(id int64) (entities.DispatchRequest, bool) {
	req, ok := s.byID[id]
	return req, ok
}

// RequestStore holds the last-known-good list of dispatch requests for one
// session. Readers never block: every write publishes a new snapshot.
type RequestStore struct {
	repo    repositories.DispatchRepository
	metrics *observability.Metrics

	snapshot atomic.Pointer[requestSnapshot]

	mu           sync.Mutex
	readIDs      map[int64]struct{}
	lastErr      error
	lastLoadedAt time.Time
}

// NewRequestStore creates an empty store fed by repo
func NewRequestStore(repo repositories.DispatchRepository, metrics *observability.Metrics) *RequestStore {
	s := &RequestStore{
		repo:    repo,
		metrics: metrics,
		readIDs: make(map[int64]struct{}),
	}
	s.snapshot.Store(&requestSnapshot{byID: map[int64]entities.DispatchRequest{}})
	return s
}

// LoadAll fetches every request from the backend and replaces the snapshot.
// Loads may overlap; whichever completes last is the one left in place. On
// failure the previous snapshot is kept and a FETCH error returned.
func (s *RequestStore) LoadAll(ctx context.Context) ([]entities.DispatchRequest, error) {
	start := time.Now()
	fetched, err := s.repo.ListRequests(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeFetch) && !apperrors.IsType(err, apperrors.ErrorTypeUnauthorized) {
			err = apperrors.NewFetchError("load dispatch requests", err)
		}
		s.lastErr = err
		s.metrics.RecordRefresh(ctx, "failed", time.Since(start))
		return nil, err
	}

	next := s.merge(s.snapshot.Load(), fetched)
	s.snapshot.Store(next)
	s.lastErr = nil
	s.lastLoadedAt = time.Now()
	s.metrics.RecordRefresh(ctx, "succeeded", time.Since(start))

	return next.list(), nil
}

// merge builds the replacement snapshot. Caller holds s.mu.
func (s *RequestStore) merge(prev *requestSnapshot, fetched []entities.DispatchRequest) *requestSnapshot {
	next := &requestSnapshot{
		byID:    make(map[int64]entities.DispatchRequest, len(fetched)),
		order:   make([]int64, 0, len(fetched)),
		version: prev.version + 1,
	}
	for _, req := range fetched {
		req = req.Clone()
		req.Normalize()

		if old, ok := prev.get(req.ID); ok {
			// A slower replica can lag behind a terminal state we already saw.
			// A forward record means the request never reached one.
			if old.Status.IsTerminal() && !req.Status.IsTerminal() && !req.IsForwarded() {
				req.Status = old.Status
			}
			req.OwnerState = old.OwnerState
			req.CreatedAt = old.CreatedAt
		}
		if req.IsRead {
			s.readIDs[req.ID] = struct{}{}
		} else if _, read := s.readIDs[req.ID]; read {
			req.IsRead = true
		}

		if _, dup := next.byID[req.ID]; !dup {
			next.order = append(next.order, req.ID)
		}
		next.byID[req.ID] = req
	}
	return next
}

func (s *requestSnapshot) list() []entities.DispatchRequest {
	out := make([]entities.DispatchRequest, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// publish copies the current snapshot with one request replaced. Caller holds s.mu.
func (s *RequestStore) publish(req entities.DispatchRequest) {
	prev := s.snapshot.Load()
	next := &requestSnapshot{
		byID:    make(map[int64]entities.DispatchRequest, len(prev.byID)),
		order:   prev.order,
		version: prev.version + 1,
	}
	for id, existing := range prev.byID {
		next.byID[id] = existing
	}
	next.byID[req.ID] = req
	s.snapshot.Store(next)
}

// ApplyPatch merges backend-confirmed fields into one request. It reports
// false for an unknown id. A status change the lifecycle does not allow is
// refused and leaves the request untouched.
func (s *RequestStore) ApplyPatch(requestID int64, patch entities.RequestPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.snapshot.Load().get(requestID)
	if !ok {
		return false, nil
	}
	if patch.IsEmpty() {
		return true, nil
	}

	updated := current.Clone()
	if patch.Status != nil && *patch.Status != current.Status {
		if !entities.CanTransition(current.Status, *patch.Status) {
			return false, apperrors.NewPreconditionFailedError(
				apperrors.ReasonIllegalTransition,
				fmt.Sprintf("request %d cannot move from %s to %s", requestID, current.Status, *patch.Status),
			)
		}
		updated.Status = *patch.Status
	}
	if patch.Forward != nil {
		fwd := *patch.Forward
		updated.Forward = &fwd
	}
	if patch.AssignedAmbulance != nil {
		amb := *patch.AssignedAmbulance
		updated.AssignedAmbulance = &amb
	}
	updated = updated.Clone()
	updated.Normalize()

	s.publish(updated)
	return true, nil
}

// MarkRead flips isRead to true. It reports whether anything changed.
func (s *RequestStore) MarkRead(requestID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.snapshot.Load().get(requestID)
	s.readIDs[requestID] = struct{}{}
	if !ok || current.IsRead {
		return false
	}
	updated := current.Clone()
	updated.IsRead = true
	s.publish(updated)
	return true
}

// Snapshot returns a copy of every request in backend order
func (s *RequestStore) Snapshot() []entities.DispatchRequest {
	return s.snapshot.Load().list()
}

// Get returns a copy of one request
func (s *RequestStore) Get(requestID int64) (entities.DispatchRequest, bool) {
	req, ok := s.snapshot.Load().get(requestID)
	if !ok {
		return entities.DispatchRequest{}, false
	}
	return req.Clone(), true
}

// Version increases with every published snapshot
func (s *RequestStore) Version() uint64 {
	return s.snapshot.Load().version
}

// LastError is the error of the most recent load, nil after a success
func (s *RequestStore) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastLoadedAt is when the snapshot was last replaced by a load
func (s *RequestStore) LastLoadedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLoadedAt
}

// sortByRecency orders newest first, ties broken by id descending
func sortByRecency(items []entities.DispatchRequest) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
