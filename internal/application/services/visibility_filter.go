package services

import (
	"strings"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

// Tab selects between every request and unread ones only
type Tab string

const (
	TabAll    Tab = "all"
	TabUnread Tab = "unread"

	// FilterAll disables the status or priority filter.
	FilterAll = "all"

	DefaultPageSize = 10
)

// Criteria is what the operator filters the list by
type Criteria struct {
	Tab      Tab    `json:"tab" validate:"omitempty,oneof=all unread"`
	Search   string `json:"search" validate:"max=200"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// DefaultCriteria shows every request
func DefaultCriteria() Criteria {
	return Criteria{Tab: TabAll, Status: FilterAll, Priority: FilterAll}
}

// Normalize fills blanks with their "all" value and trims the search text
func (c Criteria) Normalize() Criteria {
	if c.Tab == "" {
		c.Tab = TabAll
	}
	if c.Status == "" {
		c.Status = FilterAll
	}
	if c.Priority == "" {
		c.Priority = FilterAll
	}
	c.Search = strings.TrimSpace(c.Search)
	return c
}

// Page is one page of filtered requests
type Page struct {
	Items      []entities.DispatchRequest `json:"items"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"page_size"`
	Total      int                        `json:"total"`
	TotalPages int                        `json:"total_pages"`
}

type requestPredicate func(actor entities.ActorContext, req *entities.DispatchRequest) bool

// VisibilityFilter derives the list an operator sees. Every criterion is an
// independent predicate so the order they are applied in never matters.
type VisibilityFilter struct{}

// NewVisibilityFilter creates a filter
func NewVisibilityFilter() *VisibilityFilter {
	return &VisibilityFilter{}
}

// Apply returns the requests of all that actor may see and that match c,
// newest first.
func (f *VisibilityFilter) Apply(actor entities.ActorContext, all []entities.DispatchRequest, c Criteria) []entities.DispatchRequest {
	predicates := f.predicates(c.Normalize())

	out := make([]entities.DispatchRequest, 0, len(all))
	for i := range all {
		if matchesAll(actor, &all[i], predicates) {
			out = append(out, all[i].Clone())
		}
	}
	sortByRecency(out)
	return out
}

func (f *VisibilityFilter) predicates(c Criteria) []requestPredicate {
	preds := []requestPredicate{inScope}
	if c.Tab == TabUnread {
		preds = append(preds, isUnread)
	}
	if c.Search != "" {
		preds = append(preds, matchesSearch(strings.ToLower(c.Search)))
	}
	if c.Status != FilterAll {
		status := entities.RequestStatus(c.Status)
		preds = append(preds, func(_ entities.ActorContext, req *entities.DispatchRequest) bool {
			return req.Status == status
		})
	}
	if c.Priority != FilterAll {
		priority := entities.Priority(c.Priority)
		preds = append(preds, func(_ entities.ActorContext, req *entities.DispatchRequest) bool {
			return req.Priority == priority
		})
	}
	return preds
}

func matchesAll(actor entities.ActorContext, req *entities.DispatchRequest, preds []requestPredicate) bool {
	for _, pred := range preds {
		if !pred(actor, req) {
			return false
		}
	}
	return true
}

func inScope(actor entities.ActorContext, req *entities.DispatchRequest) bool {
	return entities.Authorize(actor, entities.CapViewRequest, entities.Target{Request: req}) == nil
}

func isUnread(_ entities.ActorContext, req *entities.DispatchRequest) bool {
	return !req.IsRead
}

func matchesSearch(needle string) requestPredicate {
	return func(_ entities.ActorContext, req *entities.DispatchRequest) bool {
		for _, field := range []string{req.Patient.Name, req.EmergencyType, req.Pickup.Raw(), req.IDString()} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	}
}

// Paginate slices items into 1-indexed pages. A page outside the range is
// clamped to the nearest valid page.
func Paginate(items []entities.DispatchRequest, page, size int) Page {
	if size < 1 {
		size = DefaultPageSize
	}
	total := len(items)
	totalPages := (total + size - 1) / size
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page{
		Items:      items[start:end],
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: totalPages,
	}
}
