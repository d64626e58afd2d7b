package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name     string
	check    HealthCheck
	critical bool
}

// HealthHandler answers /health. A failing critical check makes the
// instance unready; other failures only mark it degraded.
type HealthHandler struct {
	timeout time.Duration
	checks  []namedCheck
}

// NewHealthHandler creates a handler that gives every check timeout to answer
func NewHealthHandler(timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{timeout: timeout}
}

// Register adds a dependency check. Call before serving.
func (h *HealthHandler) Register(name string, critical bool, check HealthCheck) {
	h.checks = append(h.checks, namedCheck{name: name, check: check, critical: critical})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every check concurrently
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make([]error, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.check(ctx)
		}()
	}
	wg.Wait()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for i, c := range h.checks {
		if results[i] == nil {
			resp.Checks[c.name] = "ok"
			continue
		}
		resp.Checks[c.name] = results[i].Error()
		if c.critical {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		} else if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	respondWithJSON(w, code, resp)
}

// CheckNames lists the registered checks in name order
func (h *HealthHandler) CheckNames() []string {
	names := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}
