// Package health provides liveness and readiness probe endpoints. Readiness
// checks run on demand with a per-check timeout; liveness only reports that
// the process is serving.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. It returns nil when the dependency is
// healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Service aggregates readiness checks behind HTTP probe endpoints.
type Service struct {
	ready  atomic.Bool
	checks []check
}

// New creates an empty health Service. It reports not-ready until SetReady
// is called.
func New() *Service {
	return &Service{}
}

// AddReadinessCheck registers a named dependency check evaluated on every
// readiness probe.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.checks = append(s.checks, check{name: name, timeout: timeout, fn: fn})
}

// SetReady flips the coarse readiness flag, e.g. during graceful drain.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint always reports success while the process serves requests.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
}

// ReadyEndpoint runs all readiness checks and reports 503 when the service
// is draining or any dependency fails.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: "draining"})
		return
	}

	results := make(map[string]string, len(s.checks))
	healthy := true
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		err := c.fn(ctx)
		cancel()
		if err != nil {
			healthy = false
			results[c.name] = err.Error()
		} else {
			results[c.name] = "ok"
		}
	}

	status := http.StatusOK
	resp := probeResponse{Status: "ok", Checks: results}
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "unhealthy"
	}
	writeProbe(w, status, resp)
}

func writeProbe(w http.ResponseWriter, status int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
