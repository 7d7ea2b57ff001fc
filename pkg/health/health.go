// Package health aggregates dependency probes behind Kubernetes-style
// liveness and readiness endpoints. Liveness only proves the process serves
// HTTP; readiness runs every registered check and refuses traffic while any
// component is down.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status of one component or of the whole process.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// rank orders statuses from healthiest to worst so reports can take a max.
func (s Status) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is one check's outcome. Took is filled in by Run.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Took    string `json:"took,omitempty"`
}

// Report is what the readiness endpoint serves.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  string                     `json:"checked_at"`
}

// Checker holds the registered checks. Registration happens during startup;
// Run may be called from any number of request goroutines afterwards.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds check under name, replacing any previous check with the same
// name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

type namedResult struct {
	name   string
	health ComponentHealth
}

// Run probes every registered check concurrently and folds the results into
// one Report whose status is the worst component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	launched := len(c.checks)
	results := make(chan namedResult, launched)
	for name, check := range c.checks {
		go func() {
			started := time.Now()
			h := check(ctx)
			h.Took = time.Since(started).Round(time.Millisecond).String()
			results <- namedResult{name: name, health: h}
		}()
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, launched),
		CheckedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for i := 0; i < launched; i++ {
		r := <-results
		report.Components[r.name] = r.health
		if r.health.Status.rank() > report.Status.rank() {
			report.Status = r.health.Status
		}
	}
	return report
}

// PingCheck lifts an error-returning probe into a Check: nil is up, anything
// else is down with the error text.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// LiveHandler answers liveness probes. Reaching the handler at all is the
// signal, so it never consults the checks.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

const readyTimeout = 5 * time.Second

// ReadyHandler answers readiness probes with the full Report as the body.
// Only a down component fails readiness; degraded ones still serve, so they
// are reported without refusing traffic.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		report := c.Run(ctx)
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
