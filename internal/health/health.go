package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the reported state of the agent or one of its components.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Component reports the state of one registered readiness check.
// Params: status and optional failure message.
// Returns: JSON fragment of the probe response.
type Component struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body returned by both probe endpoints.
// Params: overall status, per-component detail, response timestamp.
// Returns: serialized probe result.
type Response struct {
	Status     Status               `json:"status"`
	Components map[string]Component `json:"components,omitempty"`
	Timestamp  string               `json:"timestamp"`
}

// CheckFunc reports component health.
// Params: none.
// Returns: nil when healthy, descriptive error otherwise.
type CheckFunc func() error

// Checker serves liveness and readiness probes for the agent.
// Params: registered named readiness checks.
// Returns: probe HTTP handlers.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	shuttingDown atomic.Bool
}

// New creates an empty health checker.
// Params: none.
// Returns: checker ready for registration.
func New() *Checker {
	return &Checker{checks: make(map[string]CheckFunc)}
}

// RegisterReadiness registers one named readiness check evaluated per /ready request.
// Params: name component name; check health probe function.
// Returns: none.
func (c *Checker) RegisterReadiness(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetShuttingDown flips both probes to 503 for the rest of the process lifetime.
// Params: none.
// Returns: none.
func (c *Checker) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// LiveHandler serves the /live endpoint: process up and not shutting down.
// Params: none.
// Returns: HTTP handler.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if c.shuttingDown.Load() {
			writeResponse(w, http.StatusServiceUnavailable, shutdownResponse())
			return
		}
		writeResponse(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadyHandler serves the /ready endpoint by running every registered check.
// Params: none.
// Returns: HTTP handler answering 503 when any check fails.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if c.shuttingDown.Load() {
			writeResponse(w, http.StatusServiceUnavailable, shutdownResponse())
			return
		}

		c.mu.RLock()
		checks := make(map[string]CheckFunc, len(c.checks))
		for name, check := range c.checks {
			checks[name] = check
		}
		c.mu.RUnlock()

		overall := StatusUp
		components := make(map[string]Component, len(checks))
		for name, check := range checks {
			if err := check(); err != nil {
				overall = StatusDown
				components[name] = Component{Status: StatusDown, Message: err.Error()}
				continue
			}
			components[name] = Component{Status: StatusUp}
		}

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, Response{
			Status:     overall,
			Components: components,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// shutdownResponse builds the probe body used while shutting down.
// Params: none.
// Returns: down response naming the process component.
func shutdownResponse() Response {
	return Response{
		Status:    StatusDown,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]Component{
			"process": {Status: StatusDown, Message: "shutting down"},
		},
	}
}

// writeResponse serializes one probe response.
// Params: w response writer; code HTTP status; resp probe body.
// Returns: none.
func writeResponse(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
