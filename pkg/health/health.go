// Package health reports whether a service and the dependencies it talks to
// can take traffic. Probes run in parallel, each under its own deadline, and
// the worst result decides the overall status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// severity orders statuses from best to worst.
func (s Status) severity() int {
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

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

const (
	defaultProbeTimeout = 2 * time.Second
	readyTimeout        = 5 * time.Second
)

type probe struct {
	name  string
	check Check
}

// Checker holds the probes registered by a service.
type Checker struct {
	mu           sync.RWMutex
	probes       []probe
	probeTimeout time.Duration
	logger       *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		probeTimeout: defaultProbeTimeout,
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds a probe, replacing any earlier probe of the same name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.probes {
		if c.probes[i].name == name {
			c.probes[i].check = check
			return
		}
	}
	c.probes = append(c.probes, probe{name: name, check: check})
}

// Run probes every registered dependency and aggregates the results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := append([]probe(nil), c.probes...)
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			results[i] = c.runProbe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(probes)),
		Timestamp:  time.Now().UTC(),
	}
	for i, p := range probes {
		report.Components[p.name] = results[i]
		if results[i].Status.severity() > report.Status.severity() {
			report.Status = results[i].Status
		}
	}
	return report
}

func (c *Checker) runProbe(ctx context.Context, p probe) (result ComponentHealth) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("health probe panicked", "probe", p.name, "panic", r)
			result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("probe panicked: %v", r)}
		}
		result.Latency = time.Since(start).Round(time.Millisecond).String()
	}()
	result = p.check(ctx)
	if result.Status != StatusUp {
		c.logger.Warn("health probe not up", "probe", p.name, "status", result.Status, "message", result.Message)
	}
	return result
}

// PingCheck marks the service down while ping fails.
func PingCheck(ping func(ctx context.Context) error) Check {
	return pingAs(ping, StatusDown)
}

// OptionalCheck is PingCheck for dependencies the service can run without.
func OptionalCheck(ping func(ctx context.Context) error) Check {
	return pingAs(ping, StatusDegraded)
}

func pingAs(ping func(ctx context.Context) error, failed Status) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// LiveHandler answers liveness probes without touching dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes. Only a down dependency takes the
// service out of rotation.
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

// Routes mounts the liveness and readiness endpoints.
func (c *Checker) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", c.LiveHandler())
	mux.HandleFunc("GET /health/ready", c.ReadyHandler())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
