// Package health implements the liveness/readiness/runtime-stats HTTP
// surface spec §6 names for the worker, CDC manager, and pruner
// processes: a chi router exposing /healthz, /livez, /readyz, and a
// registry of named checks each process wires its own dependencies into
// (database ping, queue reachability, CDC listener fleet status).
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status is the JSON body /healthz returns.
type Status struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Service   string            `json:"service,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Checker runs a fixed set of named checks and reports process uptime.
type Checker struct {
	mu        sync.RWMutex
	service   string
	startTime time.Time
	checks    map[string]func() error
	ready     *bool
}

func NewChecker(service string) *Checker {
	ready := new(bool)
	return &Checker{service: service, startTime: time.Now(), checks: make(map[string]func() error), ready: ready}
}

// RegisterCheck adds a named check (e.g. "database", "queue", "vault")
// that /healthz runs on every request.
func (c *Checker) RegisterCheck(name string, check func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetReady flips the readiness flag /readyz reports, used by each
// entrypoint once its startup sequence (migrations, listener fleet
// warm-up) has finished.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.ready = ready
}

func (c *Checker) run() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   c.service,
		Uptime:    time.Since(c.startTime).String(),
		Checks:    make(map[string]string, len(c.checks)),
	}
	for name, check := range c.checks {
		if err := check(); err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = err.Error()
			continue
		}
		status.Checks[name] = "ok"
	}
	return status
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Router builds the chi mux every entrypoint mounts at its health port.
func (c *Checker) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := c.run()
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})

	r.Get("/livez", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		c.mu.RLock()
		ready := c.ready != nil && *c.ready
		c.mu.RUnlock()
		if ready {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, RuntimeStats())
	})

	return r
}

// RuntimeStats reports process resource usage via gopsutil for the
// /stats endpoint (§5).
func RuntimeStats() map[string]interface{} {
	stats := map[string]interface{}{}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["mem_used_percent"] = vm.UsedPercent
		stats["mem_used_mb"] = vm.Used / 1024 / 1024
	}
	return stats
}
