// Package health runs the coordinator's periodic health checks and serves
// the snapshot behind /health.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/iris-network/iris/internal/infra/registry"
	"github.com/iris-network/iris/internal/infra/sqlite"
	"github.com/iris-network/iris/internal/infra/stream"
)

// Check is a single named probe.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status is the result of one probe.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report is the full snapshot served to clients.
type Report struct {
	Healthy        bool     `json:"healthy"`
	Checks         []Status `json:"checks"`
	NodesConnected int      `json:"nodes_connected"`
	NodesOnline    int      `json:"nodes_online"`
	StreamSessions int      `json:"stream_sessions"`
}

// Checker runs health probes, periodically in the background and on demand
// for the /health endpoint.
type Checker struct {
	registry *registry.Registry
	hub      *stream.Hub
	interval time.Duration

	mu       sync.RWMutex
	statuses []Status
	checks   []Check
}

// NewChecker creates a checker over the coordinator's core dependencies.
// An empty worker pool is reported but does not make the coordinator
// unhealthy; it is a normal state right after startup.
func NewChecker(db *sqlite.DB, reg *registry.Registry, hub *stream.Hub, dataDir string) *Checker {
	return &Checker{
		registry: reg,
		hub:      hub,
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(context.Context) error {
					return checkDataDir(dataDir)
				},
			},
		},
	}
}

// Run starts the periodic check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

// Check runs every probe now and returns the full report.
func (c *Checker) Check(ctx context.Context) Report {
	c.runAll(ctx)

	report := Report{Healthy: true, Checks: c.Statuses()}
	for _, s := range report.Checks {
		if !s.Healthy {
			report.Healthy = false
		}
	}
	if c.registry != nil {
		report.NodesConnected, report.NodesOnline = c.registry.Counts()
	}
	if c.hub != nil {
		report.StreamSessions = c.hub.Len()
	}
	return report
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest probe results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Status, len(c.statuses))
	copy(out, c.statuses)
	return out
}

// IsHealthy reports whether every probe passed on the last run.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}
