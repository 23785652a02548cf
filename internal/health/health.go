// Package health implements the concurrent backend health checker from
// spec.md §4.9: periodic probing of derived backend URLs with a
// UP/DOWN/DEGRADED/UNKNOWN state machine and status-change callbacks.
package health

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
)

// Status is a monitored service's health state.
type Status int

// health states, per spec.md §3
const (
	StatusUnknown Status = iota
	StatusUP
	StatusDegraded
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusUP:
		return "UP"
	case StatusDegraded:
		return "DEGRADED"
	case StatusDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Target is one service to monitor, as handed in by update_services.
type Target struct {
	Name      string
	HealthURL string
}

// Entry is the per-backend health record from spec.md §3.
type Entry struct {
	Name               string
	HealthURL          string
	Status             Status
	LastCheck          time.Time
	LastSuccess        time.Time
	LastFailure        time.Time
	LastResponseTimeMs int64
	LastHTTPStatus     int
	ConsecutiveSuccess int
	ConsecutiveFailure int
	LastError          string
}

// Config holds the tunables from spec.md §4.9.
type Config struct {
	CheckInterval        time.Duration
	Timeout              time.Duration
	DegradedThresholdMs  int64
	FailureThreshold     int
}

// DefaultConfig matches spec.md §4.9's stated defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:       60 * time.Second,
		Timeout:             5 * time.Second,
		DegradedThresholdMs: 3000,
		FailureThreshold:    3,
	}
}

// StatusChangeFunc is called after a monitored service's status
// transitions. old is the status before this probe; snapshot is a copy
// of the entry as of the transition, never a live handle into the
// checker's state (spec.md §9: callbacks receive opaque snapshots).
type StatusChangeFunc func(name string, snapshot Entry, old Status)

// Checker runs the main probe loop and owns the monitored-service set.
// All access to entries goes through the mutex. Callbacks are invoked by
// the goroutine that ran the probe, after the mutex is released. A tick
// probes each service once, so within a tick a service's callbacks run
// serially; a CheckNow that overlaps a tick is not ordered against it.
type Checker struct {
	cfg Config

	mu        sync.Mutex
	entries   map[string]*Entry
	callbacks []StatusChangeFunc

	client *http.Client
}

// New builds a Checker with the given config. A dedicated *http.Client
// is used with TLS verification disabled, matching spec.md §4.9's "these
// are internal checks" rationale.
func New(cfg Config) *Checker {
	return &Checker{
		cfg:     cfg,
		entries: map[string]*Entry{},
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // internal backend checks only
			},
		},
	}
}

// OnStatusChange registers a callback fired on every state transition.
func (c *Checker) OnStatusChange(fn StatusChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// UpdateServices reconciles the monitored set: new targets are added as
// UNKNOWN, missing ones are dropped, and URL changes are applied without
// resetting the existing counters of a target that merely moved port.
func (c *Checker) UpdateServices(targets []Target) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wanted := make(map[string]Target, len(targets))
	for _, t := range targets {
		wanted[t.Name] = t
	}

	for name := range c.entries {
		if _, ok := wanted[name]; !ok {
			delete(c.entries, name)
		}
	}

	for name, t := range wanted {
		if e, ok := c.entries[name]; ok {
			e.HealthURL = t.HealthURL
			continue
		}
		c.entries[name] = &Entry{Name: name, HealthURL: t.HealthURL, Status: StatusUnknown}
	}
}

// Run blocks, probing every monitored service once per CheckInterval,
// until ctx is canceled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeAll(ctx)
		}
	}
}

// CheckNow forces an out-of-band probe. An empty name probes every
// monitored service; a specific name probes just that one, if known.
func (c *Checker) CheckNow(ctx context.Context, name string) {
	if name == "" {
		c.probeAll(ctx)
		return
	}
	c.mu.Lock()
	_, ok := c.entries[name]
	var url string
	if ok {
		url = c.entries[name].HealthURL
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.probeOne(ctx, name, url)
}

// probeAll fans out one goroutine per monitored URL and waits for all
// to complete, per spec.md §4.9's "probes all monitored URLs concurrently".
func (c *Checker) probeAll(ctx context.Context) {
	c.mu.Lock()
	targets := make([]Target, 0, len(c.entries))
	for name, e := range c.entries {
		targets = append(targets, Target{Name: name, HealthURL: e.HealthURL})
	}
	c.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			c.probeOne(ctx, t.Name, t.HealthURL)
		}(t)
	}
	wg.Wait()
}

// probeOne runs a single probe and applies the spec.md §4.9 state-machine
// rules, firing callbacks if the status changed.
func (c *Checker) probeOne(ctx context.Context, name, healthURL string) {
	if healthURL == "" {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthURL, nil)
	var status int
	var reqErr error
	if err != nil {
		reqErr = err
	} else {
		resp, doErr := c.client.Do(req)
		if doErr != nil {
			reqErr = doErr
		} else {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
	}
	elapsed := time.Since(start)

	c.mu.Lock()
	entry, ok := c.entries[name]
	if !ok {
		c.mu.Unlock()
		return // service was removed between scheduling and completion
	}
	old := entry.Status
	entry.LastCheck = start
	entry.LastResponseTimeMs = elapsed.Milliseconds()
	entry.LastHTTPStatus = status

	success := reqErr == nil && (status < 400 || status == http.StatusUnauthorized || status == http.StatusForbidden)
	if success {
		entry.LastSuccess = start
		entry.LastError = ""
		entry.ConsecutiveSuccess++
		entry.ConsecutiveFailure = 0
		if entry.LastResponseTimeMs > c.cfg.DegradedThresholdMs {
			entry.Status = StatusDegraded
		} else {
			entry.Status = StatusUP
		}
	} else {
		entry.LastFailure = start
		if reqErr != nil {
			entry.LastError = reqErr.Error()
		} else {
			entry.LastError = http.StatusText(status)
		}
		entry.ConsecutiveSuccess = 0
		entry.ConsecutiveFailure++
		switch {
		case entry.ConsecutiveFailure >= c.cfg.FailureThreshold:
			entry.Status = StatusDown
		case old == StatusUP:
			entry.Status = StatusDegraded
		}
	}
	snapshot := *entry
	changed := entry.Status != old
	callbacks := append([]StatusChangeFunc(nil), c.callbacks...)
	c.mu.Unlock()

	if changed {
		log.Printf("[INFO] health: %s %s -> %s", name, old, snapshot.Status)
		for _, cb := range callbacks {
			fireCallback(cb, name, snapshot, old)
		}
	}
}

// fireCallback isolates one callback's panic from the others and from
// the probe loop itself, per spec.md §4.9's "exceptions must be isolated
// per-callback".
func fireCallback(cb StatusChangeFunc, name string, snapshot Entry, old Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] health: status-change callback for %s panicked: %v", name, r)
		}
	}()
	cb(name, snapshot, old)
}

// Snapshot returns a copy of every monitored entry, keyed by name, for
// diagnostics.
func (c *Checker) Snapshot() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make(map[string]Entry, len(c.entries))
	for name, e := range c.entries {
		res[name] = *e
	}
	return res
}
