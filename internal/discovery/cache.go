package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/snadboy/revp-provider/internal/routing"
)

// DebounceWindow is the quiet period spec.md §4.7 requires between the
// last routing-relevant event and the refresh it schedules actually
// running (D = 2s).
const DebounceWindow = 2 * time.Second

// CacheInfo is the cache-shaped slice of diagnostics output (spec.md §4.10).
type CacheInfo struct {
	Cached        bool
	LastUpdate    time.Time
	AgeSeconds    float64
	ServicesCount int
}

// Cache holds the current routing document behind a lock and coalesces
// refresh requests inside a debounce window. It owns the single
// Orchestrator instance that produces new documents; nothing outside
// Cache calls Orchestrator.Run directly, keeping the exactly-one-in-
// flight invariant in one place (spec.md §4.7).
type Cache struct {
	orchestrator *Orchestrator
	debounce     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.RWMutex
	doc              *routing.Document
	updatedAt        time.Time
	excluded         []routing.ExcludedContainer
	labelErrors      []routing.LabelParseError
	staticErrors     []routing.StaticRouteError
	processingErrors []string
	healthTargets    map[string]string

	passMu sync.Mutex

	timerMu sync.Mutex
	timer   *time.Timer

	pendingMu sync.Mutex
	pending   bool
}

// NewCache builds a Cache over the given Orchestrator. parent governs
// the lifetime of any discovery pass started through scheduled refreshes;
// canceling it (via Close) unwinds an in-flight pass.
func NewCache(parent context.Context, orchestrator *Orchestrator, debounce time.Duration) *Cache {
	ctx, cancel := context.WithCancel(parent)
	return &Cache{
		orchestrator: orchestrator,
		debounce:     debounce,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close cancels any in-flight discovery pass and stops the debounce timer.
func (c *Cache) Close() {
	c.cancel()
	c.timerMu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerMu.Unlock()
}

// Get returns the current routing document. With forceRefresh=false and
// a document already cached, it returns a copy immediately; otherwise it
// runs (or waits its turn for) a discovery pass and returns the result.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) (routing.Document, error) {
	if !forceRefresh {
		if doc, ok := c.snapshot(); ok {
			return doc, nil
		}
	}

	c.passMu.Lock()
	defer c.passMu.Unlock()
	if err := c.runPass(ctx); err != nil {
		return routing.Document{}, err
	}
	// a debounce fire that arrived while this pass held the lock is run now
	for {
		c.pendingMu.Lock()
		again := c.pending
		c.pending = false
		c.pendingMu.Unlock()
		if !again {
			break
		}
		if err := c.runPass(c.ctx); err != nil {
			log.Printf("[WARN] discovery: debounced refresh failed: %v", err)
		}
	}
	doc, _ := c.snapshot()
	return doc, nil
}

func (c *Cache) snapshot() (routing.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return routing.Document{}, false
	}
	return *c.doc, true
}

// ScheduleRefresh arms (or re-arms) the debounce timer. Per spec.md
// §4.7: at most one pending timer exists at a time; a new call cancels
// whatever is outstanding and starts the D-second countdown over.
func (c *Cache) ScheduleRefresh() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.onDebounceFire)
}

// onDebounceFire runs when the debounce timer elapses with no further
// events. If a pass is already running (started by a force-refresh or a
// prior debounce fire that hasn't finished yet), this fire is recorded
// as pending rather than running concurrently; the in-flight pass will
// loop around and run once more before releasing the lock, extending
// the tail per spec.md §4.7's invariant.
func (c *Cache) onDebounceFire() {
	if !c.passMu.TryLock() {
		c.pendingMu.Lock()
		c.pending = true
		c.pendingMu.Unlock()
		return
	}
	defer c.passMu.Unlock()

	for {
		if err := c.runPass(c.ctx); err != nil {
			log.Printf("[WARN] discovery: debounced refresh failed: %v", err)
		}
		c.pendingMu.Lock()
		again := c.pending
		c.pending = false
		c.pendingMu.Unlock()
		if !again {
			return
		}
	}
}

// runPass executes exactly one discovery pass and installs the result.
// Callers must hold passMu.
func (c *Cache) runPass(ctx context.Context) error {
	res, err := c.orchestrator.Run(ctx, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	doc := res.Document
	c.doc = &doc
	c.updatedAt = time.Now()
	c.excluded = res.ExcludedContainers
	c.labelErrors = res.LabelErrors
	c.staticErrors = res.StaticRouteErrors
	c.processingErrors = res.ProcessingErrors
	c.healthTargets = res.HealthTargets
	c.mu.Unlock()

	log.Printf("[INFO] discovery: pass complete, %d services, %d excluded, %dms",
		len(doc.HTTP.Services), len(res.ExcludedContainers), doc.Metadata.ProcessingTimeMs)
	return nil
}

// Info reports the cache-shaped diagnostics slice (spec.md §4.10).
func (c *Cache) Info() CacheInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return CacheInfo{Cached: false}
	}
	return CacheInfo{
		Cached:        true,
		LastUpdate:    c.updatedAt,
		AgeSeconds:    time.Since(c.updatedAt).Seconds(),
		ServicesCount: len(c.doc.HTTP.Services),
	}
}

// ExcludedContainers returns the excluded-container buffer from the most
// recently completed discovery pass.
func (c *Cache) ExcludedContainers() []routing.ExcludedContainer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]routing.ExcludedContainer, len(c.excluded))
	copy(res, c.excluded)
	return res
}

// LabelErrors returns the label-parse-error buffer from the most
// recently completed discovery pass.
func (c *Cache) LabelErrors() []routing.LabelParseError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]routing.LabelParseError, len(c.labelErrors))
	copy(res, c.labelErrors)
	return res
}

// StaticRouteErrors returns the static-route-error buffer from the most
// recently completed discovery pass.
func (c *Cache) StaticRouteErrors() []routing.StaticRouteError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]routing.StaticRouteError, len(c.staticErrors))
	copy(res, c.staticErrors)
	return res
}

// ProcessingErrors returns the builder/static-load processing errors
// from the most recently completed discovery pass.
func (c *Cache) ProcessingErrors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]string, len(c.processingErrors))
	copy(res, c.processingErrors)
	return res
}

// HealthTargets returns the service-name -> health-URL map from the
// most recently completed discovery pass, for the health checker to
// reconcile its monitored set against. Cache never imports the health
// package itself; the caller translates this into health.Target values.
func (c *Cache) HealthTargets() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make(map[string]string, len(c.healthTargets))
	for k, v := range c.healthTargets {
		res[k] = v
	}
	return res
}

// HasServiceLike reports whether any currently cached service name has
// containerName as a prefix, or any cached backend URL contains it. The
// event listener uses this to decide whether a lifecycle event for that
// container is routing-relevant (spec.md §4.8).
func (c *Cache) HasServiceLike(containerName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return false
	}
	for name, svc := range c.doc.HTTP.Services {
		if strings.HasPrefix(name, containerName) {
			return true
		}
		for _, srv := range svc.LoadBalancer.Servers {
			if strings.Contains(srv.URL, containerName) {
				return true
			}
		}
	}
	return false
}
