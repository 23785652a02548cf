// Package diagnostics assembles the read-only aggregate view from
// spec.md §4.10: host status, excluded containers, label/static-route
// errors, cache info, and per-host event-listener stats. It never holds
// a handle back into the cache or the listeners themselves, only the
// narrow read accessors each component already exposes — the one-way
// cache -> diagnostics data flow spec.md §9 calls for.
package diagnostics

import (
	"sort"

	"github.com/snadboy/revp-provider/internal/discovery"
	"github.com/snadboy/revp-provider/internal/health"
	"github.com/snadboy/revp-provider/internal/routing"
)

// ListenerStats is one row of the event-listener table.
type ListenerStats struct {
	Alias          string
	State          string
	EventsReceived int64
}

// listenerSource is the narrow read seam a *discovery.EventListener
// satisfies; kept as an interface so tests can stub it without spinning
// up a real SSH-backed listener.
type listenerSource interface {
	State() discovery.ListenerState
	EventsReceived() int64
}

// ListenerSource is the exported name for listenerSource, so callers
// outside the package can build the map New's listeners argument
// expects without depending on discovery.EventListener directly.
type ListenerSource = listenerSource

// cacheSource is the narrow read seam a *discovery.Cache satisfies.
type cacheSource interface {
	Info() discovery.CacheInfo
	ExcludedContainers() []routing.ExcludedContainer
	LabelErrors() []routing.LabelParseError
	StaticRouteErrors() []routing.StaticRouteError
	ProcessingErrors() []string
}

// hostStatusSource is the narrow read seam *discovery.HostStatusTable satisfies.
type hostStatusSource interface {
	Snapshot() map[string]discovery.HostStatus
}

// healthSource is the narrow read seam *health.Checker satisfies.
type healthSource interface {
	Snapshot() map[string]health.Entry
}

// Aggregator composes the read-only diagnostics view over the running
// system's components. Construct one per process; it holds no state of
// its own beyond references to the components it reads.
type Aggregator struct {
	cache     cacheSource
	hosts     hostStatusSource
	checker   healthSource
	listeners map[string]listenerSource
}

// New builds an Aggregator. listeners maps host alias to its event
// listener.
func New(cache cacheSource, hosts hostStatusSource, checker healthSource, listeners map[string]listenerSource) *Aggregator {
	return &Aggregator{cache: cache, hosts: hosts, checker: checker, listeners: listeners}
}

// Report is the full diagnostics snapshot.
type Report struct {
	Cache             discovery.CacheInfo
	HostStatus        map[string]discovery.HostStatus
	ExcludedContainers []routing.ExcludedContainer
	LabelErrors       []routing.LabelParseError
	StaticRouteErrors []routing.StaticRouteError
	ProcessingErrors  []string
	HealthEntries     map[string]health.Entry
	Listeners         []ListenerStats
}

// Snapshot assembles one Report from the current state of every
// component. Every piece is copied at read time; nothing here can be
// mutated back into the running system.
func (a *Aggregator) Snapshot() Report {
	listeners := make([]ListenerStats, 0, len(a.listeners))
	for alias, l := range a.listeners {
		listeners = append(listeners, ListenerStats{
			Alias:          alias,
			State:          l.State().String(),
			EventsReceived: l.EventsReceived(),
		})
	}
	sort.Slice(listeners, func(i, j int) bool { return listeners[i].Alias < listeners[j].Alias })

	return Report{
		Cache:              a.cache.Info(),
		HostStatus:         a.hosts.Snapshot(),
		ExcludedContainers: a.cache.ExcludedContainers(),
		LabelErrors:        a.cache.LabelErrors(),
		StaticRouteErrors:  a.cache.StaticRouteErrors(),
		ProcessingErrors:   a.cache.ProcessingErrors(),
		HealthEntries:      a.checker.Snapshot(),
		Listeners:          listeners,
	}
}
