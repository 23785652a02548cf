package discovery

import (
	"sync"
	"time"

	"github.com/snadboy/revp-provider/internal/sshdocker"
)

// HostStatus is the per-host connectivity record from spec.md §3. Unlike
// the excluded-container and label-error buffers, it persists across
// discovery passes: each pass updates the entry for the hosts it probed
// in place rather than discarding history.
type HostStatus struct {
	Alias            string
	ResolvedHostname string
	Status           sshdocker.HealthStatus
	LastAttempt      time.Time
	LastSuccess      time.Time
	ConnectionTimeMs int64
	ErrorCount       int
	LastError        string
	RunningCount     int
	StoppedCount     int
	RunningNames     []string
	StoppedNames     []string
	WithLabelsNames  []string // containers that produced at least one route this pass
}

// HostStatusTable is the single-writer-per-alias table the orchestrator
// maintains; diagnostics reads it only through Snapshot.
type HostStatusTable struct {
	mu    sync.RWMutex
	hosts map[string]HostStatus
}

// NewHostStatusTable returns an empty table.
func NewHostStatusTable() *HostStatusTable {
	return &HostStatusTable{hosts: map[string]HostStatus{}}
}

// Snapshot returns a copy of the current table, safe for a reader to
// retain or range over without synchronization.
func (t *HostStatusTable) Snapshot() map[string]HostStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make(map[string]HostStatus, len(t.hosts))
	for k, v := range t.hosts {
		res[k] = v
	}
	return res
}

// update replaces the entry for alias, under lock.
func (t *HostStatusTable) update(alias string, fn func(HostStatus) HostStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hosts[alias] = fn(t.hosts[alias])
}
