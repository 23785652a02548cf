// Package sshdocker implements the Remote Docker Client abstraction from
// spec.md §4.2: listing containers, inspecting one, and streaming
// lifecycle events, addressed by host alias. Local (is_local) hosts talk
// to the Docker Engine API directly over the Unix socket via the
// official SDK; remote hosts are reached over a persistent SSH
// connection and driven through the docker CLI, one long-lived
// subprocess per host for the event stream (spec.md §4.2).
package sshdocker

import (
	"strings"
	"time"
)

// Container is the normalized container snapshot returned by List. Only
// the fields needed for host-health bookkeeping and routing live here;
// per spec.md §9's design note, normalization happens once, here, and
// nothing downstream re-interprets raw Docker API/CLI shapes.
type Container struct {
	ID      string
	Name    string
	Image   string
	State   string // running, stopped, or unknown
	Status  string
	Created time.Time
}

// Detail is the normalized per-container detail returned by Inspect.
type Detail struct {
	Labels map[string]string
	Ports  map[string]string // "<internal-port>/tcp" -> external port, as strings
	State  string
}

// Event is one normalized Docker lifecycle event from the event stream.
type Event struct {
	Type       string
	Action     string
	ActorID    string
	ActorName  string
	Time       time.Time
}

// relevantActions is the server-side filter spec.md §4.2 requires: the
// event stream only carries these container lifecycle actions.
var relevantActions = []string{"create", "start", "stop", "die", "destroy", "restart"}

// HealthStatus classifies the outcome of a host connectivity probe,
// per spec.md §4.2's failure-classification rule.
type HealthStatus string

// host health states, per spec.md §3
const (
	HealthConnected   HealthStatus = "connected"
	HealthTimeout     HealthStatus = "timeout"
	HealthPermission  HealthStatus = "permission"
	HealthUnreachable HealthStatus = "unreachable"
	HealthError       HealthStatus = "error"
)

// ClassifyError maps a transport error to a HealthStatus by case-
// insensitive text match, exactly as spec.md §4.2 specifies.
func ClassifyError(err error) HealthStatus {
	if err == nil {
		return HealthConnected
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return HealthTimeout
	case strings.Contains(msg, "permission") || strings.Contains(msg, "auth"):
		return HealthPermission
	case strings.Contains(msg, "connection refused"):
		return HealthUnreachable
	default:
		return HealthError
	}
}
