package sshdocker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want HealthStatus
	}{
		{name: "nil is connected", err: nil, want: HealthConnected},
		{name: "timeout", err: errors.New("dial tcp: i/o timeout"), want: HealthTimeout},
		{name: "permission", err: errors.New("ssh: permission denied (publickey)"), want: HealthPermission},
		{name: "auth treated as permission", err: errors.New("docker: auth failed"), want: HealthPermission},
		{name: "connection refused", err: errors.New("dial tcp 10.0.0.5:22: connection refused"), want: HealthUnreachable},
		{name: "uppercase timeout still matches", err: errors.New("Timeout exceeded"), want: HealthTimeout},
		{name: "unrecognized falls back to error", err: errors.New("something went sideways"), want: HealthError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestSecondsToTime(t *testing.T) {
	assert.True(t, secondsToTime(0).IsZero())
	got := secondsToTime(1700000000)
	assert.Equal(t, int64(1700000000), got.Unix())
	assert.Equal(t, "UTC", got.Location().String())
}

func TestNormalizeState(t *testing.T) {
	cases := map[string]string{
		"running":     "running",
		"RUNNING":     "running",
		"exited":      "stopped",
		"created":     "stopped",
		"paused":      "stopped",
		"dead":        "stopped",
		"restarting":  "stopped",
		"removing":    "stopped",
		"weird-state": "unknown",
		"":            "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeState(in), "input %q", in)
	}
}
