package sshdocker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIContainerNormalize(t *testing.T) {
	c := cliContainer{
		ID:        "abc123",
		Image:     "nginx:latest",
		Names:     "/web-1",
		State:     "running",
		Status:    "Up 3 hours",
		CreatedAt: "2024-05-01 12:00:00 +0000 UTC",
	}
	got := c.normalize()
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "web-1", got.Name)
	assert.Equal(t, "running", got.State)
	assert.Equal(t, "Up 3 hours", got.Status)
	assert.Equal(t, 2024, got.Created.Year())
}

func TestParseCLITimeInvalid(t *testing.T) {
	assert.True(t, parseCLITime("not-a-time").IsZero())
}

func TestCLIInspectNormalize(t *testing.T) {
	c := cliInspect{}
	c.Config.Labels = map[string]string{"snadboy.revp.80.domain": "example.com"}
	c.NetworkSettings.Ports = map[string][]struct {
		HostPort string `json:"HostPort"`
	}{
		"80/tcp": {{HostPort: "8080"}},
		"443/tcp": {},
	}
	c.State.Status = "running"

	got := c.normalize()
	require.Equal(t, "example.com", got.Labels["snadboy.revp.80.domain"])
	assert.Equal(t, "8080", got.Ports["80/tcp"])
	_, has443 := got.Ports["443/tcp"]
	assert.False(t, has443, "binding with no host port should be skipped")
	assert.Equal(t, "running", got.State)
}

func TestCLIInspectNormalizeNilLabels(t *testing.T) {
	c := cliInspect{}
	got := c.normalize()
	assert.NotNil(t, got.Labels)
	assert.Empty(t, got.Labels)
}

func TestEventLineUnmarshalsExpectedShape(t *testing.T) {
	// sanity check that the struct tags line up with the documented wire
	// format: Type, Action, Actor.ID, Actor.Attributes.name, time.
	raw := []byte(`{"Type":"container","Action":"start","Actor":{"ID":"abc","Attributes":{"name":"web-1"}},"time":1700000000}`)
	var ev eventLine
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "container", ev.Type)
	assert.Equal(t, "start", ev.Action)
	assert.Equal(t, "abc", ev.Actor.ID)
	assert.Equal(t, "web-1", ev.Actor.Attributes.Name)
	assert.Equal(t, int64(1700000000), ev.Time)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), secondsToTime(ev.Time))
}
