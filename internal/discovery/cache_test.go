package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snadboy/revp-provider/internal/hostconfig"
	"github.com/snadboy/revp-provider/internal/sshdocker"
)

func testOrchestratorWithCounter(t *testing.T, delay time.Duration) (*Orchestrator, *atomic.Int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts:\n  fabric:\n    hostname: fabric.lan\n"), 0o644))
	reg, err := hostconfig.Load(path)
	require.NoError(t, err)

	var passes atomic.Int64
	client := &sshdocker.ClientMock{
		ListFunc: func(ctx context.Context, alias string, filters map[string]string) ([]sshdocker.Container, error) {
			passes.Add(1)
			if delay > 0 {
				time.Sleep(delay)
			}
			return nil, nil
		},
		InspectFunc: func(ctx context.Context, alias, id string) (sshdocker.Detail, error) {
			return sshdocker.Detail{}, nil
		},
	}
	return NewOrchestrator(client, reg, filepath.Join(t.TempDir(), "static-routes.yaml")), &passes
}

// TestCacheDebounceCoalescing is scenario S6 / universal property 5: a
// burst of events spaced under D apart produces exactly one discovery
// pass, completing no sooner than D after the last event.
func TestCacheDebounceCoalescing(t *testing.T) {
	orch, passes := testOrchestratorWithCounter(t, 0)
	cache := NewCache(context.Background(), orch, 100*time.Millisecond)
	defer cache.Close()

	lastEvent := time.Now()
	cache.ScheduleRefresh()
	time.Sleep(20 * time.Millisecond)
	cache.ScheduleRefresh()
	time.Sleep(20 * time.Millisecond)
	lastEvent = time.Now()
	cache.ScheduleRefresh()

	deadline := time.After(2 * time.Second)
	for passes.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for debounced pass")
		case <-time.After(10 * time.Millisecond):
		}
	}

	assert.GreaterOrEqual(t, time.Since(lastEvent), 100*time.Millisecond)
	assert.Equal(t, int64(1), passes.Load())
}

// TestCacheGetReturnsCache verifies Get(false) serves the cached copy
// without re-running discovery.
func TestCacheGetReturnsCache(t *testing.T) {
	orch, passes := testOrchestratorWithCounter(t, 0)
	cache := NewCache(context.Background(), orch, DebounceWindow)
	defer cache.Close()

	_, err := cache.Get(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), passes.Load())

	_, err = cache.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), passes.Load(), "Get(false) must not trigger a new pass")
}

// TestCacheExactlyOneInFlight starts a slow pass via ScheduleRefresh and
// issues a force Get while it's running; the force call must wait for
// the in-flight pass rather than starting a second one concurrently.
func TestCacheExactlyOneInFlight(t *testing.T) {
	orch, passes := testOrchestratorWithCounter(t, 150*time.Millisecond)
	cache := NewCache(context.Background(), orch, 10*time.Millisecond)
	defer cache.Close()

	cache.ScheduleRefresh()
	time.Sleep(30 * time.Millisecond) // let the debounce fire and the pass begin

	_, err := cache.Get(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, int64(2), passes.Load(), "exactly two passes: the debounced one and the forced one, never overlapping")
}

func TestCacheInfoReflectsState(t *testing.T) {
	orch, _ := testOrchestratorWithCounter(t, 0)
	cache := NewCache(context.Background(), orch, DebounceWindow)
	defer cache.Close()

	info := cache.Info()
	assert.False(t, info.Cached)

	_, err := cache.Get(context.Background(), true)
	require.NoError(t, err)

	info = cache.Info()
	assert.True(t, info.Cached)
	assert.GreaterOrEqual(t, info.AgeSeconds, 0.0)
}

func TestCacheHealthTargetsEmptyBeforeFirstPass(t *testing.T) {
	orch, _ := testOrchestratorWithCounter(t, 0)
	cache := NewCache(context.Background(), orch, DebounceWindow)
	defer cache.Close()

	assert.Empty(t, cache.HealthTargets())

	_, err := cache.Get(context.Background(), true)
	require.NoError(t, err)
	assert.NotNil(t, cache.HealthTargets())
}
