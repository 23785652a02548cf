package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snadboy/revp-provider/internal/discovery"
	"github.com/snadboy/revp-provider/internal/health"
	"github.com/snadboy/revp-provider/internal/hostconfig"
	"github.com/snadboy/revp-provider/internal/sshdocker"
)

func testOrchestrator(t *testing.T, labels map[string]string, ports map[string]string) *discovery.Orchestrator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts:\n  fabric:\n    hostname: fabric.lan\n"), 0o644))
	reg, err := hostconfig.Load(path)
	require.NoError(t, err)

	client := &sshdocker.ClientMock{
		ListFunc: func(ctx context.Context, alias string, filters map[string]string) ([]sshdocker.Container, error) {
			return []sshdocker.Container{{ID: "c1", Name: "uptime-kuma", State: "running"}}, nil
		},
		InspectFunc: func(ctx context.Context, alias, id string) (sshdocker.Detail, error) {
			return sshdocker.Detail{Labels: labels, Ports: ports, State: "running"}, nil
		},
	}
	return discovery.NewOrchestrator(client, reg, filepath.Join(t.TempDir(), "static-routes.yaml"))
}

// TestReconcileHealthTargets verifies the polling bridge between a
// cache's derived health URLs and the checker's monitored set: it
// never imports the health package into discovery, so main must do
// the translation itself on each tick.
func TestReconcileHealthTargets(t *testing.T) {
	orch := testOrchestrator(t, map[string]string{
		"snadboy.revp.3001.domain": "kuma.example.com",
		"snadboy.revp.3001.health": "healthz",
	}, map[string]string{"3001/tcp": "3001"})

	cache := discovery.NewCache(context.Background(), orch, discovery.DebounceWindow)
	defer cache.Close()

	_, err := cache.Get(context.Background(), true)
	require.NoError(t, err)

	checker := health.New(health.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reconcileHealthTargets(ctx, cache, checker, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := checker.Snapshot()["uptime-kuma-3001"]
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	entry := checker.Snapshot()["uptime-kuma-3001"]
	assert.Equal(t, "http://fabric.lan:3001/healthz", entry.HealthURL)
}

func TestListenerSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts:\n  fabric:\n    hostname: fabric.lan\n"), 0o644))
	reg, err := hostconfig.Load(path)
	require.NoError(t, err)

	orch := discovery.NewOrchestrator(&sshdocker.ClientMock{
		ListFunc: func(ctx context.Context, alias string, filters map[string]string) ([]sshdocker.Container, error) {
			return nil, nil
		},
	}, reg, filepath.Join(t.TempDir(), "static-routes.yaml"))
	cache := discovery.NewCache(context.Background(), orch, discovery.DebounceWindow)
	defer cache.Close()

	listeners := map[string]*discovery.EventListener{
		"fabric": discovery.NewEventListener("fabric", &sshdocker.ClientMock{}, cache),
	}

	sources := listenerSources(listeners)
	require.Contains(t, sources, "fabric")
	assert.Equal(t, int64(0), sources["fabric"].EventsReceived())
}

func TestMakeAccessLogWriterDiscardsByDefault(t *testing.T) {
	opts.Logger.Enabled = false
	w, err := makeAccessLogWriter()
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMakeAccessLogWriterRotatesWhenEnabled(t *testing.T) {
	opts.Logger.Enabled = true
	opts.Logger.FileName = filepath.Join(t.TempDir(), "access.log")
	opts.Logger.MaxBackups = 3
	defer func() { opts.Logger.Enabled = false }()

	w, err := makeAccessLogWriter()
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("GET / 200\n"))
	require.NoError(t, err)

	contents, err := os.ReadFile(opts.Logger.FileName)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "GET / 200")
}

func TestSetupLogDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { setupLog(true) })
	assert.NotPanics(t, func() { setupLog(false) })
}
