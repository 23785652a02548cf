package sshdocker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/repeater"

	"github.com/snadboy/revp-provider/internal/hostconfig"
)

// multiClient is the Client implementation wired into the rest of the
// provider: it dispatches each call to either the single shared local
// Docker client or a per-alias remoteHost, and wraps the flaky
// operations (List, Inspect) in a bounded retry, per spec.md §4.2's
// "transient failures are retried a bounded number of times before
// being surfaced" requirement.
type multiClient struct {
	registry *hostconfig.Registry
	repeat   *repeater.Repeater

	mu          sync.Mutex
	local       *localClient
	localErr    error
	localOnce   sync.Once
	remoteHosts map[string]*remoteHost
}

// New builds the Client that the discovery orchestrator and event
// listeners use. It does not dial anything eagerly; connections are
// established lazily, on first use, per host.
func New(registry *hostconfig.Registry) Client {
	return &multiClient{
		registry:    registry,
		repeat:      repeater.NewDefault(3, 500*time.Millisecond),
		remoteHosts: map[string]*remoteHost{},
	}
}

func (m *multiClient) List(ctx context.Context, alias string, filterMap map[string]string) ([]Container, error) {
	var res []Container
	err := m.repeat.Do(ctx, func() error {
		var rerr error
		if m.isLocal(alias) {
			local, lerr := m.localClient()
			if lerr != nil {
				return lerr
			}
			res, rerr = local.List(ctx, filterMap)
			return rerr
		}
		host, herr := m.remoteHost(alias)
		if herr != nil {
			return herr
		}
		res, rerr = host.list(filterMap)
		return rerr
	})
	return res, err
}

func (m *multiClient) Inspect(ctx context.Context, alias, id string) (Detail, error) {
	var res Detail
	err := m.repeat.Do(ctx, func() error {
		var rerr error
		if m.isLocal(alias) {
			local, lerr := m.localClient()
			if lerr != nil {
				return lerr
			}
			res, rerr = local.Inspect(ctx, id)
			return rerr
		}
		host, herr := m.remoteHost(alias)
		if herr != nil {
			return herr
		}
		res, rerr = host.inspect(id)
		return rerr
	})
	return res, err
}

// Events is not retried: it returns a long-lived stream, and the event
// listener's own backoff state machine (spec.md §4.8) owns reconnection
// after the stream ends.
func (m *multiClient) Events(ctx context.Context, alias string) (<-chan Event, <-chan error) {
	if m.isLocal(alias) {
		local, err := m.localClient()
		if err != nil {
			errCh := make(chan error, 1)
			errCh <- err
			close(errCh)
			out := make(chan Event)
			close(out)
			return out, errCh
		}
		return local.Events(ctx)
	}

	host, err := m.remoteHost(alias)
	if err != nil {
		errCh := make(chan error, 1)
		errCh <- err
		close(errCh)
		out := make(chan Event)
		close(out)
		return out, errCh
	}
	return host.events(ctx)
}

func (m *multiClient) isLocal(alias string) bool {
	cfg, ok := m.registry.Config(alias)
	return ok && cfg.IsLocal
}

func (m *multiClient) localClient() (*localClient, error) {
	m.localOnce.Do(func() {
		m.local, m.localErr = newLocalClient()
	})
	return m.local, m.localErr
}

func (m *multiClient) remoteHost(alias string) (*remoteHost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.remoteHosts[alias]; ok {
		return h, nil
	}

	cfg, ok := m.registry.Config(alias)
	if !ok {
		return nil, fmt.Errorf("unknown host alias %q", alias)
	}

	h := newRemoteHost(cfg)
	m.remoteHosts[alias] = h
	return h, nil
}
