package discovery

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/snadboy/revp-provider/internal/sshdocker"
)

// ListenerState names the per-host event listener's position in the
// state machine from spec.md §4.8.
type ListenerState int

// listener states
const (
	ListenerIdle ListenerState = iota
	ListenerConnecting
	ListenerStreaming
	ListenerBackoff
	ListenerStopped
)

func (s ListenerState) String() string {
	switch s {
	case ListenerIdle:
		return "idle"
	case ListenerConnecting:
		return "connecting"
	case ListenerStreaming:
		return "streaming"
	case ListenerBackoff:
		return "backoff"
	case ListenerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// backoffSchedule is spec.md §5's event-listener backoff ladder: 1, 2,
// 4, 8, 16, 32, 60, 60, ... seconds.
var backoffSchedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	16 * time.Second, 32 * time.Second, 60 * time.Second,
}

// backoffDelay returns the delay for the n-th consecutive failure
// (n starts at 0), capped at 60s thereafter.
func backoffDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= len(backoffSchedule) {
		return 60 * time.Second
	}
	return backoffSchedule[n]
}

// relevant reports whether a container-lifecycle event should schedule
// a cache refresh: the event's Type must be "container", its Action one
// of the six routing-relevant ones, and the named container must
// currently back at least one cached service (spec.md §4.8).
func relevant(ev sshdocker.Event, cache *Cache) bool {
	if ev.Type != "container" {
		return false
	}
	if !isRoutingAction(ev.Action) {
		return false
	}
	if ev.ActorName == "" {
		return false
	}
	return cache.HasServiceLike(ev.ActorName)
}

func isRoutingAction(action string) bool {
	switch action {
	case "create", "start", "stop", "die", "destroy", "restart":
		return true
	default:
		return false
	}
}

// EventListener streams Docker lifecycle events for one host and
// schedules a debounced cache refresh whenever a routing-relevant event
// arrives. It runs the IDLE -> CONNECTING -> STREAMING -> (BACKOFF ->
// CONNECTING)* -> STOPPED state machine from spec.md §4.8.
type EventListener struct {
	alias  string
	client sshdocker.Client
	cache  *Cache

	state atomic.Int32 // ListenerState
	received atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEventListener builds a listener for one host alias. It does not
// start streaming until Start is called.
func NewEventListener(alias string, client sshdocker.Client, cache *Cache) *EventListener {
	l := &EventListener{alias: alias, client: client, cache: cache}
	l.state.Store(int32(ListenerIdle))
	return l
}

// State returns the listener's current state, for diagnostics.
func (l *EventListener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// EventsReceived returns the running count of events seen on this host,
// for diagnostics (spec.md §4.10).
func (l *EventListener) EventsReceived() int64 {
	return l.received.Load()
}

// Start runs the listener loop until ctx is canceled or Stop is called.
// It blocks; callers run it in its own goroutine.
func (l *EventListener) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()
	defer close(l.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			l.state.Store(int32(ListenerStopped))
			return
		}

		l.state.Store(int32(ListenerConnecting))
		events, errCh := l.client.Events(ctx, l.alias)

		l.state.Store(int32(ListenerStreaming))
		receivedAny, streamErr := l.drain(ctx, events, errCh)

		if ctx.Err() != nil {
			l.state.Store(int32(ListenerStopped))
			return
		}

		// A stream that yields at least one event before failing has
		// proven the connection healthy; per spec.md §4.8 a successful
		// event read resets the backoff delay to 1s regardless of how
		// the stream later ends.
		if receivedAny {
			failures = 0
		}

		delay := backoffDelay(failures)
		failures++
		l.state.Store(int32(ListenerBackoff))
		log.Printf("[WARN] discovery: event stream for %s failed (%v), retrying in %s", l.alias, streamErr, delay)

		select {
		case <-ctx.Done():
			l.state.Store(int32(ListenerStopped))
			return
		case <-time.After(delay):
		}
	}
}

// drain reads events until the stream ends or ctx is canceled. It
// reports whether at least one event was read, plus the terminal error
// that ended the stream. Per spec.md §4.8, "stream termination (EOF) or
// exception" both move the listener to BACKOFF, so a clean close of the
// events channel with nothing on errCh is reported as io.EOF rather than
// as success; the remote docker events command exiting on its own (no
// transport read error, no collected exit status) must not be mistaken
// for a healthy reconnect-with-no-delay case.
func (l *EventListener) drain(ctx context.Context, events <-chan sshdocker.Event, errCh <-chan error) (receivedAny bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return receivedAny, nil
		case ev, ok := <-events:
			if !ok {
				select {
				case err := <-errCh:
					if err == nil {
						err = io.EOF
					}
					return receivedAny, err
				default:
					return receivedAny, io.EOF
				}
			}
			l.received.Add(1)
			receivedAny = true
			if relevant(ev, l.cache) {
				log.Printf("[DEBUG] discovery: relevant event %s/%s for %s on %s, scheduling refresh",
					ev.Type, ev.Action, ev.ActorName, l.alias)
				l.cache.ScheduleRefresh()
			}
		}
	}
}

// Stop cancels the listener's context and waits for the loop to exit.
func (l *EventListener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
