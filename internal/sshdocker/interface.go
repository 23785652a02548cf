package sshdocker

import "context"

//go:generate moq -out client_mock.go -fmt goimports . Client

// Client is the Remote Docker Client seam from spec.md §4.2. All three
// operations are host-addressed by alias; implementations decide
// per-alias whether that means a local socket or an SSH tunnel.
type Client interface {
	// List enumerates containers on a host. An empty filters map lists
	// everything; {"status": "running"} restricts to running containers.
	List(ctx context.Context, alias string, filters map[string]string) ([]Container, error)

	// Inspect returns normalized label/port/state detail for one
	// container. Labels are never nil in the result even if the remote
	// API reports them as null.
	Inspect(ctx context.Context, alias, id string) (Detail, error)

	// Events opens an infinite, cancellable stream of container
	// lifecycle events already filtered server-side to the six
	// routing-relevant actions. The event channel closes when ctx is
	// canceled or the underlying transport dies for good; errCh carries
	// at most one terminal error before closing.
	Events(ctx context.Context, alias string) (<-chan Event, <-chan error)
}
