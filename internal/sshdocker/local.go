package sshdocker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
)

// localClient talks to the Docker Engine API over the local Unix
// socket using the official SDK, the same construction pattern as
// _examples/sasta-kro-corvus-paas's docker.NewClient: FromEnv plus API
// version negotiation. Construction makes no call to the daemon; an
// unreachable socket surfaces on the first List, Inspect or Events.
type localClient struct {
	sdk *dockerclient.Client
}

func newLocalClient() (*localClient, error) {
	sdk, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("can't create local docker client: %w", err)
	}
	return &localClient{sdk: sdk}, nil
}

func (l *localClient) List(ctx context.Context, filterMap map[string]string) ([]Container, error) {
	opts := container.ListOptions{All: true}
	if status, ok := filterMap["status"]; ok {
		args := filters.NewArgs(filters.Arg("status", status))
		opts.Filters = args
	}

	summaries, err := l.sdk.ContainerList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list local containers: %w", err)
	}

	res := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		name := "unknown"
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		res = append(res, Container{
			ID:      s.ID,
			Name:    name,
			Image:   s.Image,
			State:   normalizeState(s.State),
			Status:  s.Status,
			Created: secondsToTime(s.Created),
		})
	}
	return res, nil
}

func (l *localClient) Inspect(ctx context.Context, id string) (Detail, error) {
	info, err := l.sdk.ContainerInspect(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("inspect local container %s: %w", id, err)
	}

	labels := map[string]string{}
	if info.Config != nil && info.Config.Labels != nil {
		labels = info.Config.Labels
	}

	ports := map[string]string{}
	if info.NetworkSettings != nil {
		for internalPort, bindings := range info.NetworkSettings.Ports {
			if len(bindings) == 0 {
				continue
			}
			ports[string(internalPort)] = bindings[0].HostPort
		}
	}

	state := "unknown"
	if info.State != nil {
		state = normalizeState(info.State.Status)
	}

	return Detail{Labels: labels, Ports: ports, State: state}, nil
}

func (l *localClient) Events(ctx context.Context) (<-chan Event, <-chan error) {
	out := make(chan Event)
	errCh := make(chan error, 1)

	args := filters.NewArgs(filters.Arg("type", "container"))
	for _, action := range relevantActions {
		args.Add("event", action)
	}

	msgCh, sdkErrCh := l.sdk.Events(ctx, events.ListOptions{Filters: args})

	go func() {
		defer close(out)
		defer close(errCh)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				out <- Event{
					Type:      string(msg.Type),
					Action:    string(msg.Action),
					ActorID:   msg.Actor.ID,
					ActorName: msg.Actor.Attributes["name"],
					Time:      secondsToTime(msg.Time),
				}
			case err, ok := <-sdkErrCh:
				if !ok {
					return
				}
				if err != nil {
					errCh <- err
				}
				return
			}
		}
	}()

	return out, errCh
}

func normalizeState(s string) string {
	switch strings.ToLower(s) {
	case "running":
		return "running"
	case "exited", "created", "paused", "dead", "restarting", "removing":
		return "stopped"
	default:
		return "unknown"
	}
}
