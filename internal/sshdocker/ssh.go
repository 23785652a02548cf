package sshdocker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/snadboy/revp-provider/internal/hostconfig"
)

// remoteHost holds the persistent SSH connection to one remote host.
// Docker CLI commands are run over fresh sessions multiplexed on this
// one connection; the event listener keeps one session running for the
// lifetime of its subprocess, per spec.md §4.2.
type remoteHost struct {
	cfg hostconfig.Host

	mu     sync.Mutex
	client *ssh.Client
}

func newRemoteHost(cfg hostconfig.Host) *remoteHost {
	return &remoteHost{cfg: cfg}
}

// connection returns the cached SSH connection, dialing (or re-dialing,
// if the cached one has gone stale) as needed.
func (h *remoteHost) connection() (*ssh.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		// cheap liveness probe: a keepalive request over the transport
		if _, _, err := h.client.SendRequest("keepalive@snadboy", true, nil); err == nil {
			return h.client, nil
		}
		_ = h.client.Close()
		h.client = nil
	}

	config, err := sshClientConfig(h.cfg.User)
	if err != nil {
		return nil, fmt.Errorf("ssh config for %s: %w", h.cfg.Alias, err)
	}

	addr := net.JoinHostPort(h.cfg.Hostname, strconv.Itoa(h.cfg.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s (%s): %w", h.cfg.Alias, addr, err)
	}

	h.client = client
	return client, nil
}

// sshClientConfig builds the client config from the invoking user's SSH
// agent and known_hosts file, the standard non-interactive setup for
// fleet automation (the same authentication shape the Python original's
// Tailscale-SSH transport relies on).
func sshClientConfig(user string) (*ssh.ClientConfig, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set, no ssh-agent available")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("dial ssh-agent: %w", err)
	}
	agentClient := agent.NewClient(conn)

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	hostKeyCallback, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, nil
}

// runDockerCommand executes `docker <args...>` on the remote host over a
// fresh SSH session and returns its stdout.
func (h *remoteHost) runDockerCommand(args ...string) ([]byte, error) {
	client, err := h.connection()
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new ssh session on %s: %w", h.cfg.Alias, err)
	}
	defer session.Close()

	cmd := "docker " + strings.Join(args, " ")
	out, err := session.Output(cmd)
	if err != nil {
		return nil, fmt.Errorf("run %q on %s: %w", cmd, h.cfg.Alias, err)
	}
	return out, nil
}

// streamDockerCommand starts a long-lived `docker <args...>` subprocess
// over the SSH connection and streams its stdout lines on the returned
// channel until ctx is canceled or the stream ends. This is the "one
// long-lived SSH-tunneled subprocess per host" from spec.md §4.2.
func (h *remoteHost) streamDockerCommand(ctx context.Context, args ...string) (<-chan string, <-chan error) {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)
		defer close(errCh)

		client, err := h.connection()
		if err != nil {
			errCh <- err
			return
		}

		session, err := client.NewSession()
		if err != nil {
			errCh <- fmt.Errorf("new ssh session on %s: %w", h.cfg.Alias, err)
			return
		}
		defer session.Close()

		stdout, err := session.StdoutPipe()
		if err != nil {
			errCh <- fmt.Errorf("stdout pipe on %s: %w", h.cfg.Alias, err)
			return
		}

		cmd := "docker " + strings.Join(args, " ")
		if err := session.Start(cmd); err != nil {
			errCh <- fmt.Errorf("start %q on %s: %w", cmd, h.cfg.Alias, err)
			return
		}

		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				_ = session.Signal(ssh.SIGKILL)
				_ = session.Close()
			case <-stop:
			}
		}()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("event stream read on %s: %w", h.cfg.Alias, err)
		}
	}()

	return lines, errCh
}

func (h *remoteHost) list(filterMap map[string]string) ([]Container, error) {
	args := []string{"ps", "-a", "--format", "'{{json .}}'"}
	if status, ok := filterMap["status"]; ok {
		args = append(args, "--filter", "status="+status)
	}

	out, err := h.runDockerCommand(args...)
	if err != nil {
		return nil, err
	}

	var res []Container
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var c cliContainer
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("parse docker ps line on %s: %w", h.cfg.Alias, err)
		}
		res = append(res, c.normalize())
	}
	return res, nil
}

func (h *remoteHost) inspect(id string) (Detail, error) {
	out, err := h.runDockerCommand("inspect", id)
	if err != nil {
		return Detail{}, err
	}

	var parsed []cliInspect
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Detail{}, fmt.Errorf("parse docker inspect on %s: %w", h.cfg.Alias, err)
	}
	if len(parsed) == 0 {
		return Detail{}, fmt.Errorf("docker inspect %s on %s returned nothing", id, h.cfg.Alias)
	}
	return parsed[0].normalize(), nil
}

func (h *remoteHost) events(ctx context.Context) (<-chan Event, <-chan error) {
	args := []string{"events", "--format", "'{{json .}}'", "--filter", "type=container"}
	for _, action := range relevantActions {
		args = append(args, "--filter", "event="+action)
	}

	lines, rawErrCh := h.streamDockerCommand(ctx, args...)
	out := make(chan Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				var ev eventLine
				if err := json.Unmarshal([]byte(line), &ev); err != nil {
					continue // malformed line, skip rather than kill the stream
				}
				out <- Event{
					Type:      ev.Type,
					Action:    ev.Action,
					ActorID:   ev.Actor.ID,
					ActorName: ev.Actor.Attributes.Name,
					Time:      secondsToTime(ev.Time),
				}
			case err, ok := <-rawErrCh:
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

// cliContainer mirrors `docker ps --format '{{json .}}'` output fields.
type cliContainer struct {
	ID        string `json:"ID"`
	Image     string `json:"Image"`
	Names     string `json:"Names"`
	State     string `json:"State"`
	Status    string `json:"Status"`
	CreatedAt string `json:"CreatedAt"`
}

func (c cliContainer) normalize() Container {
	return Container{
		ID:      c.ID,
		Name:    strings.TrimPrefix(c.Names, "/"),
		Image:   c.Image,
		State:   normalizeState(c.State),
		Status:  c.Status,
		Created: parseCLITime(c.CreatedAt),
	}
}

// cliInspect mirrors the subset of `docker inspect` output the
// translator and builder need: labels, published ports, and state.
type cliInspect struct {
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
	NetworkSettings struct {
		Ports map[string][]struct {
			HostPort string `json:"HostPort"`
		} `json:"Ports"`
	} `json:"NetworkSettings"`
	State struct {
		Status string `json:"Status"`
	} `json:"State"`
}

func (c cliInspect) normalize() Detail {
	labels := c.Config.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	ports := map[string]string{}
	for internalPort, bindings := range c.NetworkSettings.Ports {
		if len(bindings) == 0 {
			continue
		}
		ports[internalPort] = bindings[0].HostPort
	}
	return Detail{Labels: labels, Ports: ports, State: normalizeState(c.State.Status)}
}

// eventLine mirrors the wire format from spec.md §6: one JSON object
// per line with Type, Action, Actor.ID, Actor.Attributes.name, time.
type eventLine struct {
	Type  string `json:"Type"`
	Action string `json:"Action"`
	Actor struct {
		ID         string `json:"ID"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"Attributes"`
	} `json:"Actor"`
	Time int64 `json:"time"`
}

func parseCLITime(s string) time.Time {
	// docker ps CreatedAt looks like "2024-05-01 12:00:00 +0000 UTC"
	t, err := time.Parse("2006-01-02 15:04:05 -0700 MST", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
