// Package discovery implements the orchestrator, cache/debouncer, and
// per-host event listener from spec.md §4.6-§4.8: the pieces that turn
// a fleet of Docker hosts into one routing document and keep it fresh.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/snadboy/revp-provider/internal/hostconfig"
	"github.com/snadboy/revp-provider/internal/label"
	"github.com/snadboy/revp-provider/internal/routing"
	"github.com/snadboy/revp-provider/internal/sshdocker"
	"github.com/snadboy/revp-provider/internal/staticroute"
)

// Orchestrator runs one discovery pass: probe hosts, list and inspect
// containers, translate labels, merge with static routes, and build the
// routing document. It owns no cache state of its own; Cache calls Run
// and installs the result.
type Orchestrator struct {
	client           sshdocker.Client
	registry         *hostconfig.Registry
	staticRoutesPath string
	hostStatus       *HostStatusTable
}

// NewOrchestrator builds an Orchestrator over the given Remote Docker
// Client and host registry. staticRoutesPath may point to a file that
// does not exist yet; staticroute.Load treats that as "no static routes".
func NewOrchestrator(client sshdocker.Client, registry *hostconfig.Registry, staticRoutesPath string) *Orchestrator {
	return &Orchestrator{
		client:           client,
		registry:         registry,
		staticRoutesPath: staticRoutesPath,
		hostStatus:       NewHostStatusTable(),
	}
}

// HostStatusTable exposes the persistent per-host status table for
// diagnostics to read.
func (o *Orchestrator) HostStatusTable() *HostStatusTable {
	return o.hostStatus
}

// Result is everything one discovery pass produces: the document plus
// the per-pass diagnostic buffers from spec.md §4.6 step 1.
type Result struct {
	Document          routing.Document
	ExcludedContainers []routing.ExcludedContainer
	LabelErrors       []routing.LabelParseError
	StaticRouteErrors []routing.StaticRouteError
	ProcessingErrors  []string
	// HealthTargets maps each service that made it into the document to
	// the health URL its "health" label named, or to its backend URL when
	// it has no such label. Carried
	// alongside the document rather than inside it, since the routing
	// document's JSON shape (spec.md §6) has no room for it.
	HealthTargets map[string]string
}

// Run executes one full discovery pass. aliases, if non-empty, restricts
// the pass to those hosts; otherwise every enabled host is probed, in
// enabled_aliases() order (spec.md §4.6 ordering guarantee).
func (o *Orchestrator) Run(ctx context.Context, aliases []string) (Result, error) {
	start := time.Now()

	targets := aliases
	if len(targets) == 0 {
		targets = o.registry.EnabledAliases()
	}

	var res Result
	var allIntents []routing.RouteIntent
	var successHosts, failedHosts []string
	containerCount := 0

	for _, alias := range targets {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		intents, labelErrs, excluded, n, err := o.probeHost(ctx, alias)
		if err != nil {
			failedHosts = append(failedHosts, alias)
			log.Printf("[WARN] discovery: host %s unreachable: %v", alias, err)
			continue
		}
		successHosts = append(successHosts, alias)
		containerCount += n
		allIntents = append(allIntents, intents...)
		res.LabelErrors = append(res.LabelErrors, labelErrs...)
		res.ExcludedContainers = append(res.ExcludedContainers, excluded...)
	}

	staticResult, err := staticroute.Load(o.staticRoutesPath)
	if err != nil {
		res.ProcessingErrors = append(res.ProcessingErrors,
			fmt.Sprintf("static routes: %v", err))
	}
	res.StaticRouteErrors = staticResult.Errors
	allIntents = append(allIntents, staticResult.Intents...)

	cfg, buildErrs := routing.Build(allIntents)
	res.ProcessingErrors = append(res.ProcessingErrors, buildErrs...)

	res.HealthTargets = map[string]string{}
	for _, ri := range allIntents {
		if _, ok := cfg.Services[ri.ServiceName]; !ok {
			continue // dropped as a service-name collision
		}
		healthURL := ri.HealthURL
		if healthURL == "" {
			healthURL = ri.BackendURL // no health label: probe the backend itself
		}
		res.HealthTargets[ri.ServiceName] = healthURL
	}

	res.Document = routing.Document{
		HTTP: cfg,
		Metadata: routing.Metadata{
			GeneratedAt:      start,
			HostsQueried:     targets,
			HostsSuccessful:  successHosts,
			HostsFailed:      failedHosts,
			ContainerCount:   containerCount,
			EnabledServices:  len(cfg.Services),
			ExcludedCount:    len(res.ExcludedContainers),
			StaticRouteCount: len(staticResult.Intents),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}

	return res, nil
}

// probeHost lists and inspects every container on one host, updating
// that host's persistent status entry. A list failure marks the host
// failed and returns early; per-container inspect failures are silently
// skipped (container-inspect-failed, spec.md §7) and do not fail the host.
func (o *Orchestrator) probeHost(ctx context.Context, alias string) (intents []routing.RouteIntent, labelErrs []routing.LabelParseError, excluded []routing.ExcludedContainer, containerCount int, err error) {
	resolvedHostname := o.registry.Resolve(alias)
	attempt := time.Now()

	containers, listErr := o.client.List(ctx, alias, nil)
	if listErr != nil {
		status := sshdocker.ClassifyError(listErr)
		o.hostStatus.update(alias, func(hs HostStatus) HostStatus {
			hs.Alias = alias
			hs.ResolvedHostname = resolvedHostname
			hs.Status = status
			hs.LastAttempt = attempt
			hs.ErrorCount++
			hs.LastError = listErr.Error()
			return hs
		})
		return nil, nil, nil, 0, listErr
	}

	connectMs := time.Since(attempt).Milliseconds()
	var runningNames, stoppedNames, withLabelsNames []string

	for _, c := range containers {
		if c.State == "running" {
			runningNames = append(runningNames, c.Name)
		} else {
			stoppedNames = append(stoppedNames, c.Name)
		}

		detail, inspectErr := o.client.Inspect(ctx, alias, c.ID)
		if inspectErr != nil {
			log.Printf("[DEBUG] discovery: inspect %s on %s failed: %v", c.Name, alias, inspectErr)
			continue
		}
		containerCount++

		result, panicked := safeTranslate(detail.Labels, c.Name, resolvedHostname, detail.Ports)
		labelErrs = append(labelErrs, result.Errors...)

		switch {
		case panicked:
			excluded = append(excluded, routing.ExcludedContainer{
				ContainerID: c.ID, Name: c.Name, Host: alias,
				Reason:  routing.ReasonLabelExtraction,
				Details: result.Errors[0].Message,
			})
		case len(result.Intents) > 0:
			intents = append(intents, result.Intents...)
			withLabelsNames = append(withLabelsNames, c.Name)
		case len(result.MatchedLabels) > 0:
			excluded = append(excluded, routing.ExcludedContainer{
				ContainerID: c.ID, Name: c.Name, Host: alias,
				Reason:  routing.ReasonInvalidLabelConf,
				Details: fmt.Sprintf("matched labels: %v", result.MatchedLabels),
			})
		default:
			excluded = append(excluded, routing.ExcludedContainer{
				ContainerID: c.ID, Name: c.Name, Host: alias,
				Reason: routing.ReasonNoLabels,
			})
		}
	}

	sort.Strings(runningNames)
	sort.Strings(stoppedNames)
	sort.Strings(withLabelsNames)

	o.hostStatus.update(alias, func(hs HostStatus) HostStatus {
		hs.Alias = alias
		hs.ResolvedHostname = resolvedHostname
		hs.Status = sshdocker.HealthConnected
		hs.LastAttempt = attempt
		hs.LastSuccess = attempt
		hs.ConnectionTimeMs = connectMs
		hs.RunningCount = len(runningNames)
		hs.StoppedCount = len(stoppedNames)
		hs.RunningNames = runningNames
		hs.StoppedNames = stoppedNames
		hs.WithLabelsNames = withLabelsNames
		return hs
	})

	return intents, labelErrs, excluded, containerCount, nil
}

// safeTranslate isolates label.Translate from an unexpected panic, per
// spec.md §9's "translator exceptions are recorded as label-extraction-
// error" rule. Translate is a pure function and should never panic; this
// is the one place that distrusts it anyway.
func safeTranslate(labels map[string]string, containerName, resolvedHostname string, portMap map[string]string) (result label.Result, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			result = label.Result{
				Errors: []routing.LabelParseError{{
					Container: containerName,
					Label:     "snadboy.revp.*",
					Message:   fmt.Sprintf("label translation panicked: %v", r),
				}},
			}
		}
	}()
	return label.Translate(labels, containerName, resolvedHostname, portMap), false
}
