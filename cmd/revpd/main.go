package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/snadboy/revp-provider/internal/api"
	"github.com/snadboy/revp-provider/internal/diagnostics"
	"github.com/snadboy/revp-provider/internal/discovery"
	"github.com/snadboy/revp-provider/internal/health"
	"github.com/snadboy/revp-provider/internal/hostconfig"
	"github.com/snadboy/revp-provider/internal/sshdocker"
)

var opts struct {
	HostsFile    string        `short:"f" long:"hosts" env:"HOSTS_FILE" default:"hosts.yaml" description:"path to the SSH hosts registry file"`
	StaticRoutes string        `long:"static-routes" env:"STATIC_ROUTES" default:"static-routes.yaml" description:"path to the static routes file"`
	Debounce     time.Duration `long:"debounce" env:"DEBOUNCE" default:"2s" description:"event-coalescing debounce window"`

	Management struct {
		Enabled   bool   `long:"enabled" env:"ENABLED" description:"enable the management/diagnostics HTTP server"`
		Listen    string `long:"listen" env:"LISTEN" default:"0.0.0.0:8081" description:"listen on host:port"`
		RateLimit int    `long:"rate-limit" env:"RATE_LIMIT" description:"requests/second allowed per client, 0 disables"`
	} `group:"mgmt" namespace:"mgmt" env-namespace:"MGMT"`

	Health struct {
		Interval         time.Duration `long:"interval" env:"INTERVAL" default:"60s" description:"health-check interval"`
		Timeout          time.Duration `long:"timeout" env:"TIMEOUT" default:"5s" description:"health-check request timeout"`
		DegradedMs       int64         `long:"degraded-ms" env:"DEGRADED_MS" default:"3000" description:"response time above which a success counts as DEGRADED"`
		FailureThreshold int           `long:"failure-threshold" env:"FAILURE_THRESHOLD" default:"3" description:"consecutive failures before DOWN"`
	} `group:"health" namespace:"health" env-namespace:"HEALTH"`

	Logger struct {
		StdOut     bool   `long:"stdout" env:"STDOUT" description:"unused; has no effect on logging"`
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated log file"`
		FileName   string `long:"file" env:"FILE" default:"revpd.log" description:"location of the log file"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"unused; the log file rotates at lumberjack's default size of 100MB"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("revpd %s\n", revision)

	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg)
	log.Printf("[DEBUG] options: %+v", opts)

	if err := run(); err != nil {
		log.Fatalf("[ERROR] revpd failed, %v", err)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	// only a missing/unparseable hosts file is fatal (config-invalid,
	// spec.md §7); everything downstream recovers from its own errors.
	registry, err := hostconfig.Load(opts.HostsFile)
	if err != nil {
		return fmt.Errorf("failed to load hosts file: %w", err)
	}

	client := sshdocker.New(registry)
	orchestrator := discovery.NewOrchestrator(client, registry, opts.StaticRoutes)
	cache := discovery.NewCache(ctx, orchestrator, opts.Debounce)
	defer cache.Close()

	log.Printf("[INFO] running initial discovery pass")
	if _, err := cache.Get(ctx, true); err != nil {
		log.Printf("[WARN] initial discovery pass failed, continuing: %v", err)
	}

	checker := health.New(health.Config{
		CheckInterval:       opts.Health.Interval,
		Timeout:             opts.Health.Timeout,
		DegradedThresholdMs: opts.Health.DegradedMs,
		FailureThreshold:    opts.Health.FailureThreshold,
	})
	go checker.Run(ctx)
	go reconcileHealthTargets(ctx, cache, checker, opts.Debounce)

	listeners := map[string]*discovery.EventListener{}
	for _, alias := range registry.EnabledAliases() {
		l := discovery.NewEventListener(alias, client, cache)
		listeners[alias] = l
		go l.Start(ctx)
	}

	aggregator := diagnostics.New(cache, orchestrator.HostStatusTable(), checker, listenerSources(listeners))

	if opts.Management.Enabled {
		accessLog, alErr := makeAccessLogWriter()
		if alErr != nil {
			return fmt.Errorf("failed to set up access log: %w", alErr)
		}
		defer func() {
			if closeErr := accessLog.Close(); closeErr != nil {
				log.Printf("[WARN] can't close access log, %v", closeErr)
			}
		}()

		mgmtSrv := &api.Server{
			Listen:      opts.Management.Listen,
			Documents:   cache,
			Diagnostics: aggregator,
			Health:      checker,
			Version:     revision,
			Metrics:     api.NewMetrics(),
			RateLimit:   api.RateLimitConfig{RequestsPerSecond: opts.Management.RateLimit},
			AccessLog:   accessLog,
		}
		if mgErr := mgmtSrv.Run(ctx); mgErr != nil {
			log.Printf("[WARN] management server failed, %v", mgErr)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

// reconcileHealthTargets periodically reconciles the health checker's
// monitored set against the cache's current health-URL map. A plain
// ticker, not a callback from Cache: keeps the cache -> health edge
// one-way (spec.md §9), with health pulling rather than cache pushing.
func reconcileHealthTargets(ctx context.Context, cache *discovery.Cache, checker *health.Checker, debounce time.Duration) {
	interval := debounce
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			targets := cache.HealthTargets()
			healthTargets := make([]health.Target, 0, len(targets))
			for name, url := range targets {
				healthTargets = append(healthTargets, health.Target{Name: name, HealthURL: url})
			}
			checker.UpdateServices(healthTargets)
		}
	}
}

func listenerSources(listeners map[string]*discovery.EventListener) map[string]diagnostics.ListenerSource {
	res := make(map[string]diagnostics.ListenerSource, len(listeners))
	for alias, l := range listeners {
		res[alias] = l
	}
	return res
}

func makeAccessLogWriter() (io.WriteCloser, error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}
	log.Printf("[INFO] access log enabled at %s", opts.Logger.FileName)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool) {
	if dbg {
		log.Setup(log.Debug, log.CallerFile, log.CallerFunc, log.Msec, log.LevelBraces)
		return
	}
	log.Setup(log.Msec, log.LevelBraces)
}
