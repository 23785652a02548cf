// Package api exposes the routing document and diagnostics over HTTP,
// the sole external interface named in spec.md §6. It holds no state
// of its own: the document source, diagnostics source and health
// checker are all injected narrow interfaces, per spec.md §9's "no
// ambient globals" design note.
package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	log "github.com/go-pkgz/lgr"
	R "github.com/go-pkgz/rest"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snadboy/revp-provider/internal/diagnostics"
	"github.com/snadboy/revp-provider/internal/routing"
)

// documentSource is the narrow read/refresh seam a *discovery.Cache
// satisfies.
type documentSource interface {
	Get(ctx context.Context, forceRefresh bool) (routing.Document, error)
}

// diagnosticsSource is the narrow read seam a *diagnostics.Aggregator
// satisfies.
type diagnosticsSource interface {
	Snapshot() diagnostics.Report
}

// healthSource lets the /health/check handler trigger an out-of-band
// probe; nil-able, since not every deployment wires a health checker.
type healthSource interface {
	CheckNow(ctx context.Context, name string)
}

// RateLimitConfig throttles every endpoint of the server, per client IP.
type RateLimitConfig struct {
	RequestsPerSecond int // 0 disables
}

// Server serves the collaborator HTTP surface: the routing document,
// a diagnostics report, health/metrics endpoints.
type Server struct {
	Listen      string
	Documents   documentSource
	Diagnostics diagnosticsSource
	Health      healthSource // optional
	Version     string
	Metrics     *Metrics
	RateLimit   RateLimitConfig
	AccessLog   io.Writer // optional; defaults to os.Stdout when nil
}

// Run blocks serving until ctx is canceled, then shuts the HTTP server
// down gracefully. Grounded on the teacher's app/mgmt/server.go Run.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Listen,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] api: shutdown error, %v", err)
		}
	}()

	log.Printf("[INFO] api: starting management server on %s", s.Listen)
	err := httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/routes", s.routesCtrl)
	mux.HandleFunc("/diagnostics", s.diagnosticsCtrl)
	if s.Health != nil {
		mux.HandleFunc("/health/check", s.healthCheckCtrl)
	}
	mux.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = s.limiterHandler(handler)
	if s.Metrics != nil {
		handler = s.Metrics.Middleware(handler)
	}
	handler = s.accessLogHandler(handler)

	return R.Wrap(handler,
		R.Recoverer(log.Default()),
		R.AppInfo("revp-provider", "snadboy", s.Version),
		R.Ping,
	)
}

func (s *Server) accessLogHandler(next http.Handler) http.Handler {
	wr := s.AccessLog
	if wr == nil {
		wr = os.Stdout
	}
	return handlers.CombinedLoggingHandler(wr, next)
}

// limiterHandler applies the rate limit separately to each client IP,
// using the tollbooth limiter pattern from the teacher's
// app/proxy/handlers.go. 0 disables it.
func (s *Server) limiterHandler(next http.Handler) http.Handler {
	if s.RateLimit.RequestsPerSecond <= 0 {
		return next
	}
	lmt := tollbooth.NewLimiter(float64(s.RateLimit.RequestsPerSecond), &limiter.ExpirableOptions{DefaultExpirationTTL: time.Minute})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpError := tollbooth.LimitByKeys(lmt, []string{clientIP(r)}); httpError != nil {
			w.Header().Add("Content-Type", "text/plain")
			w.WriteHeader(httpError.StatusCode)
			_, _ = w.Write([]byte(httpError.Message))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// routesCtrl serves the current routing document. The "refresh" query
// parameter, if present, must be a valid bool; anything else is
// request-invalid and answered with a 400 and an empty document shell,
// per spec.md §7.
func (s *Server) routesCtrl(w http.ResponseWriter, r *http.Request) {
	forceRefresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			R.RenderJSON(w, emptyDocument())
			return
		}
		forceRefresh = parsed
	}

	doc, err := s.Documents.Get(r.Context(), forceRefresh)
	if err != nil {
		log.Printf("[WARN] api: document fetch failed, %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		R.RenderJSON(w, emptyDocument())
		return
	}
	R.RenderJSON(w, doc)
}

// emptyDocument is the well-formed-shell response for request-invalid
// and internal-error cases: same JSON structure, no routes.
func emptyDocument() routing.Document {
	return routing.Document{
		HTTP: routing.HTTPConfig{
			Routers:  map[string]routing.Router{},
			Services: map[string]routing.Service{},
		},
	}
}

func (s *Server) diagnosticsCtrl(w http.ResponseWriter, r *http.Request) {
	R.RenderJSON(w, s.Diagnostics.Snapshot())
}

// healthCheckCtrl triggers an out-of-band probe of one service, or all
// of them when "name" is absent.
func (s *Server) healthCheckCtrl(w http.ResponseWriter, r *http.Request) {
	s.Health.CheckNow(r.Context(), r.URL.Query().Get("name"))
	w.WriteHeader(http.StatusAccepted)
}
