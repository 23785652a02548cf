package routing

import "fmt"

// Build turns a sequence of route intents into the routers/services/
// middlewares triple. It is pure: no I/O, no clock reads. Intents are
// processed in the order given, which the caller (the discovery
// orchestrator) controls to keep output deterministic per spec.md §4.6.
//
// Two intents sharing a ServiceName collide (spec.md §9's open
// question on service-name collisions is resolved here): the first
// wins, the second is dropped and reported via processingErrors. This
// is the safer of the two documented options and keeps the "service
// names are unique" invariant intact without silently overwriting a
// route a reader would expect to still be routable.
func Build(intents []RouteIntent) (cfg HTTPConfig, processingErrors []string) {
	cfg = HTTPConfig{
		Routers:  map[string]Router{},
		Services: map[string]Service{},
	}
	middlewares := map[string]Middleware{}

	for _, ri := range intents {
		if _, exists := cfg.Services[ri.ServiceName]; exists {
			processingErrors = append(processingErrors, fmt.Sprintf(
				"service name collision: %q already routed, dropping duplicate", ri.ServiceName))
			continue
		}

		cfg.Services[ri.ServiceName] = Service{
			LoadBalancer: LoadBalancer{Servers: []Server{{URL: ri.BackendURL}}},
		}

		for _, domain := range ri.Domains {
			addRouters(&cfg, middlewares, ri, domain)
		}
	}

	if len(middlewares) > 0 {
		cfg.Middlewares = middlewares
	}
	return cfg, processingErrors
}

// addRouters materializes the router(s) for one (service, domain) pair
// according to the route's shape. Multiple domains on one intent share
// the service but each get their own router pair, per spec.md §4.3.6.
func addRouters(cfg *HTTPConfig, middlewares map[string]Middleware, ri RouteIntent, domain string) {
	rule := fmt.Sprintf("Host(`%s`)", domain)
	httpsRouterName := ri.ServiceName + "-https-router"
	httpRouterName := ri.ServiceName + "-http-router"

	// multiple domains produce distinct router names; disambiguate past the first
	if _, taken := cfg.Routers[httpsRouterName]; taken {
		httpsRouterName = fmt.Sprintf("%s-%s", httpsRouterName, domain)
	}
	if _, taken := cfg.Routers[httpRouterName]; taken {
		httpRouterName = fmt.Sprintf("%s-%s", httpRouterName, domain)
	}

	switch ri.Of() {
	case ShapeHTTPSRedirect:
		cfg.Routers[httpsRouterName] = Router{
			Rule: rule, Service: ri.ServiceName, EntryPoints: []string{"websecure"}, TLS: &TLSOptions{},
		}
		redirectMiddleware := ri.ServiceName + "-redirect-https"
		middlewares[redirectMiddleware] = Middleware{
			RedirectScheme: &RedirectScheme{Scheme: "https", Permanent: true},
		}
		cfg.Routers[httpRouterName] = Router{
			Rule: rule, Service: ri.ServiceName, EntryPoints: []string{"web"},
			Middlewares: []string{redirectMiddleware},
		}
	case ShapeHTTPSAndHTTP:
		cfg.Routers[httpRouterName] = Router{
			Rule: rule, Service: ri.ServiceName, EntryPoints: []string{"web"},
		}
		cfg.Routers[httpsRouterName] = Router{
			Rule: rule, Service: ri.ServiceName, EntryPoints: []string{"websecure"}, TLS: &TLSOptions{},
		}
	case ShapeHTTPOnly:
		cfg.Routers[httpRouterName] = Router{
			Rule: rule, Service: ri.ServiceName, EntryPoints: []string{"web"},
		}
	}
}

// CheckIntegrity validates the universal referential-integrity property
// from spec.md §8.1: every router's service exists, and every
// middleware a router names exists.
func CheckIntegrity(cfg HTTPConfig) []string {
	var problems []string
	for name, r := range cfg.Routers {
		if _, ok := cfg.Services[r.Service]; !ok {
			problems = append(problems, fmt.Sprintf("router %q references missing service %q", name, r.Service))
		}
		for _, mw := range r.Middlewares {
			if _, ok := cfg.Middlewares[mw]; !ok {
				problems = append(problems, fmt.Sprintf("router %q references missing middleware %q", name, mw))
			}
		}
	}
	return problems
}
