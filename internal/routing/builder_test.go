package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — HTTPS+redirect
func TestBuildHTTPSRedirect(t *testing.T) {
	cfg, errs := Build([]RouteIntent{{
		ServiceName:   "uptime-kuma-3001",
		BackendURL:    "http://fabric.lan:3001/",
		Domains:       []string{"kuma.example.com"},
		HTTPSEnabled:  true,
		RedirectHTTPS: true,
	}})
	require.Empty(t, errs)

	require.Contains(t, cfg.Services, "uptime-kuma-3001")
	assert.Equal(t, "http://fabric.lan:3001/", cfg.Services["uptime-kuma-3001"].LoadBalancer.Servers[0].URL)

	https, ok := cfg.Routers["uptime-kuma-3001-https-router"]
	require.True(t, ok)
	assert.Equal(t, "Host(`kuma.example.com`)", https.Rule)
	assert.Equal(t, []string{"websecure"}, https.EntryPoints)
	assert.NotNil(t, https.TLS)

	httpR, ok := cfg.Routers["uptime-kuma-3001-http-router"]
	require.True(t, ok)
	assert.Equal(t, []string{"web"}, httpR.EntryPoints)
	assert.Equal(t, []string{"uptime-kuma-3001-redirect-https"}, httpR.Middlewares)

	mw, ok := cfg.Middlewares["uptime-kuma-3001-redirect-https"]
	require.True(t, ok)
	require.NotNil(t, mw.RedirectScheme)
	assert.Equal(t, "https", mw.RedirectScheme.Scheme)
	assert.True(t, mw.RedirectScheme.Permanent)

	assert.Empty(t, CheckIntegrity(cfg))
}

// S2 — HTTP only
func TestBuildHTTPOnly(t *testing.T) {
	cfg, errs := Build([]RouteIntent{{
		ServiceName:   "uptime-kuma-3001",
		BackendURL:    "http://fabric.lan:3001/",
		Domains:       []string{"kuma.example.com"},
		HTTPSEnabled:  false,
		RedirectHTTPS: true,
	}})
	require.Empty(t, errs)

	assert.Len(t, cfg.Routers, 1)
	_, ok := cfg.Routers["uptime-kuma-3001-http-router"]
	assert.True(t, ok)
	assert.Empty(t, cfg.Middlewares)
	assert.Empty(t, CheckIntegrity(cfg))
}

// S3 — multiple domains
func TestBuildMultipleDomains(t *testing.T) {
	cfg, errs := Build([]RouteIntent{{
		ServiceName:   "uptime-kuma-3001",
		BackendURL:    "http://fabric.lan:3001/",
		Domains:       []string{"a.example.com", "b.example.com"},
		HTTPSEnabled:  true,
		RedirectHTTPS: true,
	}})
	require.Empty(t, errs)

	httpsCount, httpCount := 0, 0
	for name := range cfg.Routers {
		switch {
		case name == "uptime-kuma-3001-https-router" || name == "uptime-kuma-3001-https-router-b.example.com":
			httpsCount++
		case name == "uptime-kuma-3001-http-router" || name == "uptime-kuma-3001-http-router-b.example.com":
			httpCount++
		}
	}
	assert.Equal(t, 2, httpsCount)
	assert.Equal(t, 2, httpCount)
	assert.Len(t, cfg.Middlewares, 1)
	assert.Empty(t, CheckIntegrity(cfg))
}

// S5 — static route naming
func TestBuildStaticRouteNaming(t *testing.T) {
	cfg, errs := Build([]RouteIntent{{
		ServiceName:   "static-wildcard-static-example-com",
		BackendURL:    "http://10.0.0.5:80",
		Domains:       []string{"*.static.example.com"},
		HTTPSEnabled:  true,
		RedirectHTTPS: true,
	}})
	require.Empty(t, errs)
	require.Contains(t, cfg.Services, "static-wildcard-static-example-com")
	https, ok := cfg.Routers["static-wildcard-static-example-com-https-router"]
	require.True(t, ok)
	assert.NotNil(t, https.TLS)
	assert.Len(t, cfg.Middlewares, 1)
}

func TestBuildServiceCollisionDropsSecond(t *testing.T) {
	cfg, errs := Build([]RouteIntent{
		{ServiceName: "svc-80", BackendURL: "http://host-a:80/", Domains: []string{"a.example.com"}, HTTPSEnabled: false, RedirectHTTPS: false},
		{ServiceName: "svc-80", BackendURL: "http://host-b:80/", Domains: []string{"b.example.com"}, HTTPSEnabled: false, RedirectHTTPS: false},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "http://host-a:80/", cfg.Services["svc-80"].LoadBalancer.Servers[0].URL)
	_, ok := cfg.Routers["svc-80-http-router-b.example.com"]
	assert.False(t, ok)
}

func TestBuildDeterministic(t *testing.T) {
	intents := []RouteIntent{
		{ServiceName: "svc-1", BackendURL: "http://h:1/", Domains: []string{"one.example.com"}, HTTPSEnabled: true, RedirectHTTPS: true},
		{ServiceName: "svc-2", BackendURL: "http://h:2/", Domains: []string{"two.example.com"}, HTTPSEnabled: true, RedirectHTTPS: false},
	}
	cfg1, _ := Build(intents)
	cfg2, _ := Build(intents)
	assert.Equal(t, cfg1, cfg2)
}
