// Package label translates the `snadboy.revp.<port>.<setting>` container
// label namespace into routing.RouteIntent values. Pure transform: no I/O.
package label

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/snadboy/revp-provider/internal/routing"
)

var labelPattern = regexp.MustCompile(`^snadboy\.revp\.(\d+)\.(.+)$`)

// Result is everything the translator produces for one container.
type Result struct {
	Intents       []routing.RouteIntent
	Errors        []routing.LabelParseError
	MatchedLabels []string // every snadboy.revp.* key seen, regardless of outcome
}

// Translate scans a container's labels for the snadboy.revp namespace,
// groups them by internal port, and emits one RouteIntent per port group
// that has a valid `domain` setting. portMap maps "<internal>/tcp" to the
// external port string, as reported by the Remote Docker Client; a port
// with no mapping resolves external = internal (spec.md §4.3.2).
func Translate(labels map[string]string, containerName, resolvedHostname string, portMap map[string]string) Result {
	var res Result

	type portGroup map[string]string
	groups := map[string]portGroup{}
	var ports []string

	for k, v := range labels {
		m := labelPattern.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		res.MatchedLabels = append(res.MatchedLabels, k)
		port := m[1]
		setting := m[2]
		if _, ok := groups[port]; !ok {
			groups[port] = portGroup{}
			ports = append(ports, port)
		}
		groups[port][setting] = v
	}
	sort.Strings(res.MatchedLabels)
	sort.Strings(ports) // deterministic processing order across runs

	for _, port := range ports {
		cfg := groups[port]
		intent, err := translatePort(cfg, port, containerName, resolvedHostname, portMap)
		if err != nil {
			res.Errors = append(res.Errors, routing.LabelParseError{
				Container: containerName,
				Label:     fmt.Sprintf("snadboy.revp.%s.*", port),
				Message:   err.Error(),
			})
			continue
		}
		res.Intents = append(res.Intents, intent)
	}

	return res
}

func translatePort(cfg map[string]string, internalPort, containerName, resolvedHostname string, portMap map[string]string) (routing.RouteIntent, error) {
	domainRaw, ok := cfg["domain"]
	if !ok || strings.TrimSpace(domainRaw) == "" {
		return routing.RouteIntent{}, fmt.Errorf("Missing required 'domain' label for port %s", internalPort)
	}

	domains := splitDomains(domainRaw)

	externalPort := internalPort
	if mapped, ok := portMap[internalPort+"/tcp"]; ok && mapped != "" {
		externalPort = mapped
	}

	backendProto := cfg["backend-proto"]
	if backendProto == "" {
		backendProto = "http"
	}

	backendPath := cfg["backend-path"]
	if backendPath == "" {
		backendPath = "/"
	}
	if !strings.HasPrefix(backendPath, "/") {
		backendPath = "/" + backendPath
	}

	httpsEnabled := parseBoolDefaultTrue(cfg["https"])
	redirectHTTPS := parseBoolDefaultTrue(cfg["redirect-https"])

	// https-certresolver is recognized but inert: wildcard TLS makes
	// per-router cert resolvers unnecessary. Its value is not used, and
	// since a missing domain is the only setting problem this translator
	// reports, the key never causes a label-parse error.
	_ = cfg["https-certresolver"]

	serviceName := fmt.Sprintf("%s-%s", containerName, internalPort)
	backendURL := fmt.Sprintf("%s://%s:%s%s", backendProto, resolvedHostname, externalPort, backendPath)

	healthURL := ""
	if healthPath, ok := cfg["health"]; ok && healthPath != "" {
		if !strings.HasPrefix(healthPath, "/") {
			healthPath = "/" + healthPath
		}
		healthURL = fmt.Sprintf("%s://%s:%s%s", backendProto, resolvedHostname, externalPort, healthPath)
	}

	return routing.RouteIntent{
		ServiceName:   serviceName,
		BackendURL:    backendURL,
		HealthURL:     healthURL,
		Domains:       domains,
		HTTPSEnabled:  httpsEnabled,
		RedirectHTTPS: redirectHTTPS,
	}, nil
}

// splitDomains turns a comma-separated domain list into a trimmed,
// order-preserving slice.
func splitDomains(raw string) []string {
	parts := strings.Split(raw, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			res = append(res, t)
		}
	}
	return res
}

// parseBoolDefaultTrue implements the case-insensitive true/false label
// convention with a default of true when the label is absent or unknown.
func parseBoolDefaultTrue(v string) bool {
	if v == "" {
		return true
	}
	return !strings.EqualFold(v, "false")
}
