// Package staticroute loads the file-backed static route table and
// produces routing.RouteIntent values shaped identically to the label
// translator's output, per spec.md §4.4.
package staticroute

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snadboy/revp-provider/internal/routing"
)

// Entry is one static-routes.yaml list item.
type Entry struct {
	Domain        string `yaml:"domain"`
	Target        string `yaml:"target"`
	HTTPS         *bool  `yaml:"https"`
	RedirectHTTPS *bool  `yaml:"redirect-https"`
	Description   string `yaml:"description"`
}

type file struct {
	StaticRoutes []Entry `yaml:"static_routes"`
}

// Result holds everything produced from one static routes file.
type Result struct {
	Intents []routing.RouteIntent
	Errors  []routing.StaticRouteError
}

// Load reads and parses the static routes file at path. A missing file
// is not an error (static routes are optional); it yields an empty
// Result. A present-but-unparseable file is reported as an error.
func Load(path string) (Result, error) {
	var res Result

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("can't read static routes file %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return res, fmt.Errorf("can't parse static routes file %s: %w", path, err)
	}

	for _, e := range f.StaticRoutes {
		if e.Domain == "" || e.Target == "" {
			res.Errors = append(res.Errors, routing.StaticRouteError{
				Entry:   fmt.Sprintf("domain=%q target=%q", e.Domain, e.Target),
				Message: "missing required domain or target",
			})
			continue
		}

		https := true
		if e.HTTPS != nil {
			https = *e.HTTPS
		}
		redirect := true
		if e.RedirectHTTPS != nil {
			redirect = *e.RedirectHTTPS
		}

		res.Intents = append(res.Intents, routing.RouteIntent{
			ServiceName:   ServiceName(e.Domain),
			BackendURL:    e.Target,
			Domains:       []string{e.Domain},
			HTTPSEnabled:  https,
			RedirectHTTPS: redirect,
		})
	}

	return res, nil
}

// ServiceName applies the static-route naming rule from spec.md §4.4 /
// §3: dots become dashes, "*" becomes "wildcard".
func ServiceName(domain string) string {
	name := strings.ReplaceAll(domain, ".", "-")
	name = strings.ReplaceAll(name, "*", "wildcard")
	return "static-" + name
}
