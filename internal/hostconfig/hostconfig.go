// Package hostconfig loads the SSH hosts file and resolves host aliases
// to connection parameters for the remote Docker client.
package hostconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults carries the fallback values applied to any host entry that
// does not set its own user/port/enabled.
type Defaults struct {
	User    string `yaml:"user"`
	Port    int    `yaml:"port"`
	Enabled *bool  `yaml:"enabled"`
}

// Host is a single entry under the `hosts:` map of the SSH hosts file.
type Host struct {
	Alias       string `yaml:"-"`
	Hostname    string `yaml:"hostname"`
	User        string `yaml:"user"`
	Port        int    `yaml:"port"`
	Enabled     *bool  `yaml:"enabled"`
	IsLocal     bool   `yaml:"is_local"`
	Description string `yaml:"description"`
}

// raw mirrors the on-disk YAML shape before defaults are applied.
type raw struct {
	Defaults Defaults        `yaml:"defaults"`
	Hosts    map[string]Host `yaml:"hosts"`
}

// Registry holds the fully-resolved, immutable set of configured hosts.
type Registry struct {
	hosts   map[string]Host
	aliases []string // enabled aliases, in file order
}

// Load reads and parses the SSH hosts YAML file at path, applying
// registry-level defaults to every host entry. Returns a config-invalid
// error (fatal per spec) if the file is missing or unparseable.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config-invalid: can't read hosts file %s: %w", path, err)
	}

	var r raw
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("config-invalid: can't parse hosts file %s: %w", path, err)
	}
	if len(r.Hosts) == 0 {
		return nil, fmt.Errorf("config-invalid: hosts file %s defines no hosts", path)
	}

	defaultEnabled := true
	if r.Defaults.Enabled != nil {
		defaultEnabled = *r.Defaults.Enabled
	}

	reg := &Registry{hosts: make(map[string]Host, len(r.Hosts))}

	// yaml.v3 doesn't preserve map order reliably across implementations,
	// so re-decode into a node to keep the file's declared order for aliases.
	order, err := hostOrder(data)
	if err != nil {
		return nil, fmt.Errorf("config-invalid: can't determine host order in %s: %w", path, err)
	}

	for _, alias := range order {
		h, ok := r.Hosts[alias]
		if !ok {
			continue
		}
		h.Alias = alias
		if h.User == "" {
			h.User = r.Defaults.User
		}
		if h.Port == 0 {
			h.Port = r.Defaults.Port
		}
		enabled := defaultEnabled
		if h.Enabled != nil {
			enabled = *h.Enabled
		}
		h.Enabled = &enabled
		reg.hosts[alias] = h
		if enabled {
			reg.aliases = append(reg.aliases, alias)
		}
	}

	return reg, nil
}

// hostOrder walks the raw YAML document to recover the declaration
// order of the `hosts:` mapping keys, since map[string]Host loses it.
func hostOrder(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "hosts" {
			continue
		}
		hostsNode := root.Content[i+1]
		order := make([]string, 0, len(hostsNode.Content)/2)
		for j := 0; j+1 < len(hostsNode.Content); j += 2 {
			order = append(order, hostsNode.Content[j].Value)
		}
		return order, nil
	}
	return nil, nil
}

// EnabledAliases returns the ordered list of enabled host aliases, in
// the order they were declared in the hosts file.
func (r *Registry) EnabledAliases() []string {
	res := make([]string, len(r.aliases))
	copy(res, r.aliases)
	return res
}

// Resolve returns the hostname (DNS/IP) for a given alias, falling back
// to the alias itself if the host is unknown.
func (r *Registry) Resolve(alias string) string {
	if h, ok := r.hosts[alias]; ok && h.Hostname != "" {
		return h.Hostname
	}
	return alias
}

// Config returns the full host entry for an alias.
func (r *Registry) Config(alias string) (Host, bool) {
	h, ok := r.hosts[alias]
	return h, ok
}
