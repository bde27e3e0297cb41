package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrUnknownConfiguration is returned for a configuration name not in the catalog.
var ErrUnknownConfiguration = errors.New("unknown configuration")

// CatalogEnvPrefix marks environment variables naming scenario files:
// CONFIG_RESEARCH=/etc/agentroom/research.yaml offers "research".
const CatalogEnvPrefix = "CONFIG_"

// Catalog maps selectable configuration names to scenario files.
type Catalog struct {
	paths map[string]string
	names []string
}

// NewCatalog builds a catalog from the given scenarios and CONFIG_* variables
// of environ (os.Environ when nil). Environment entries win over the map.
func NewCatalog(scenarios map[string]string, environ []string) *Catalog {
	if environ == nil {
		environ = os.Environ()
	}

	paths := make(map[string]string, len(scenarios))
	for name, path := range scenarios {
		paths[strings.ToLower(name)] = path
	}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, CatalogEnvPrefix) || value == "" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, CatalogEnvPrefix))
		if name == "" {
			continue
		}
		paths[name] = value
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Catalog{paths: paths, names: names}
}

// Names returns the configuration names, sorted.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Path returns the scenario file for name.
func (c *Catalog) Path(name string) (string, error) {
	path, ok := c.paths[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConfiguration, name)
	}
	return path, nil
}

// Len returns the number of configurations.
func (c *Catalog) Len() int { return len(c.names) }
