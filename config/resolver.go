package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/agentroom/agent"
	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/logging"
)

// ResolverOptions holds dependency overrides passed to NewResolver.
type ResolverOptions struct {
	// Defaults fill interaction settings a scenario omits.
	Defaults InteractionConfig
	Logger   logging.Logger
}

// Resolver loads catalog scenarios and builds their agents. It satisfies
// runner.Resolver.
type Resolver struct {
	catalog  *Catalog
	deps     agent.Deps
	defaults InteractionConfig
	logger   logging.Logger
}

// NewResolver creates a Resolver over catalog. Agents are built with deps.
func NewResolver(catalog *Catalog, deps agent.Deps, optFns ...func(o *ResolverOptions)) *Resolver {
	opts := ResolverOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if deps.Logger == nil {
		deps.Logger = opts.Logger
	}
	return &Resolver{
		catalog:  catalog,
		deps:     deps,
		defaults: opts.Defaults,
		logger:   logging.With(opts.Logger, "component", "resolver"),
	}
}

// Names lists the catalog.
func (r *Resolver) Names() []string { return r.catalog.Names() }

// Resolve loads the named scenario, builds its catalogue agents and resets them.
func (r *Resolver) Resolve(ctx context.Context, name string) (*core.Setup, error) {
	path, err := r.catalog.Path(name)
	if err != nil {
		return nil, err
	}
	sc, err := LoadScenario(path)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", name, err)
	}

	agents, err := agent.NewCatalogue(ctx, sc.Agents, r.deps)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", name, err)
	}

	names := make([]string, 0, len(agents))
	for n := range agents {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		agents[n].Reset()
		r.logger.Debug("resolver.agent.ready", "configuration", name, "agent", n, "kind", agents[n].Kind())
	}

	r.logger.Info("resolver.configuration.loaded", "configuration", name, "path", path, "agents", len(agents))

	return &core.Setup{
		Scenario:    name,
		Agents:      agents,
		Variables:   sc.CoreVariables(),
		Interaction: sc.CoreInteraction(r.defaults),
	}, nil
}
