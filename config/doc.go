// Package config loads everything the server is configured with.
//
// The server configuration is a YAML file with AGENTROOM_* environment
// overrides, read through koanf. Scenario files describe the agents, steps
// and interaction limits of one configuration and are decoded with yaml.v3
// so step order is kept. The Catalog lists the scenarios a user can pick
// after typing "start": entries of the scenarios map plus every
// CONFIG_<NAME>=<path> environment variable.
//
// A Resolver ties these together for the runner:
//
//	catalog := config.NewCatalog(cfg.Scenarios, nil)
//	resolver := config.NewResolver(catalog, agent.Deps{Models: models, Store: store})
//	setup, err := resolver.Resolve(ctx, "research")
package config
