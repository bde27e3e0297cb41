package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentroom"
	"github.com/hupe1980/agentroom/agent"
	"github.com/hupe1980/agentroom/config"
	"github.com/hupe1980/agentroom/engine"
	"github.com/hupe1980/agentroom/gateway"
	"github.com/hupe1980/agentroom/logging"
	"github.com/hupe1980/agentroom/tool"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation server",
		Long: `Run the HTTP server. Scenario files are offered from the scenarios
section of the configuration and from CONFIG_<NAME>=<path> environment
variables.

Examples:
  agentroom serve --config agentroom.yaml
  CONFIG_RESEARCH=./scenarios/research.yaml agentroom serve --addr :9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, flush, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closer, err := config.BuildRecordStore(ctx, cfg.Memory)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer closer.Close()

	models, err := config.BuildModels(cfg.Models)
	if err != nil {
		return err
	}

	catalog := config.NewCatalog(cfg.Scenarios, nil)
	if catalog.Len() == 0 {
		logger.Warn("serve.catalog.empty", "hint", "set CONFIG_<NAME>=<path> or the scenarios section")
	}
	resolver := config.NewResolver(catalog, agent.Deps{
		Models: models,
		Store:  store,
		Tools:  tool.DefaultRegistry(cfg.Tools.Workdir, logger),
		Tokens: agent.NewTiktokenCounter(""),
		Logger: logger,
	}, func(o *config.ResolverOptions) {
		o.Defaults = cfg.Interaction
		o.Logger = logger
	})

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	room := agentroom.New(resolver, func(o *agentroom.Options) {
		o.SessionTTL = cfg.Session.TTL
		o.OutboxSize = cfg.Session.OutboxSize
		o.Context = ctx
		o.Logger = logger
		o.Callbacks = []engine.Callback{
			engine.NewLoggingCallback(engine.CallbackAfterTurn, func(msg string) {
				logger.Debug("engine.turn", "event", msg)
			}),
		}
		if registry != nil {
			o.Registerer = registry
			o.MetricsNamespace = cfg.Metrics.Namespace
		}
	})

	server := room.Gateway(func(o *gateway.Options) {
		o.KeepAlive = cfg.Server.KeepAlive
		o.MetricsPath = cfg.Metrics.Path
		if registry != nil {
			o.Gatherer = registry
		}
	})

	logger.Info("serve.start",
		"addr", cfg.Server.Addr,
		"configurations", catalog.Names(),
		"models", models.Names(),
		"memory_backend", cfg.Memory.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return room.Run(gctx, cfg.Session.JanitorInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(room, server, cfg, logger)
	})
	return g.Wait()
}

func shutdown(room *agentroom.AgentRoom, server *gateway.Server, cfg *config.Config, logger logging.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)
	room.Close()
	logger.Info("serve.stopped")
	return err
}
