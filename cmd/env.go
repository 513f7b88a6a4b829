package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/globalpass/standby-cli/internal/bot"
	"github.com/globalpass/standby-cli/internal/broadcast"
	"github.com/globalpass/standby-cli/internal/model"
	"github.com/globalpass/standby-cli/internal/rank"
	"github.com/globalpass/standby-cli/internal/registry"
	"github.com/globalpass/standby-cli/internal/report"
	"github.com/globalpass/standby-cli/internal/store"
)

// env holds the wired subsystems a command needs to execute runs.
type env struct {
	Registry *registry.Registry
	Hub      *broadcast.Hub
	Store    store.Store
	Reports  *report.Builder
}

// Close releases held resources.
func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv builds the run environment from config: adapters for every
// configured collector endpoint, the ranking engine with its comfort
// table, the broadcaster, and the optional store.
func initEnv(ctx context.Context) (*env, error) {
	var adapters []bot.Adapter
	for _, source := range model.Sources {
		endpoint, ok := cfg.Bots.Endpoints[source]
		if !ok || endpoint == "" {
			zap.L().Warn("no collector endpoint configured, source disabled",
				zap.String("source", source),
			)
			continue
		}
		adapters = append(adapters, bot.NewCollectorAdapter(source, endpoint))
	}
	if len(adapters) == 0 {
		return nil, eris.New("no collector endpoints configured (bots.endpoints)")
	}
	botRegistry := bot.NewRegistry(adapters...)
	runner := bot.NewRunner(botRegistry, cfg.Bots)

	comfort, err := rank.LoadComfortTable(cfg.Ranking.ComfortTablePath)
	if err != nil {
		return nil, err
	}
	engine := rank.New(cfg.Ranking, comfort)

	hub := broadcast.New()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := []registry.Option{
		registry.WithTimeout(cfg.Run.Timeout()),
		registry.WithMaxConcurrent(cfg.Run.MaxConcurrent),
		registry.WithRetainUnverified(cfg.Consolidate.RetainUnverified),
	}
	if st != nil {
		opts = append(opts, registry.WithStore(st))
	}
	reg := registry.New(botRegistry, runner, hub, engine, opts...)

	return &env{
		Registry: reg,
		Hub:      hub,
		Store:    st,
		Reports:  report.NewBuilder(cfg.Report.OutputDir),
	}, nil
}

// initStore opens the configured database backend and migrates it.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}
