package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridmaker_go/internal/engine"
	"gridmaker_go/internal/infra"
	"gridmaker_go/internal/infra/storage"
	"gridmaker_go/internal/infra/venue"
	"gridmaker_go/internal/pricing"
	"gridmaker_go/internal/strategy"
)

// Application wires configuration, storage, the venue client, and the
// trading engine together.
type Application struct {
	cfg   *infra.Config
	log   *slog.Logger
	maker *engine.Maker
}

// New builds the application from a configuration file.
func New(configPath string) (*Application, error) {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := infra.NewLogger(cfg)
	slog.SetDefault(log)
	log.Info("configuration loaded",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("pair", cfg.Venue.Symbol))

	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	client := venue.NewClient(cfg)
	rt := infra.NewRetryTransport()

	resolver := pricing.NewResolver(pricing.Config{
		FilterReference:      cfg.Bot.OutlierFilterReference,
		MaxDeviation:         cfg.Bot.MaxOrderbookDeviation,
		OutOfRangeFallback:   cfg.Bot.OutOfRangePricingFallback,
		OutOfRangePriceMode:  cfg.Bot.OutOfRangePriceMode,
		ClampPolicy:          cfg.Bot.ClampPolicy,
		TargetInventoryRatio: cfg.Bot.TargetInventoryRatio,
		InventoryTolerance:   cfg.Bot.InventoryTolerance,
	})

	planner := strategy.NewPlanner(strategy.GridConfig{
		Levels:               cfg.Bot.GridLevels,
		Spread:               cfg.Bot.GridSpread,
		MinOrderSize:         cfg.Bot.MinOrderSize,
		MaxPosition:          cfg.Bot.MaxPosition,
		TargetInventoryRatio: cfg.Bot.TargetInventoryRatio,
		InventoryTolerance:   cfg.Bot.InventoryTolerance,
		PollingInterval:      cfg.PollingInterval(),
	})

	tracker := engine.NewTracker(client, store, rt, cfg.Venue.Symbol, cfg.SettlementTimeout())
	maker := engine.NewMaker(cfg, client, store, rt, resolver, planner, tracker)

	return &Application{cfg: cfg, log: log, maker: maker}, nil
}

// Run starts the metrics endpoint (when configured) and runs the
// trading loop until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	var metricsSrv *http.Server
	if a.cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
		go func() {
			a.log.Info("metrics endpoint listening", slog.String("addr", a.cfg.Metrics.Listen))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("metrics endpoint failed", slog.String("error", err.Error()))
			}
		}()
	}

	err := a.maker.Run(ctx)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := metricsSrv.Shutdown(shutdownCtx); serr != nil {
			a.log.Warn("metrics endpoint shutdown failed", slog.String("error", serr.Error()))
		}
	}
	return err
}
