// Package app wires configuration into repositories, clients and services
// for the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ArowuTest/raffle-engine/internal/config"
	"github.com/ArowuTest/raffle-engine/internal/observability"
	"github.com/ArowuTest/raffle-engine/internal/repositories"
	"github.com/ArowuTest/raffle-engine/internal/repositories/memory"
	mongorepo "github.com/ArowuTest/raffle-engine/internal/repositories/mongodb"
	"github.com/ArowuTest/raffle-engine/internal/services"
	"github.com/ArowuTest/raffle-engine/pkg/chaingateway"
	"github.com/ArowuTest/raffle-engine/pkg/mongodb"
	"github.com/ArowuTest/raffle-engine/pkg/payment"
)

// App holds the wired components
type App struct {
	Repo      repositories.RaffleRepository
	Gateway   chaingateway.Gateway
	Validator chaingateway.TokenValidator
	Executor  payment.Executor
	Metrics   *observability.EngineMetrics
	Raffles   *services.RaffleServiceImpl
	Dispersal *services.DispersalServiceImpl
	Scheduler *services.Scheduler

	mongo *mongodb.Client
}

// Build connects the store and constructs every service from cfg
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Metrics: observability.Engine()}

	if cfg.MongoDB.URI == "" {
		slog.Warn("MongoDB URI not configured; using in-memory raffle store")
		a.Repo = memory.NewRaffleRepository()
	} else {
		client, err := mongodb.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		a.mongo = client
		repo := mongorepo.NewRaffleRepository(client.Database(cfg.MongoDB.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		a.Repo = repo
		slog.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)
	}

	if cfg.Gateway.MockAPI {
		slog.Warn("Using mock chain gateway")
		mock := chaingateway.NewMockGateway()
		a.Gateway, a.Validator = mock, mock
	} else {
		gw := chaingateway.NewKaspaGateway(chaingateway.Config{
			KaspaAPIURL:       cfg.Gateway.KaspaAPIURL,
			KasplexAPIURL:     cfg.Gateway.KasplexAPIURL,
			PageSize:          cfg.Gateway.PageSize,
			MaxPages:          cfg.Gateway.MaxPages,
			RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
			Timeout:           cfg.Gateway.Timeout,
		})
		a.Gateway, a.Validator = gw, gw
	}

	if cfg.Executor.MockAPI {
		slog.Warn("Using mock payment executor")
		a.Executor = payment.NewMockExecutor("RAFFLE")
	} else {
		if cfg.Executor.BaseURL == "" {
			return nil, fmt.Errorf("executor base URL is required when the mock executor is disabled")
		}
		a.Executor = payment.NewHTTPExecutor(cfg.Executor.BaseURL, cfg.Executor.APIKey, cfg.Executor.Timeout)
	}

	a.Raffles = services.NewRaffleService(a.Repo, a.Gateway, a.Validator, cfg.Dispersal, a.Metrics)
	a.Dispersal = services.NewDispersalService(a.Repo, a.Gateway, a.Executor, cfg.Dispersal,
		cfg.Executor.TreasuryKey, services.WithMetrics(a.Metrics))
	a.Scheduler = services.NewScheduler(a.Repo, a.Gateway, a.Dispersal, a.Metrics, cfg.Scheduler.Interval)
	return a, nil
}

// Close releases the store connection
func (a *App) Close(ctx context.Context) error {
	if a.mongo == nil {
		return nil
	}
	return a.mongo.Disconnect(ctx)
}
