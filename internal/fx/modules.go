package fx

import (
	"database/sql"

	"battlestats/internal/api"
	"battlestats/internal/config"
	"battlestats/internal/database"
	"battlestats/internal/db"
	"battlestats/internal/logger"
	"battlestats/internal/metrics"
	"battlestats/internal/queue"
	"battlestats/internal/repository"
	"battlestats/internal/scheduler"
	"battlestats/internal/server"
	"battlestats/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ProvideServer(
	players *service.PlayerService,
	stats *service.StatsService,
	clans *service.ClanService,
	logger zerolog.Logger,
) *server.BattleStatsServer {
	return server.NewBattleStatsServer(players, stats, clans, logger)
}

func ProvideScheduler(
	cfg *config.Config,
	clans *service.ClanService,
	stats *service.StatsService,
	logger zerolog.Logger,
) *scheduler.Scheduler {
	return scheduler.New(cfg, clans, stats, logger)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(metrics.New),
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewShipRepository),
	fx.Provide(repository.NewClanRepository),
	fx.Provide(repository.NewSnapshotRepository),
	// api client
	fx.Provide(fx.Annotate(api.NewWowsClient, fx.As(new(service.Upstream)))),
	// refresh queue
	fx.Provide(queue.New),
	// svc
	fx.Provide(service.NewPlayerService),
	fx.Provide(service.NewStatsService),
	fx.Provide(service.NewClanService),
	fx.Invoke(service.RegisterJobs),
	fx.Provide(ProvideScheduler),
	// server
	fx.Provide(ProvideServer),
)
