package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"battlestats/internal/freshness"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	WGAppID    string
	WGBaseURL  string
	DBPath     string
	ServerPort string
	LogLevel   string

	Thresholds freshness.Thresholds

	RefreshWorkers    int
	RefreshQueueSize  int
	RefreshJobTimeout time.Duration

	ShipCacheSize int
	ShipCacheTTL  time.Duration

	ClanSweepSchedule     string
	SnapshotPruneSchedule string
	SnapshotRetention     time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	defaults := freshness.DefaultThresholds()

	cfg := &Config{
		WGAppID:    getEnv("WG_APP_ID", ""),
		WGBaseURL:  getEnv("WG_BASE_URL", "https://api.worldofwarships.com/wows/"),
		DBPath:     getEnv("DB_PATH", "battlestats.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Thresholds: freshness.Thresholds{
			Battles:       getEnvDuration(logger, "BATTLES_TTL", defaults.Battles),
			DerivedViews:  getEnvDuration(logger, "DERIVED_VIEW_TTL", defaults.DerivedViews),
			Activity:      getEnvDuration(logger, "ACTIVITY_TTL", defaults.Activity),
			Snapshots:     getEnvDuration(logger, "SNAPSHOT_TTL", defaults.Snapshots),
			Clan:          getEnvDuration(logger, "CLAN_TTL", defaults.Clan),
			PlayerProfile: getEnvDuration(logger, "PLAYER_PROFILE_TTL", defaults.PlayerProfile),
		},
		RefreshWorkers:        getEnvInt(logger, "REFRESH_WORKERS", 4),
		RefreshQueueSize:      getEnvInt(logger, "REFRESH_QUEUE_SIZE", 256),
		RefreshJobTimeout:     getEnvDuration(logger, "REFRESH_JOB_TIMEOUT", 600*time.Second),
		ShipCacheSize:         getEnvInt(logger, "SHIP_CACHE_SIZE", 1024),
		ShipCacheTTL:          getEnvDuration(logger, "SHIP_CACHE_TTL", 6*time.Hour),
		ClanSweepSchedule:     getEnv("CLAN_SWEEP_SCHEDULE", "@every 1h"),
		SnapshotPruneSchedule: getEnv("SNAPSHOT_PRUNE_SCHEDULE", "0 4 * * *"),
		SnapshotRetention:     getEnvDuration(logger, "SNAPSHOT_RETENTION", 60*24*time.Hour),
	}

	if cfg.WGAppID == "" {
		return nil, fmt.Errorf("WG_APP_ID is required")
	}
	if cfg.RefreshWorkers < 1 {
		return nil, fmt.Errorf("REFRESH_WORKERS must be at least 1, got %d", cfg.RefreshWorkers)
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("battles_ttl", cfg.Thresholds.Battles).
		Dur("derived_view_ttl", cfg.Thresholds.DerivedViews).
		Dur("activity_ttl", cfg.Thresholds.Activity).
		Dur("clan_ttl", cfg.Thresholds.Clan).
		Dur("player_profile_ttl", cfg.Thresholds.PlayerProfile).
		Int("refresh_workers", cfg.RefreshWorkers).
		Dur("refresh_job_timeout", cfg.RefreshJobTimeout).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(logger zerolog.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return fallback
	}
	return n
}

func getEnvDuration(logger zerolog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

var Module = fx.Provide(Load)
