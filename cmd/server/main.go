package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"battlestats/internal/config"
	"battlestats/internal/constants"
	fxmodules "battlestats/internal/fx"
	"battlestats/internal/logger"
	"battlestats/internal/metrics"
	"battlestats/internal/middleware"
	"battlestats/internal/queue"
	"battlestats/internal/scheduler"
	"battlestats/internal/server"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	statsServer *server.BattleStatsServer,
	refreshQueue *queue.Queue,
	sched *scheduler.Scheduler,
	m *metrics.Metrics,
	cfg *config.Config,
	db *sql.DB,
	log zerolog.Logger,
) {
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.LogLevel))

	mux := http.NewServeMux()

	path, handler := statsServer.Handler()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(log)

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		requestIDMiddleware(middleware.Recover(c.Handler(handler))).ServeHTTP(w, r)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := refreshQueue.Start(); err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := sched.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("scheduler did not stop in time")
			}
			if err := refreshQueue.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("refresh queue did not drain in time")
			}

			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing database connection")
			}
			log.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
