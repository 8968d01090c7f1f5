// Package scheduler runs the periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"

	"battlestats/internal/config"
	"battlestats/internal/constants"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type ClanSweeper interface {
	SweepStaleClans(ctx context.Context) (int, error)
}

type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	clans  ClanSweeper
	pruner SnapshotPruner
	logger zerolog.Logger
}

func New(cfg *config.Config, clans ClanSweeper, pruner SnapshotPruner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		cfg:    cfg,
		clans:  clans,
		pruner: pruner,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ClanSweepSchedule, s.SweepClans); err != nil {
		return fmt.Errorf("invalid clan sweep schedule %q: %w", s.cfg.ClanSweepSchedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.SnapshotPruneSchedule, s.PruneSnapshots); err != nil {
		return fmt.Errorf("invalid snapshot prune schedule %q: %w", s.cfg.SnapshotPruneSchedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("clan_sweep", s.cfg.ClanSweepSchedule).
		Str("snapshot_prune", s.cfg.SnapshotPruneSchedule).
		Msg("scheduler started")
	return nil
}

// Stop waits for running jobs to finish or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) SweepClans() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()

	n, err := s.clans.SweepStaleClans(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("clan sweep failed")
		return
	}
	s.logger.Debug().Int("enqueued", n).Msg("clan sweep ran")
}

func (s *Scheduler) PruneSnapshots() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()

	if _, err := s.pruner.PruneSnapshots(ctx); err != nil {
		s.logger.Error().Err(err).Msg("snapshot prune failed")
	}
}
