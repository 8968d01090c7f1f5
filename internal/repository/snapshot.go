package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"battlestats/internal/activity"
	"battlestats/internal/db"
	"battlestats/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type SnapshotRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// LatestFetch returns the most recent fetch time over all of the player's
// snapshots, or nil if there are none.
func (r *SnapshotRepository) LatestFetch(ctx context.Context, playerID int64) (*time.Time, error) {
	lastFetch, err := r.queries.GetLatestSnapshotFetch(ctx, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lastFetch, nil
}

// ListSince returns the player's snapshots dated on or after since
// (YYYY-MM-DD), oldest first.
func (r *SnapshotRepository) ListSince(ctx context.Context, playerID int64, since string) ([]domain.Snapshot, error) {
	rows, err := r.queries.ListSnapshotsSince(ctx, db.ListSnapshotsSinceParams{
		PlayerID: playerID,
		Since:    since,
	})
	if err != nil {
		return nil, err
	}
	return snapshotsToDomain(rows), nil
}

// SaveWindow upserts rows, then recomputes the interval counters of every
// snapshot dated on or after since, all in one transaction. It returns the
// window as stored.
func (r *SnapshotRepository) SaveWindow(ctx context.Context, playerID int64, rows []domain.Snapshot, since string, at time.Time) ([]domain.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	at = at.UTC()

	for _, row := range rows {
		id := row.ID
		if id == "" {
			id, err = gonanoid.New()
			if err != nil {
				return nil, fmt.Errorf("failed to generate nanoid: %w", err)
			}
		}

		err := qtx.UpsertSnapshot(ctx, db.UpsertSnapshotParams{
			ID:              id,
			PlayerID:        playerID,
			Date:            row.Date,
			Battles:         int64(row.Battles),
			Wins:            int64(row.Wins),
			SurvivedBattles: int64(row.SurvivedBattles),
			BattleType:      row.BattleType,
			LastFetch:       at,
			CreatedAt:       at,
			UpdatedAt:       at,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert snapshot %s: %w", row.Date, err)
		}
	}

	stored, err := qtx.ListSnapshotsSince(ctx, db.ListSnapshotsSinceParams{
		PlayerID: playerID,
		Since:    since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot window: %w", err)
	}

	window := activity.ApplyIntervals(snapshotsToDomain(stored))
	for i := range window {
		s := &window[i]
		if i == 0 {
			s.IntervalBattles, s.IntervalWins = nil, nil
		}
		err := qtx.UpdateSnapshotIntervals(ctx, db.UpdateSnapshotIntervalsParams{
			IntervalBattles: int64Ptr(s.IntervalBattles),
			IntervalWins:    int64Ptr(s.IntervalWins),
			UpdatedAt:       at,
			ID:              s.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update intervals for %s: %w", s.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot window: %w", err)
	}

	r.logger.Debug().
		Int64("player_id", playerID).
		Int("upserted", len(rows)).
		Int("window", len(window)).
		Msg("snapshot window saved")
	return window, nil
}

// DeleteBefore removes snapshots dated before the given YYYY-MM-DD date.
func (r *SnapshotRepository) DeleteBefore(ctx context.Context, date string) (int64, error) {
	return r.queries.DeleteSnapshotsBefore(ctx, date)
}

func snapshotsToDomain(rows []db.Snapshot) []domain.Snapshot {
	result := make([]domain.Snapshot, len(rows))
	for i, row := range rows {
		result[i] = domain.Snapshot{
			ID:              row.ID,
			PlayerID:        row.PlayerID,
			Date:            row.Date,
			Battles:         int(row.Battles),
			Wins:            int(row.Wins),
			SurvivedBattles: int(row.SurvivedBattles),
			BattleType:      row.BattleType,
			IntervalBattles: intPtr(row.IntervalBattles),
			IntervalWins:    intPtr(row.IntervalWins),
			LastFetch:       row.LastFetch,
			CreatedAt:       row.CreatedAt,
			UpdatedAt:       row.UpdatedAt,
		}
	}
	return result
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func int64Ptr(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}
