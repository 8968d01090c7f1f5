package db

import (
	"context"
	"time"
)

const upsertSnapshot = `-- name: UpsertSnapshot :exec
INSERT INTO snapshots (id, player_id, date, battles, wins, survived_battles, battle_type, last_fetch, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (player_id, date) DO UPDATE SET
    battles = excluded.battles,
    wins = excluded.wins,
    survived_battles = excluded.survived_battles,
    battle_type = excluded.battle_type,
    last_fetch = excluded.last_fetch,
    updated_at = excluded.updated_at
`

type UpsertSnapshotParams struct {
	ID              string
	PlayerID        int64
	Date            string
	Battles         int64
	Wins            int64
	SurvivedBattles int64
	BattleType      string
	LastFetch       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (q *Queries) UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot,
		arg.ID,
		arg.PlayerID,
		arg.Date,
		arg.Battles,
		arg.Wins,
		arg.SurvivedBattles,
		arg.BattleType,
		arg.LastFetch,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const listSnapshotsSince = `-- name: ListSnapshotsSince :many
SELECT id, player_id, date, battles, wins, survived_battles, battle_type,
    interval_battles, interval_wins, last_fetch, created_at, updated_at
FROM snapshots
WHERE player_id = ? AND date >= ?
ORDER BY date ASC
`

type ListSnapshotsSinceParams struct {
	PlayerID int64
	Since    string
}

func (q *Queries) ListSnapshotsSince(ctx context.Context, arg ListSnapshotsSinceParams) ([]Snapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshotsSince, arg.PlayerID, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Snapshot
	for rows.Next() {
		var i Snapshot
		if err := rows.Scan(
			&i.ID,
			&i.PlayerID,
			&i.Date,
			&i.Battles,
			&i.Wins,
			&i.SurvivedBattles,
			&i.BattleType,
			&i.IntervalBattles,
			&i.IntervalWins,
			&i.LastFetch,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLatestSnapshotFetch = `-- name: GetLatestSnapshotFetch :one
SELECT last_fetch FROM snapshots
WHERE player_id = ? AND last_fetch IS NOT NULL
ORDER BY last_fetch DESC
LIMIT 1
`

func (q *Queries) GetLatestSnapshotFetch(ctx context.Context, playerID int64) (time.Time, error) {
	row := q.db.QueryRowContext(ctx, getLatestSnapshotFetch, playerID)
	var lastFetch time.Time
	err := row.Scan(&lastFetch)
	return lastFetch, err
}

const updateSnapshotIntervals = `-- name: UpdateSnapshotIntervals :exec
UPDATE snapshots
SET interval_battles = ?,
    interval_wins = ?,
    updated_at = ?
WHERE id = ?
`

type UpdateSnapshotIntervalsParams struct {
	IntervalBattles *int64
	IntervalWins    *int64
	UpdatedAt       time.Time
	ID              string
}

func (q *Queries) UpdateSnapshotIntervals(ctx context.Context, arg UpdateSnapshotIntervalsParams) error {
	_, err := q.db.ExecContext(ctx, updateSnapshotIntervals,
		arg.IntervalBattles,
		arg.IntervalWins,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const deleteSnapshotsBefore = `-- name: DeleteSnapshotsBefore :execrows
DELETE FROM snapshots
WHERE date < ?
`

func (q *Queries) DeleteSnapshotsBefore(ctx context.Context, before string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSnapshotsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
