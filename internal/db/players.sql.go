package db

import (
	"context"
	"time"
)

const playerColumns = `player_id, name, clan_id, is_hidden, creation_date, last_battle_date,
    total_battles, pvp_battles, pvp_wins, pvp_losses, pvp_ratio, pvp_survival_rate, wins_survival_rate,
    last_fetch, last_lookup,
    battles_json, battles_updated_at, tiers_json, tiers_updated_at, type_json, type_updated_at,
    randoms_json, randoms_updated_at, activity_json, activity_updated_at,
    created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row rowScanner) (Player, error) {
	var i Player
	err := row.Scan(
		&i.PlayerID,
		&i.Name,
		&i.ClanID,
		&i.IsHidden,
		&i.CreationDate,
		&i.LastBattleDate,
		&i.TotalBattles,
		&i.PvpBattles,
		&i.PvpWins,
		&i.PvpLosses,
		&i.PvpRatio,
		&i.PvpSurvivalRate,
		&i.WinsSurvivalRate,
		&i.LastFetch,
		&i.LastLookup,
		&i.BattlesJson,
		&i.BattlesUpdatedAt,
		&i.TiersJson,
		&i.TiersUpdatedAt,
		&i.TypeJson,
		&i.TypeUpdatedAt,
		&i.RandomsJson,
		&i.RandomsUpdatedAt,
		&i.ActivityJson,
		&i.ActivityUpdatedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getPlayer = `-- name: GetPlayer :one
SELECT ` + playerColumns + `
FROM players
WHERE player_id = ?
`

func (q *Queries) GetPlayer(ctx context.Context, playerID int64) (Player, error) {
	row := q.db.QueryRowContext(ctx, getPlayer, playerID)
	return scanPlayer(row)
}

const getPlayerByName = `-- name: GetPlayerByName :one
SELECT ` + playerColumns + `
FROM players
WHERE name = ? COLLATE NOCASE
ORDER BY last_lookup DESC
LIMIT 1
`

func (q *Queries) GetPlayerByName(ctx context.Context, name string) (Player, error) {
	row := q.db.QueryRowContext(ctx, getPlayerByName, name)
	return scanPlayer(row)
}

const insertPlayer = `-- name: InsertPlayer :execrows
INSERT INTO players (player_id, name, clan_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (player_id) DO NOTHING
`

type InsertPlayerParams struct {
	PlayerID  int64
	Name      string
	ClanID    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) InsertPlayer(ctx context.Context, arg InsertPlayerParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertPlayer,
		arg.PlayerID,
		arg.Name,
		arg.ClanID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updatePlayerProfile = `-- name: UpdatePlayerProfile :exec
UPDATE players
SET name = ?,
    is_hidden = ?,
    creation_date = ?,
    last_battle_date = ?,
    total_battles = ?,
    pvp_battles = ?,
    pvp_wins = ?,
    pvp_losses = ?,
    pvp_ratio = ?,
    pvp_survival_rate = ?,
    wins_survival_rate = ?,
    last_fetch = ?,
    updated_at = ?
WHERE player_id = ?
`

type UpdatePlayerProfileParams struct {
	Name             string
	IsHidden         bool
	CreationDate     *time.Time
	LastBattleDate   *time.Time
	TotalBattles     int64
	PvpBattles       int64
	PvpWins          int64
	PvpLosses        int64
	PvpRatio         float64
	PvpSurvivalRate  float64
	WinsSurvivalRate float64
	LastFetch        time.Time
	UpdatedAt        time.Time
	PlayerID         int64
}

func (q *Queries) UpdatePlayerProfile(ctx context.Context, arg UpdatePlayerProfileParams) error {
	_, err := q.db.ExecContext(ctx, updatePlayerProfile,
		arg.Name,
		arg.IsHidden,
		arg.CreationDate,
		arg.LastBattleDate,
		arg.TotalBattles,
		arg.PvpBattles,
		arg.PvpWins,
		arg.PvpLosses,
		arg.PvpRatio,
		arg.PvpSurvivalRate,
		arg.WinsSurvivalRate,
		arg.LastFetch,
		arg.UpdatedAt,
		arg.PlayerID,
	)
	return err
}

const updatePlayerClan = `-- name: UpdatePlayerClan :exec
UPDATE players
SET clan_id = ?,
    updated_at = ?
WHERE player_id = ?
`

type UpdatePlayerClanParams struct {
	ClanID    *int64
	UpdatedAt time.Time
	PlayerID  int64
}

func (q *Queries) UpdatePlayerClan(ctx context.Context, arg UpdatePlayerClanParams) error {
	_, err := q.db.ExecContext(ctx, updatePlayerClan, arg.ClanID, arg.UpdatedAt, arg.PlayerID)
	return err
}

const updatePlayerLastLookup = `-- name: UpdatePlayerLastLookup :exec
UPDATE players
SET last_lookup = ?
WHERE player_id = ?
`

type UpdatePlayerLastLookupParams struct {
	LastLookup time.Time
	PlayerID   int64
}

func (q *Queries) UpdatePlayerLastLookup(ctx context.Context, arg UpdatePlayerLastLookupParams) error {
	_, err := q.db.ExecContext(ctx, updatePlayerLastLookup, arg.LastLookup, arg.PlayerID)
	return err
}

const updatePlayerBattleViews = `-- name: UpdatePlayerBattleViews :exec
UPDATE players
SET battles_json = ?,
    battles_updated_at = ?,
    tiers_json = ?,
    tiers_updated_at = ?,
    type_json = ?,
    type_updated_at = ?,
    randoms_json = ?,
    randoms_updated_at = ?,
    updated_at = ?
WHERE player_id = ?
`

type UpdatePlayerBattleViewsParams struct {
	BattlesJson      string
	BattlesUpdatedAt time.Time
	TiersJson        string
	TiersUpdatedAt   time.Time
	TypeJson         string
	TypeUpdatedAt    time.Time
	RandomsJson      string
	RandomsUpdatedAt time.Time
	UpdatedAt        time.Time
	PlayerID         int64
}

func (q *Queries) UpdatePlayerBattleViews(ctx context.Context, arg UpdatePlayerBattleViewsParams) error {
	_, err := q.db.ExecContext(ctx, updatePlayerBattleViews,
		arg.BattlesJson,
		arg.BattlesUpdatedAt,
		arg.TiersJson,
		arg.TiersUpdatedAt,
		arg.TypeJson,
		arg.TypeUpdatedAt,
		arg.RandomsJson,
		arg.RandomsUpdatedAt,
		arg.UpdatedAt,
		arg.PlayerID,
	)
	return err
}

const updatePlayerActivity = `-- name: UpdatePlayerActivity :exec
UPDATE players
SET activity_json = ?,
    activity_updated_at = ?,
    updated_at = ?
WHERE player_id = ?
`

type UpdatePlayerActivityParams struct {
	ActivityJson      string
	ActivityUpdatedAt time.Time
	UpdatedAt         time.Time
	PlayerID          int64
}

func (q *Queries) UpdatePlayerActivity(ctx context.Context, arg UpdatePlayerActivityParams) error {
	_, err := q.db.ExecContext(ctx, updatePlayerActivity,
		arg.ActivityJson,
		arg.ActivityUpdatedAt,
		arg.UpdatedAt,
		arg.PlayerID,
	)
	return err
}

const listPlayersByClan = `-- name: ListPlayersByClan :many
SELECT ` + playerColumns + `
FROM players
WHERE clan_id = ?
ORDER BY pvp_battles DESC, player_id ASC
`

func (q *Queries) ListPlayersByClan(ctx context.Context, clanID int64) ([]Player, error) {
	rows, err := q.db.QueryContext(ctx, listPlayersByClan, clanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Player
	for rows.Next() {
		i, err := scanPlayer(rows)
		if err != nil {
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

const countPlayersByClan = `-- name: CountPlayersByClan :one
SELECT COUNT(*) FROM players
WHERE clan_id = ?
`

func (q *Queries) CountPlayersByClan(ctx context.Context, clanID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPlayersByClan, clanID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
