package db

import (
	"context"
	"time"
)

const clanColumns = `clan_id, name, tag, description, members_count, leader_id, leader_name, last_fetch, created_at, updated_at`

func scanClan(row rowScanner) (Clan, error) {
	var i Clan
	err := row.Scan(
		&i.ClanID,
		&i.Name,
		&i.Tag,
		&i.Description,
		&i.MembersCount,
		&i.LeaderID,
		&i.LeaderName,
		&i.LastFetch,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getClan = `-- name: GetClan :one
SELECT ` + clanColumns + `
FROM clans
WHERE clan_id = ?
`

func (q *Queries) GetClan(ctx context.Context, clanID int64) (Clan, error) {
	row := q.db.QueryRowContext(ctx, getClan, clanID)
	return scanClan(row)
}

const upsertClan = `-- name: UpsertClan :exec
INSERT INTO clans (clan_id, name, tag, description, members_count, leader_id, leader_name, last_fetch, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (clan_id) DO UPDATE SET
    name = excluded.name,
    tag = excluded.tag,
    description = excluded.description,
    members_count = excluded.members_count,
    leader_id = excluded.leader_id,
    leader_name = excluded.leader_name,
    last_fetch = COALESCE(excluded.last_fetch, clans.last_fetch),
    updated_at = excluded.updated_at
`

type UpsertClanParams struct {
	ClanID       int64
	Name         string
	Tag          string
	Description  string
	MembersCount int64
	LeaderID     *int64
	LeaderName   string
	LastFetch    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (q *Queries) UpsertClan(ctx context.Context, arg UpsertClanParams) error {
	_, err := q.db.ExecContext(ctx, upsertClan,
		arg.ClanID,
		arg.Name,
		arg.Tag,
		arg.Description,
		arg.MembersCount,
		arg.LeaderID,
		arg.LeaderName,
		arg.LastFetch,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const listStaleClans = `-- name: ListStaleClans :many
SELECT ` + clanColumns + `
FROM clans
WHERE last_fetch IS NULL OR last_fetch < ?
ORDER BY last_fetch ASC
LIMIT ?
`

type ListStaleClansParams struct {
	Before time.Time
	Limit  int64
}

func (q *Queries) ListStaleClans(ctx context.Context, arg ListStaleClansParams) ([]Clan, error) {
	rows, err := q.db.QueryContext(ctx, listStaleClans, arg.Before, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Clan
	for rows.Next() {
		i, err := scanClan(rows)
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
