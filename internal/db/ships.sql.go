package db

import (
	"context"
)

const getShip = `-- name: GetShip :one
SELECT ship_id, name, nation, ship_type, tier, is_premium, created_at
FROM ships
WHERE ship_id = ?
`

func (q *Queries) GetShip(ctx context.Context, shipID int64) (Ship, error) {
	row := q.db.QueryRowContext(ctx, getShip, shipID)
	var i Ship
	err := row.Scan(
		&i.ShipID,
		&i.Name,
		&i.Nation,
		&i.ShipType,
		&i.Tier,
		&i.IsPremium,
		&i.CreatedAt,
	)
	return i, err
}

const insertShip = `-- name: InsertShip :exec
INSERT INTO ships (ship_id, name, nation, ship_type, tier, is_premium, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (ship_id) DO NOTHING
`

type InsertShipParams = Ship

func (q *Queries) InsertShip(ctx context.Context, arg InsertShipParams) error {
	_, err := q.db.ExecContext(ctx, insertShip,
		arg.ShipID,
		arg.Name,
		arg.Nation,
		arg.ShipType,
		arg.Tier,
		arg.IsPremium,
		arg.CreatedAt,
	)
	return err
}
