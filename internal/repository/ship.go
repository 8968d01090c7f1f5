package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"battlestats/internal/db"
	"battlestats/internal/domain"

	"github.com/rs/zerolog"
)

// ShipRepository is an append-only cache of encyclopedia entries.
type ShipRepository struct {
	queries *db.Queries
	logger  zerolog.Logger
}

func NewShipRepository(queries *db.Queries, logger zerolog.Logger) *ShipRepository {
	return &ShipRepository{
		queries: queries,
		logger:  logger,
	}
}

// Get returns nil when the ship is not stored.
func (r *ShipRepository) Get(ctx context.Context, shipID int64) (*domain.Ship, error) {
	row, err := r.queries.GetShip(ctx, shipID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Ship{
		ShipID:    row.ShipID,
		Name:      row.Name,
		Nation:    row.Nation,
		ShipType:  row.ShipType,
		Tier:      int(row.Tier),
		IsPremium: row.IsPremium,
		CreatedAt: row.CreatedAt,
	}, nil
}

// Create stores a ship unless one with the same id already exists.
func (r *ShipRepository) Create(ctx context.Context, ship *domain.Ship) error {
	createdAt := ship.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	err := r.queries.InsertShip(ctx, db.InsertShipParams{
		ShipID:    ship.ShipID,
		Name:      ship.Name,
		Nation:    ship.Nation,
		ShipType:  ship.ShipType,
		Tier:      int64(ship.Tier),
		IsPremium: ship.IsPremium,
		CreatedAt: createdAt.UTC(),
	})
	if err != nil {
		r.logger.Error().Err(err).Int64("ship_id", ship.ShipID).Msg("failed to store ship")
		return err
	}
	return nil
}
