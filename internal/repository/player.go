package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"battlestats/internal/db"
	"battlestats/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// BattleViews is the raw battle list and the three views derived from it,
// written together so a reader never sees views from a different snapshot.
type BattleViews struct {
	Battles   []domain.ShipStat
	BattlesAt time.Time
	Tiers     []domain.TierStat
	Types     []domain.TypeStat
	Randoms   []domain.RandomsStat
	DerivedAt time.Time
}

// Get returns nil when the player is not stored.
func (r *PlayerRepository) Get(ctx context.Context, playerID int64) (*domain.Player, error) {
	row, err := r.queries.GetPlayer(ctx, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(row), nil
}

// GetByName matches case-insensitively and returns nil when nothing matches.
func (r *PlayerRepository) GetByName(ctx context.Context, name string) (*domain.Player, error) {
	row, err := r.queries.GetPlayerByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(row), nil
}

// GetOrCreate inserts a bare player row if none exists and reports whether
// this call created it.
func (r *PlayerRepository) GetOrCreate(ctx context.Context, playerID int64, name string, at time.Time) (*domain.Player, bool, error) {
	n, err := r.queries.InsertPlayer(ctx, db.InsertPlayerParams{
		PlayerID:  playerID,
		Name:      name,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert player %d: %w", playerID, err)
	}

	player, err := r.Get(ctx, playerID)
	if err != nil {
		return nil, false, err
	}
	if player == nil {
		return nil, false, fmt.Errorf("player %d vanished after insert", playerID)
	}

	if n > 0 {
		r.logger.Debug().Int64("player_id", playerID).Str("name", name).Msg("player created")
	}
	return player, n > 0, nil
}

func (r *PlayerRepository) UpdateProfile(ctx context.Context, playerID int64, p domain.Profile, at time.Time) error {
	return r.queries.UpdatePlayerProfile(ctx, db.UpdatePlayerProfileParams{
		Name:             p.Name,
		IsHidden:         p.IsHidden,
		CreationDate:     utcPtr(p.CreationDate),
		LastBattleDate:   utcPtr(p.LastBattleDate),
		TotalBattles:     int64(p.TotalBattles),
		PvpBattles:       int64(p.PvpBattles),
		PvpWins:          int64(p.PvpWins),
		PvpLosses:        int64(p.PvpLosses),
		PvpRatio:         p.PvpRatio,
		PvpSurvivalRate:  p.PvpSurvivalRate,
		WinsSurvivalRate: p.WinsSurvivalRate,
		LastFetch:        at.UTC(),
		UpdatedAt:        at.UTC(),
		PlayerID:         playerID,
	})
}

func (r *PlayerRepository) SetClan(ctx context.Context, playerID int64, clanID *int64, at time.Time) error {
	return r.queries.UpdatePlayerClan(ctx, db.UpdatePlayerClanParams{
		ClanID:    clanID,
		UpdatedAt: at.UTC(),
		PlayerID:  playerID,
	})
}

func (r *PlayerRepository) TouchLookup(ctx context.Context, playerID int64, at time.Time) error {
	return r.queries.UpdatePlayerLastLookup(ctx, db.UpdatePlayerLastLookupParams{
		LastLookup: at.UTC(),
		PlayerID:   playerID,
	})
}

func (r *PlayerRepository) SaveBattleViews(ctx context.Context, playerID int64, v BattleViews) error {
	battles, err := encodeJSON(v.Battles)
	if err != nil {
		return fmt.Errorf("failed to encode battles: %w", err)
	}
	tiers, err := encodeJSON(v.Tiers)
	if err != nil {
		return fmt.Errorf("failed to encode tiers: %w", err)
	}
	types, err := encodeJSON(v.Types)
	if err != nil {
		return fmt.Errorf("failed to encode types: %w", err)
	}
	randoms, err := encodeJSON(v.Randoms)
	if err != nil {
		return fmt.Errorf("failed to encode randoms: %w", err)
	}

	return r.queries.UpdatePlayerBattleViews(ctx, db.UpdatePlayerBattleViewsParams{
		BattlesJson:      battles,
		BattlesUpdatedAt: v.BattlesAt.UTC(),
		TiersJson:        tiers,
		TiersUpdatedAt:   v.DerivedAt.UTC(),
		TypeJson:         types,
		TypeUpdatedAt:    v.DerivedAt.UTC(),
		RandomsJson:      randoms,
		RandomsUpdatedAt: v.DerivedAt.UTC(),
		UpdatedAt:        v.DerivedAt.UTC(),
		PlayerID:         playerID,
	})
}

func (r *PlayerRepository) SaveActivity(ctx context.Context, playerID int64, days []domain.ActivityDay, at time.Time) error {
	raw, err := encodeJSON(days)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	return r.queries.UpdatePlayerActivity(ctx, db.UpdatePlayerActivityParams{
		ActivityJson:      raw,
		ActivityUpdatedAt: at.UTC(),
		UpdatedAt:         at.UTC(),
		PlayerID:          playerID,
	})
}

func (r *PlayerRepository) ListByClan(ctx context.Context, clanID int64) ([]domain.Player, error) {
	rows, err := r.queries.ListPlayersByClan(ctx, clanID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Player, len(rows))
	for i, row := range rows {
		result[i] = *r.toDomain(row)
	}
	return result, nil
}

func (r *PlayerRepository) CountByClan(ctx context.Context, clanID int64) (int, error) {
	n, err := r.queries.CountPlayersByClan(ctx, clanID)
	return int(n), err
}

func (r *PlayerRepository) toDomain(p db.Player) *domain.Player {
	log := r.logger.With().Int64("player_id", p.PlayerID).Logger()
	return &domain.Player{
		PlayerID:         p.PlayerID,
		Name:             p.Name,
		ClanID:           p.ClanID,
		IsHidden:         p.IsHidden,
		CreationDate:     p.CreationDate,
		LastBattleDate:   p.LastBattleDate,
		TotalBattles:     int(p.TotalBattles),
		PvpBattles:       int(p.PvpBattles),
		PvpWins:          int(p.PvpWins),
		PvpLosses:        int(p.PvpLosses),
		PvpRatio:         p.PvpRatio,
		PvpSurvivalRate:  p.PvpSurvivalRate,
		WinsSurvivalRate: p.WinsSurvivalRate,
		LastFetch:        p.LastFetch,
		LastLookup:       p.LastLookup,
		Battles:          decodeJSON[domain.ShipStat](log, "battles_json", p.BattlesJson),
		BattlesUpdatedAt: p.BattlesUpdatedAt,
		Tiers:            decodeJSON[domain.TierStat](log, "tiers_json", p.TiersJson),
		TiersUpdatedAt:   p.TiersUpdatedAt,
		Types:            decodeJSON[domain.TypeStat](log, "type_json", p.TypeJson),
		TypesUpdatedAt:   p.TypeUpdatedAt,
		Randoms:          decodeJSON[domain.RandomsStat](log, "randoms_json", p.RandomsJson),
		RandomsUpdatedAt: p.RandomsUpdatedAt,
		Activity:         decodeJSON[domain.ActivityDay](log, "activity_json", p.ActivityJson),
		ActivityUpdated:  p.ActivityUpdatedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func encodeJSON[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeJSON returns nil for a column that was never written and an empty
// list for one that cannot be parsed.
func decodeJSON[T any](logger zerolog.Logger, column string, raw *string) []T {
	if raw == nil {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		logger.Warn().Err(err).Str("column", column).Msg("cached view is malformed, treating as empty")
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
