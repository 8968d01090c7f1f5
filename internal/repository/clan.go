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

type ClanRepository struct {
	queries *db.Queries
	logger  zerolog.Logger
}

func NewClanRepository(queries *db.Queries, logger zerolog.Logger) *ClanRepository {
	return &ClanRepository{
		queries: queries,
		logger:  logger,
	}
}

// Get returns nil when the clan is not stored.
func (r *ClanRepository) Get(ctx context.Context, clanID int64) (*domain.Clan, error) {
	row, err := r.queries.GetClan(ctx, clanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return clanToDomain(row), nil
}

// Upsert writes the clan profile. A nil LastFetch keeps the stored one, so a
// clan seen only through a member's profile is still considered unfetched.
func (r *ClanRepository) Upsert(ctx context.Context, clan *domain.Clan, at time.Time) error {
	return r.queries.UpsertClan(ctx, db.UpsertClanParams{
		ClanID:       clan.ClanID,
		Name:         clan.Name,
		Tag:          clan.Tag,
		Description:  clan.Description,
		MembersCount: int64(clan.MembersCount),
		LeaderID:     clan.LeaderID,
		LeaderName:   clan.LeaderName,
		LastFetch:    utcPtr(clan.LastFetch),
		CreatedAt:    at.UTC(),
		UpdatedAt:    at.UTC(),
	})
}

// ListStale returns clans never fetched or last fetched before the cutoff,
// oldest first.
func (r *ClanRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Clan, error) {
	rows, err := r.queries.ListStaleClans(ctx, db.ListStaleClansParams{
		Before: before.UTC(),
		Limit:  int64(limit),
	})
	if err != nil {
		return nil, err
	}

	result := make([]domain.Clan, len(rows))
	for i, row := range rows {
		result[i] = *clanToDomain(row)
	}
	return result, nil
}

func clanToDomain(c db.Clan) *domain.Clan {
	return &domain.Clan{
		ClanID:       c.ClanID,
		Name:         c.Name,
		Tag:          c.Tag,
		Description:  c.Description,
		MembersCount: int(c.MembersCount),
		LeaderID:     c.LeaderID,
		LeaderName:   c.LeaderName,
		LastFetch:    c.LastFetch,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
