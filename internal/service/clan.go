package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"battlestats/internal/aggregate"
	"battlestats/internal/config"
	"battlestats/internal/constants"
	"battlestats/internal/domain"
	"battlestats/internal/freshness"
	"battlestats/internal/queue"
	"battlestats/internal/repository"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

type ClanService struct {
	upstream   Upstream
	clans      *repository.ClanRepository
	players    *repository.PlayerRepository
	queue      *queue.Queue
	thresholds freshness.Thresholds
	logger     zerolog.Logger

	now   func() time.Time
	group singleflight.Group
}

func NewClanService(
	cfg *config.Config,
	upstream Upstream,
	clans *repository.ClanRepository,
	players *repository.PlayerRepository,
	q *queue.Queue,
	logger zerolog.Logger,
) *ClanService {
	return &ClanService{
		upstream:   upstream,
		clans:      clans,
		players:    players,
		queue:      q,
		thresholds: cfg.Thresholds,
		logger:     logger.With().Str("service", "clan").Logger(),
		now:        time.Now,
	}
}

// GetClan returns the stored clan profile. A clan never fetched is refreshed
// synchronously; a stale one is refreshed in the background.
func (s *ClanService) GetClan(ctx context.Context, clanID int64) (*domain.Clan, error) {
	log := s.logger.With().Int64("clan_id", clanID).Logger()

	clan, err := s.clans.Get(ctx, clanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clan: %w", err)
	}

	if clan == nil || clan.LastFetch == nil {
		if err := s.refresh(ctx, clanID); err != nil {
			if clan == nil || errors.Is(err, domain.ErrClanNotFound) {
				log.Info().Err(err).Msg("clan could not be resolved")
				if errors.Is(err, domain.ErrClanNotFound) {
					return nil, err
				}
				return nil, fmt.Errorf("failed to fetch clan %d: %w", clanID, err)
			}
			log.Warn().Err(err).Msg("first clan fetch failed, serving stored row")
			return clan, nil
		}
		clan, err = s.clans.Get(ctx, clanID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload clan: %w", err)
		}
		if clan == nil {
			return nil, fmt.Errorf("%w: %d", domain.ErrClanNotFound, clanID)
		}
		return clan, nil
	}

	if freshness.IsStale(clan.LastFetch, s.thresholds.Clan, s.now()) {
		s.enqueue(clanID)
	}
	return clan, nil
}

// GetClanMembers lists the stored members, most pvp battles first. When fewer
// members are stored than the clan reports, the member list is populated:
// inline if none are stored yet, otherwise in the background.
func (s *ClanService) GetClanMembers(ctx context.Context, clanID int64) ([]domain.ClanMemberStat, error) {
	clan, err := s.GetClan(ctx, clanID)
	if err != nil {
		return nil, err
	}

	count, err := s.players.CountByClan(ctx, clanID)
	if err != nil {
		return nil, fmt.Errorf("failed to count clan members: %w", err)
	}

	if count < clan.MembersCount {
		if count == 0 {
			if err := s.refresh(ctx, clanID); err != nil {
				s.logger.Warn().Err(err).Int64("clan_id", clanID).Msg("member population failed")
			}
		} else {
			s.enqueue(clanID)
		}
	}

	members, err := s.players.ListByClan(ctx, clanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clan members: %w", err)
	}

	stats := lo.Map(members, func(p domain.Player, _ int) domain.ClanMemberStat {
		return domain.ClanMemberStat{
			PlayerName: p.Name,
			PvpBattles: p.PvpBattles,
			WinRatio:   aggregate.Ratio(p.PvpWins, p.PvpBattles),
		}
	})
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].PvpBattles > stats[j].PvpBattles
	})
	return stats, nil
}

// RefreshClan stores the clan profile and syncs its member list.
func (s *ClanService) RefreshClan(ctx context.Context, clanID int64) error {
	info, err := s.upstream.GetClanInfo(ctx, clanID)
	if err != nil {
		return fmt.Errorf("failed to fetch clan: %w", err)
	}
	if info == nil {
		return fmt.Errorf("%w: %d", domain.ErrClanNotFound, clanID)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	clan := &domain.Clan{
		ClanID:       clanID,
		Name:         info.Name,
		Tag:          info.Tag,
		Description:  info.Description,
		MembersCount: info.MembersCount,
		LeaderName:   info.LeaderName,
		LastFetch:    &now,
	}
	if info.LeaderID != 0 {
		clan.LeaderID = &info.LeaderID
	}
	if err := s.clans.Upsert(ctx, clan, now); err != nil {
		return fmt.Errorf("failed to store clan: %w", err)
	}

	return s.populateMembers(ctx, clan)
}

// populateMembers syncs the stored member list with upstream: players who
// left lose their clan, missing members are created from bulk profiles.
func (s *ClanService) populateMembers(ctx context.Context, clan *domain.Clan) error {
	log := s.logger.With().Int64("clan_id", clan.ClanID).Logger()

	memberIDs, err := s.upstream.GetClanMemberIDs(ctx, clan.ClanID)
	if err != nil {
		return fmt.Errorf("failed to fetch member ids: %w", err)
	}

	stored, err := s.players.ListByClan(ctx, clan.ClanID)
	if err != nil {
		return fmt.Errorf("failed to list clan members: %w", err)
	}

	current := lo.SliceToMap(memberIDs, func(id int64) (int64, struct{}) { return id, struct{}{} })
	departed := lo.Filter(stored, func(p domain.Player, _ int) bool {
		_, ok := current[p.PlayerID]
		return !ok
	})
	// an empty id list is a missing upstream answer, not an empty clan
	if len(memberIDs) > 0 {
		for _, p := range departed {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.players.SetClan(ctx, p.PlayerID, nil, s.now()); err != nil {
				return fmt.Errorf("failed to clear departed member: %w", err)
			}
		}
	}

	known := lo.SliceToMap(stored, func(p domain.Player) (int64, struct{}) { return p.PlayerID, struct{}{} })
	missing := lo.Filter(memberIDs, func(id int64, _ int) bool {
		_, ok := known[id]
		return !ok
	})

	clanID := clan.ClanID
	created := 0
	for _, chunk := range lo.Chunk(missing, constants.ProfileBatchSize) {
		profiles, err := s.upstream.GetPlayerProfiles(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to fetch member profiles: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.now()
		for _, id := range chunk {
			profile, ok := profiles[id]
			if !ok {
				log.Debug().Int64("player_id", id).Msg("member has no profile, skipping")
				continue
			}
			_, wasCreated, err := s.players.GetOrCreate(ctx, id, profile.Nickname, now)
			if err != nil {
				return err
			}
			if err := s.players.UpdateProfile(ctx, id, toProfile(profile), now); err != nil {
				return fmt.Errorf("failed to store member profile: %w", err)
			}
			if err := s.players.SetClan(ctx, id, &clanID, now); err != nil {
				return fmt.Errorf("failed to set member clan: %w", err)
			}
			if wasCreated {
				created++
			}
		}
	}

	log.Info().
		Int("upstream_members", len(memberIDs)).
		Int("departed", len(departed)).
		Int("missing", len(missing)).
		Int("created", created).
		Msg("clan members populated")
	return nil
}

// SweepStaleClans enqueues a refresh for clans whose profile is older than
// the clan threshold and returns how many were enqueued.
func (s *ClanService) SweepStaleClans(ctx context.Context) (int, error) {
	before := s.now().Add(-s.thresholds.Clan)
	stale, err := s.clans.ListStale(ctx, before, constants.StaleClanSweepLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale clans: %w", err)
	}

	enqueued := 0
	for _, clan := range stale {
		_, err := s.queue.Enqueue(JobRefreshClan, idKey(clan.ClanID), map[string]any{"clan_id": clan.ClanID})
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, queue.ErrInFlight):
		case errors.Is(err, queue.ErrQueueFull):
			s.logger.Warn().Int("enqueued", enqueued).Msg("refresh queue full, stopping clan sweep")
			return enqueued, nil
		default:
			return enqueued, err
		}
	}

	s.logger.Info().Int("stale", len(stale)).Int("enqueued", enqueued).Msg("stale clan sweep done")
	return enqueued, nil
}

func (s *ClanService) refresh(ctx context.Context, clanID int64) error {
	_, err := runShared(ctx, &s.group, flightKey(JobRefreshClan, clanID), func() error {
		return s.RefreshClan(ctx, clanID)
	})
	return err
}

func (s *ClanService) enqueue(clanID int64) {
	enqueueRefresh(s.queue, s.logger, JobRefreshClan, clanID, map[string]any{"clan_id": clanID})
}

func (s *ClanService) handleRefreshClan(ctx context.Context, payload map[string]any) error {
	clanID, err := payloadID(payload, "clan_id")
	if err != nil {
		return err
	}
	return s.refresh(ctx, clanID)
}
