package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"battlestats/internal/activity"
	"battlestats/internal/aggregate"
	"battlestats/internal/api"
	"battlestats/internal/config"
	"battlestats/internal/constants"
	"battlestats/internal/domain"
	"battlestats/internal/freshness"
	"battlestats/internal/queue"
	"battlestats/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type PlayerService struct {
	upstream   Upstream
	players    *repository.PlayerRepository
	clans      *repository.ClanRepository
	queue      *queue.Queue
	thresholds freshness.Thresholds
	logger     zerolog.Logger

	now   func() time.Time
	group singleflight.Group
}

func NewPlayerService(
	cfg *config.Config,
	upstream Upstream,
	players *repository.PlayerRepository,
	clans *repository.ClanRepository,
	q *queue.Queue,
	logger zerolog.Logger,
) *PlayerService {
	return &PlayerService{
		upstream:   upstream,
		players:    players,
		clans:      clans,
		queue:      q,
		thresholds: cfg.Thresholds,
		logger:     logger.With().Str("service", "player").Logger(),
		now:        time.Now,
	}
}

// ResolvePlayer finds a player by display name, locally first and then
// upstream, and records the lookup.
func (s *PlayerService) ResolvePlayer(ctx context.Context, name string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrPlayerNotFound
	}

	var playerID int64
	local, err := s.players.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up player by name: %w", err)
	}
	if local != nil {
		playerID = local.PlayerID
	} else {
		s.logger.Debug().Str("name", name).Msg("player not stored, searching upstream")
		id, ok, err := s.upstream.FindPlayerID(ctx, name)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("player search failed")
			return nil, fmt.Errorf("failed to search player %s: %w", name, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, name)
		}
		playerID = id
	}

	player, err := s.EnsurePlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if err := s.players.TouchLookup(ctx, playerID, s.now()); err != nil {
		s.logger.Warn().Err(err).Int64("player_id", playerID).Msg("failed to record lookup")
	}
	return player, nil
}

// EnsurePlayer returns the stored player, fetching the profile synchronously
// the first time and in the background once it goes stale. It fails with
// domain.ErrPlayerNotFound only when the id is unknown locally and upstream
// has no such account; an upstream failure for an unknown id is returned as is.
func (s *PlayerService) EnsurePlayer(ctx context.Context, playerID int64) (*domain.Player, error) {
	log := s.logger.With().Int64("player_id", playerID).Logger()

	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}

	if player == nil || player.LastFetch == nil {
		_, err := runShared(ctx, &s.group, flightKey(JobRefreshProfile, playerID), func() error {
			return s.RefreshProfile(ctx, playerID)
		})
		if err != nil {
			if player == nil {
				log.Info().Err(err).Msg("player could not be resolved")
				if errors.Is(err, domain.ErrPlayerNotFound) {
					return nil, err
				}
				return nil, fmt.Errorf("failed to fetch player %d: %w", playerID, err)
			}
			log.Warn().Err(err).Msg("first profile fetch failed, serving stored row")
		}

		player, err = s.players.Get(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload player: %w", err)
		}
		if player == nil {
			return nil, fmt.Errorf("%w: %d", domain.ErrPlayerNotFound, playerID)
		}
	} else if freshness.IsStale(player.LastFetch, s.thresholds.PlayerProfile, s.now()) {
		s.enqueue(JobRefreshProfile, playerID)
	}

	player.DaysSinceLastBattle = daysSince(player.LastBattleDate, s.now())
	return player, nil
}

// RefreshProfile fetches the profile and clan membership and stores both.
func (s *PlayerService) RefreshProfile(ctx context.Context, playerID int64) error {
	log := s.logger.With().Int64("player_id", playerID).Logger()

	profile, err := s.upstream.GetPlayerProfile(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}
	if profile == nil {
		return fmt.Errorf("%w: %d", domain.ErrPlayerNotFound, playerID)
	}

	clan, clanErr := s.upstream.GetPlayerClan(ctx, playerID)
	if clanErr != nil {
		log.Warn().Err(clanErr).Msg("failed to fetch clan membership, keeping stored clan")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	if _, _, err := s.players.GetOrCreate(ctx, playerID, profile.Nickname, now); err != nil {
		return err
	}
	if err := s.players.UpdateProfile(ctx, playerID, toProfile(profile), now); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}

	if clanErr == nil {
		if err := s.storeMembership(ctx, playerID, clan, now); err != nil {
			return err
		}
	}

	log.Debug().Bool("hidden", profile.HiddenProfile).Msg("profile refreshed")
	return nil
}

func (s *PlayerService) storeMembership(ctx context.Context, playerID int64, clan *api.ClanSummary, now time.Time) error {
	if clan == nil {
		return s.players.SetClan(ctx, playerID, nil, now)
	}

	stored, err := s.clans.Get(ctx, clan.ClanID)
	if err != nil {
		return fmt.Errorf("failed to load clan: %w", err)
	}
	if stored == nil {
		// profile and member list come later from the clan refresh
		err := s.clans.Upsert(ctx, &domain.Clan{
			ClanID:       clan.ClanID,
			Name:         clan.Name,
			Tag:          clan.Tag,
			MembersCount: clan.MembersCount,
		}, now)
		if err != nil {
			return fmt.Errorf("failed to store clan: %w", err)
		}
	}

	clanID := clan.ClanID
	return s.players.SetClan(ctx, playerID, &clanID, now)
}

func (s *PlayerService) enqueue(job string, playerID int64) {
	enqueueRefresh(s.queue, s.logger, job, playerID, map[string]any{"player_id": playerID})
}

func (s *PlayerService) handleRefreshProfile(ctx context.Context, payload map[string]any) error {
	playerID, err := payloadID(payload, "player_id")
	if err != nil {
		return err
	}
	_, err = runShared(ctx, &s.group, flightKey(JobRefreshProfile, playerID), func() error {
		return s.RefreshProfile(ctx, playerID)
	})
	return err
}

func toProfile(p *api.PlayerProfile) domain.Profile {
	out := domain.Profile{
		Name:           p.Nickname,
		IsHidden:       p.HiddenProfile,
		CreationDate:   unixPtr(p.CreatedAt),
		LastBattleDate: unixPtr(p.LastBattleTime),
	}
	if p.Statistics == nil {
		return out
	}

	out.TotalBattles = p.Statistics.Battles
	if pvp := p.Statistics.Pvp; pvp != nil {
		out.PvpBattles = pvp.Battles
		out.PvpWins = pvp.Wins
		out.PvpLosses = pvp.Losses
		out.PvpRatio = percent(pvp.Wins, pvp.Battles)
		out.PvpSurvivalRate = percent(pvp.SurvivedBattles, pvp.Battles)
		out.WinsSurvivalRate = percent(pvp.SurvivedWins, pvp.Wins)
	}
	return out
}

func percent(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return aggregate.Round2(float64(num) / float64(den) * 100)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func daysSince(t *time.Time, now time.Time) int {
	if t == nil {
		return 0
	}
	days := int(activity.Day(now).Sub(activity.Day(*t)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// enqueueRefresh schedules a background job and logs the outcome. A job that
// is already queued or running is the expected RefreshInFlight case.
func enqueueRefresh(q *queue.Queue, logger zerolog.Logger, job string, id int64, payload map[string]any) {
	log := logger.With().Str("job", job).Int64("id", id).Logger()
	jobID, err := q.Enqueue(job, idKey(id), payload)
	switch {
	case err == nil:
		log.Debug().Str("job_id", jobID).Msg("background refresh enqueued")
	case errors.Is(err, queue.ErrInFlight):
		log.Debug().Str("job_id", jobID).Msg("refresh already in flight")
	default:
		log.Warn().Err(err).Msg("failed to enqueue background refresh")
	}
}
