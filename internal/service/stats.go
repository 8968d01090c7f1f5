package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"battlestats/internal/activity"
	"battlestats/internal/aggregate"
	"battlestats/internal/api"
	"battlestats/internal/config"
	"battlestats/internal/constants"
	"battlestats/internal/domain"
	"battlestats/internal/freshness"
	"battlestats/internal/metrics"
	"battlestats/internal/queue"
	"battlestats/internal/repository"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// StatsService serves the cached per-player views. A view that was never
// built is refreshed synchronously; a stale one is returned as is while a
// background job rebuilds it.
type StatsService struct {
	upstream  Upstream
	players   *PlayerService
	playerDB  *repository.PlayerRepository
	ships     *repository.ShipRepository
	snapshots *repository.SnapshotRepository
	queue     *queue.Queue
	metrics   *metrics.Metrics
	cfg       *config.Config
	logger    zerolog.Logger

	now   func() time.Time
	group singleflight.Group
}

func NewStatsService(
	cfg *config.Config,
	upstream Upstream,
	players *PlayerService,
	playerDB *repository.PlayerRepository,
	ships *repository.ShipRepository,
	snapshots *repository.SnapshotRepository,
	q *queue.Queue,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *StatsService {
	return &StatsService{
		upstream:  upstream,
		players:   players,
		playerDB:  playerDB,
		ships:     ships,
		snapshots: snapshots,
		queue:     q,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With().Str("service", "stats").Logger(),
		now:       time.Now,
	}
}

// view describes one cached column: which job rebuilds it, how long it stays
// fresh and how to read it off a player.
type view[T any] struct {
	name      string
	job       string
	threshold time.Duration
	read      func(*domain.Player) ([]T, *time.Time)
}

func serveView[T any](ctx context.Context, s *StatsService, playerID int64, v view[T]) ([]T, error) {
	player, err := s.players.EnsurePlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().Int64("player_id", playerID).Str("view", v.name).Logger()
	cached, updatedAt := v.read(player)

	var state string
	switch {
	case cached == nil || updatedAt == nil:
		state = "miss"
		if err := s.refresh(ctx, v.job, playerID); err != nil {
			log.Warn().Err(err).Msg("synchronous refresh failed")
			break
		}
		player, err := s.playerDB.Get(ctx, playerID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to reload player after refresh")
			break
		}
		if player != nil {
			cached, _ = v.read(player)
		}
	case freshness.IsStale(updatedAt, v.threshold, s.now()):
		state = "stale"
		s.enqueue(v.job, playerID)
	default:
		state = "fresh"
	}

	s.metrics.ViewLookups.WithLabelValues(v.name, state).Inc()
	log.Debug().Str("state", state).Int("rows", len(cached)).Msg("view served")

	if cached == nil {
		cached = []T{}
	}
	return cached, nil
}

func (s *StatsService) GetBattleData(ctx context.Context, playerID int64) ([]domain.ShipStat, error) {
	return serveView(ctx, s, playerID, view[domain.ShipStat]{
		name:      "battles",
		job:       JobRefreshBattles,
		threshold: s.cfg.Thresholds.Battles,
		read: func(p *domain.Player) ([]domain.ShipStat, *time.Time) {
			return p.Battles, p.BattlesUpdatedAt
		},
	})
}

func (s *StatsService) GetTierData(ctx context.Context, playerID int64) ([]domain.TierStat, error) {
	return serveView(ctx, s, playerID, view[domain.TierStat]{
		name:      "tiers",
		job:       JobRefreshBattles,
		threshold: s.cfg.Thresholds.DerivedViews,
		read: func(p *domain.Player) ([]domain.TierStat, *time.Time) {
			return p.Tiers, p.TiersUpdatedAt
		},
	})
}

func (s *StatsService) GetTypeData(ctx context.Context, playerID int64) ([]domain.TypeStat, error) {
	return serveView(ctx, s, playerID, view[domain.TypeStat]{
		name:      "types",
		job:       JobRefreshBattles,
		threshold: s.cfg.Thresholds.DerivedViews,
		read: func(p *domain.Player) ([]domain.TypeStat, *time.Time) {
			return p.Types, p.TypesUpdatedAt
		},
	})
}

func (s *StatsService) GetRandomsData(ctx context.Context, playerID int64) ([]domain.RandomsStat, error) {
	return serveView(ctx, s, playerID, view[domain.RandomsStat]{
		name:      "randoms",
		job:       JobRefreshBattles,
		threshold: s.cfg.Thresholds.DerivedViews,
		read: func(p *domain.Player) ([]domain.RandomsStat, *time.Time) {
			return p.Randoms, p.RandomsUpdatedAt
		},
	})
}

func (s *StatsService) GetActivityData(ctx context.Context, playerID int64) ([]domain.ActivityDay, error) {
	return serveView(ctx, s, playerID, view[domain.ActivityDay]{
		name:      "activity",
		job:       JobRefreshActivity,
		threshold: s.cfg.Thresholds.Activity,
		read: func(p *domain.Player) ([]domain.ActivityDay, *time.Time) {
			return p.Activity, p.ActivityUpdated
		},
	})
}

// refresh runs a job inline, sharing the run with any concurrent caller or
// background job for the same player.
func (s *StatsService) refresh(ctx context.Context, job string, playerID int64) error {
	shared, err := runShared(ctx, &s.group, flightKey(job, playerID), func() error {
		switch job {
		case JobRefreshBattles:
			return s.RefreshBattleViews(ctx, playerID)
		case JobRefreshActivity:
			return s.RefreshActivity(ctx, playerID)
		default:
			return fmt.Errorf("%w: %s", queue.ErrUnknownJob, job)
		}
	})
	if shared {
		s.logger.Debug().Str("job", job).Int64("player_id", playerID).Msg("joined in-flight refresh")
	}
	return err
}

func (s *StatsService) enqueue(job string, playerID int64) {
	enqueueRefresh(s.queue, s.logger, job, playerID, map[string]any{"player_id": playerID})
}

// RefreshBattleViews refetches the per-ship list when it is stale, re-derives
// the tier, type and randoms views from it, and stores all four in one write.
func (s *StatsService) RefreshBattleViews(ctx context.Context, playerID int64) error {
	player, err := s.playerDB.Get(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to load player: %w", err)
	}
	if player == nil {
		return fmt.Errorf("%w: %d", domain.ErrPlayerNotFound, playerID)
	}

	now := s.now()
	log := s.logger.With().Int64("player_id", playerID).Logger()

	battles := player.Battles
	battlesAt := now
	if battles != nil && !freshness.IsStale(player.BattlesUpdatedAt, s.cfg.Thresholds.Battles, now) {
		battlesAt = *player.BattlesUpdatedAt
	} else {
		stats, err := s.upstream.GetShipStats(ctx, playerID)
		if err != nil {
			return fmt.Errorf("failed to fetch ship stats: %w", err)
		}

		records := lo.Map(stats, func(st api.ShipStats, _ int) aggregate.Record {
			return aggregate.Record{
				ShipID:   st.ShipID,
				Battles:  st.Battles,
				Distance: st.Distance,
				Pvp: aggregate.PvpRecord{
					Battles: st.Pvp.Battles,
					Wins:    st.Pvp.Wins,
					Losses:  st.Pvp.Losses,
					Frags:   st.Pvp.Frags,
				},
			}
		})

		ships, err := s.resolveShips(ctx, lo.Map(records, func(r aggregate.Record, _ int) int64 { return r.ShipID }))
		if err != nil {
			return err
		}

		battles = aggregate.BuildBattles(records, ships)
		log.Debug().
			Int("records", len(records)).
			Int("resolved", len(battles)).
			Msg("battle list rebuilt")
	}

	views := aggregate.Derive(battles)

	if err := ctx.Err(); err != nil {
		return err
	}

	return s.playerDB.SaveBattleViews(ctx, playerID, repository.BattleViews{
		Battles:   battles,
		BattlesAt: battlesAt,
		Tiers:     views.Tiers,
		Types:     views.Types,
		Randoms:   views.Randoms,
		DerivedAt: now,
	})
}

// resolveShips looks each ship up in the local cache and then upstream.
// Ships upstream does not know or fails to return are left out of the
// result; only storage errors and cancellation fail the whole lookup.
func (s *StatsService) resolveShips(ctx context.Context, shipIDs []int64) (map[int64]*domain.Ship, error) {
	var mu sync.Mutex
	ships := make(map[int64]*domain.Ship, len(shipIDs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(constants.ShipLookupConcurrency)

	for _, shipID := range lo.Uniq(shipIDs) {
		g.Go(func() error {
			ship, err := s.ships.Get(gCtx, shipID)
			if err != nil {
				return fmt.Errorf("failed to load ship %d: %w", shipID, err)
			}

			if ship == nil {
				info, err := s.upstream.GetShip(gCtx, shipID)
				if err != nil {
					if ctxErr := gCtx.Err(); ctxErr != nil {
						return ctxErr
					}
					s.logger.Warn().Err(err).Int64("ship_id", shipID).Msg("ship lookup failed, skipping")
					return nil
				}
				if info == nil || info.Name == "" {
					s.logger.Debug().Int64("ship_id", shipID).Msg("ship not resolvable, skipping")
					return nil
				}
				ship = &domain.Ship{
					ShipID:    shipID,
					Name:      info.Name,
					Nation:    info.Nation,
					ShipType:  info.Type,
					Tier:      info.Tier,
					IsPremium: info.IsPremium,
					CreatedAt: s.now(),
				}
				if err := s.ships.Create(gCtx, ship); err != nil {
					return err
				}
			}

			mu.Lock()
			ships[shipID] = ship
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ships, nil
}

// RefreshActivity refetches the trailing four weeks of daily snapshots when
// the newest one is older than the snapshot threshold, recomputes the
// intervals, and stores the 29-day timeline.
func (s *StatsService) RefreshActivity(ctx context.Context, playerID int64) error {
	player, err := s.playerDB.Get(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to load player: %w", err)
	}
	if player == nil {
		return fmt.Errorf("%w: %d", domain.ErrPlayerNotFound, playerID)
	}

	now := s.now()
	today := activity.Day(now)
	since := activity.WindowStart(today).Format(constants.SnapshotDateLayout)
	log := s.logger.With().Int64("player_id", playerID).Logger()

	latest, err := s.snapshots.LatestFetch(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to read snapshot fetch time: %w", err)
	}

	var window []domain.Snapshot
	if freshness.IsStale(latest, s.cfg.Thresholds.Snapshots, now) {
		batches := activity.WeekBatches(today)
		results := make([][]domain.Snapshot, len(batches))

		g, gCtx := errgroup.WithContext(ctx)
		for i, week := range batches {
			g.Go(func() error {
				rows, err := s.fetchWeek(gCtx, playerID, week)
				if err != nil {
					return err
				}
				results[i] = rows
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		window, err = s.snapshots.SaveWindow(ctx, playerID, lo.Flatten(results), since, now)
		if err != nil {
			return fmt.Errorf("failed to save snapshots: %w", err)
		}
		log.Debug().Int("window", len(window)).Msg("snapshots refetched")
	} else {
		window, err = s.snapshots.ListSince(ctx, playerID, since)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
	}

	days := activity.BuildTimeline(window, today)

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.playerDB.SaveActivity(ctx, playerID, days, now)
}

// fetchWeek returns one snapshot per date upstream reported for the week, or
// a single zero snapshot on the week's last date when it reported nothing.
func (s *StatsService) fetchWeek(ctx context.Context, playerID int64, week []time.Time) ([]domain.Snapshot, error) {
	dates := lo.Map(week, func(d time.Time, _ int) string {
		return d.Format(constants.UpstreamDateLayout)
	})

	data, err := s.upstream.GetDailySnapshots(ctx, playerID, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshots for %s..%s: %w", dates[0], dates[len(dates)-1], err)
	}

	if len(data) == 0 {
		return []domain.Snapshot{{
			PlayerID:   playerID,
			Date:       activity.EmptyWeekDate(week).Format(constants.SnapshotDateLayout),
			BattleType: "pvp",
		}}, nil
	}

	rows := make([]domain.Snapshot, 0, len(data))
	for key, day := range data {
		date, err := time.Parse(constants.UpstreamDateLayout, key)
		if err != nil {
			s.logger.Warn().Err(err).Int64("player_id", playerID).Str("date", key).Msg("skipping snapshot with bad date")
			continue
		}
		battleType := day.BattleType
		if battleType == "" {
			battleType = "pvp"
		}
		rows = append(rows, domain.Snapshot{
			PlayerID:        playerID,
			Date:            date.Format(constants.SnapshotDateLayout),
			Battles:         day.Battles,
			Wins:            day.Wins,
			SurvivedBattles: day.SurvivedBattles,
			BattleType:      battleType,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}

// PruneSnapshots deletes snapshots older than the configured retention.
func (s *StatsService) PruneSnapshots(ctx context.Context) (int64, error) {
	cutoff := activity.Day(s.now().Add(-s.cfg.SnapshotRetention)).Format(constants.SnapshotDateLayout)
	n, err := s.snapshots.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	s.logger.Info().Str("before", cutoff).Int64("deleted", n).Msg("snapshots pruned")
	return n, nil
}

func (s *StatsService) handleRefresh(job string) queue.Handler {
	return func(ctx context.Context, payload map[string]any) error {
		playerID, err := payloadID(payload, "player_id")
		if err != nil {
			return err
		}
		return s.refresh(ctx, job, playerID)
	}
}
