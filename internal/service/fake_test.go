package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"battlestats/internal/api"
	"battlestats/internal/config"
	"battlestats/internal/database"
	"battlestats/internal/db"
	"battlestats/internal/freshness"
	"battlestats/internal/metrics"
	"battlestats/internal/queue"
	"battlestats/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 10, 17, 45, 0, 0, time.UTC)

type fakeUpstream struct {
	mu sync.Mutex

	ids       map[string]int64
	profiles  map[int64]*api.PlayerProfile
	shipStats map[int64][]api.ShipStats
	ships     map[int64]*api.ShipInfo
	daily     map[int64]map[string]api.DailyStats
	playerCl  map[int64]*api.ClanSummary
	clans     map[int64]*api.ClanInfo
	shipErrs  map[int64]error
	err       error

	// holdShipStats, when set, blocks the next GetShipStats call until closed
	holdShipStats chan struct{}

	calls map[string]int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		ids:       map[string]int64{},
		profiles:  map[int64]*api.PlayerProfile{},
		shipStats: map[int64][]api.ShipStats{},
		ships:     map[int64]*api.ShipInfo{},
		daily:     map[int64]map[string]api.DailyStats{},
		playerCl:  map[int64]*api.ClanSummary{},
		clans:     map[int64]*api.ClanInfo{},
		shipErrs:  map[int64]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeUpstream) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.err
}

func (f *fakeUpstream) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeUpstream) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeUpstream) FindPlayerID(ctx context.Context, name string) (int64, bool, error) {
	if err := f.record("FindPlayerID"); err != nil {
		return 0, false, err
	}
	id, ok := f.ids[name]
	return id, ok, nil
}

func (f *fakeUpstream) GetPlayerProfile(ctx context.Context, playerID int64) (*api.PlayerProfile, error) {
	if err := f.record("GetPlayerProfile"); err != nil {
		return nil, err
	}
	return f.profiles[playerID], nil
}

func (f *fakeUpstream) GetPlayerProfiles(ctx context.Context, playerIDs []int64) (map[int64]*api.PlayerProfile, error) {
	if err := f.record("GetPlayerProfiles"); err != nil {
		return nil, err
	}
	out := map[int64]*api.PlayerProfile{}
	for _, id := range playerIDs {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeUpstream) GetShipStats(ctx context.Context, playerID int64) ([]api.ShipStats, error) {
	if err := f.record("GetShipStats"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	hold := f.holdShipStats
	f.holdShipStats = nil
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return f.shipStats[playerID], nil
}

func (f *fakeUpstream) GetShip(ctx context.Context, shipID int64) (*api.ShipInfo, error) {
	if err := f.record("GetShip"); err != nil {
		return nil, err
	}
	if err := f.shipErrs[shipID]; err != nil {
		return nil, err
	}
	return f.ships[shipID], nil
}

func (f *fakeUpstream) GetDailySnapshots(ctx context.Context, playerID int64, dates []string) (map[string]api.DailyStats, error) {
	if err := f.record("GetDailySnapshots"); err != nil {
		return nil, err
	}
	out := map[string]api.DailyStats{}
	for _, d := range dates {
		if s, ok := f.daily[playerID][d]; ok {
			out[d] = s
		}
	}
	return out, nil
}

func (f *fakeUpstream) GetPlayerClan(ctx context.Context, playerID int64) (*api.ClanSummary, error) {
	if err := f.record("GetPlayerClan"); err != nil {
		return nil, err
	}
	return f.playerCl[playerID], nil
}

func (f *fakeUpstream) GetClanInfo(ctx context.Context, clanID int64) (*api.ClanInfo, error) {
	if err := f.record("GetClanInfo"); err != nil {
		return nil, err
	}
	return f.clans[clanID], nil
}

func (f *fakeUpstream) GetClanMemberIDs(ctx context.Context, clanID int64) ([]int64, error) {
	if err := f.record("GetClanMemberIDs"); err != nil {
		return nil, err
	}
	if c, ok := f.clans[clanID]; ok {
		return c.MembersIDs, nil
	}
	return nil, nil
}

type testEnv struct {
	cfg       *config.Config
	sqlDB     *sql.DB
	upstream  *fakeUpstream
	queue     *queue.Queue
	metrics   *metrics.Metrics
	players   *repository.PlayerRepository
	clanRepo  *repository.ClanRepository
	snapshots *repository.SnapshotRepository

	playerSvc *PlayerService
	statsSvc  *StatsService
	clanSvc   *ClanService

	clock *time.Time
}

// newTestEnv wires the services over a temp database and a queue that is
// never started, so enqueued jobs stay visible through InFlight.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		DBPath:            filepath.Join(t.TempDir(), "test.db"),
		Thresholds:        freshness.DefaultThresholds(),
		RefreshWorkers:    1,
		RefreshQueueSize:  64,
		RefreshJobTimeout: time.Minute,
		SnapshotRetention: 60 * 24 * time.Hour,
	}
	sqlDB, err := database.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	queries := db.New(sqlDB)
	logger := zerolog.Nop()
	m := metrics.New()
	q := queue.New(cfg, m, logger)
	up := newFakeUpstream()

	players := repository.NewPlayerRepository(sqlDB, queries, logger)
	clans := repository.NewClanRepository(queries, logger)
	ships := repository.NewShipRepository(queries, logger)
	snapshots := repository.NewSnapshotRepository(sqlDB, queries, logger)

	env := &testEnv{
		cfg:       cfg,
		sqlDB:     sqlDB,
		upstream:  up,
		queue:     q,
		metrics:   m,
		players:   players,
		clanRepo:  clans,
		snapshots: snapshots,
	}

	clock := testNow
	env.clock = &clock
	now := func() time.Time { return *env.clock }

	env.playerSvc = NewPlayerService(cfg, up, players, clans, q, logger)
	env.playerSvc.now = now
	env.statsSvc = NewStatsService(cfg, up, env.playerSvc, players, ships, snapshots, q, m, logger)
	env.statsSvc.now = now
	env.clanSvc = NewClanService(cfg, up, clans, players, q, logger)
	env.clanSvc.now = now

	RegisterJobs(q, env.playerSvc, env.statsSvc, env.clanSvc)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func profile(id int64, name string, battles, wins int) *api.PlayerProfile {
	return &api.PlayerProfile{
		AccountID:      id,
		Nickname:       name,
		CreatedAt:      testNow.Add(-365 * 24 * time.Hour).Unix(),
		LastBattleTime: testNow.Add(-49 * time.Hour).Unix(),
		Statistics: &api.ProfileStatistics{
			Battles: battles + 5,
			Pvp: &api.PvpTotals{
				Battles:         battles,
				Wins:            wins,
				Losses:          battles - wins,
				SurvivedBattles: battles / 2,
				SurvivedWins:    wins / 2,
			},
		},
	}
}
