package service

import (
	"context"
	"testing"
	"time"

	"battlestats/internal/api"
	"battlestats/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCruiser(env *testEnv) {
	env.upstream.profiles[1001] = profile(1001, "Captain", 100, 55)
	env.upstream.shipStats[1001] = []api.ShipStats{
		{ShipID: 1, Battles: 12, Distance: 500, Pvp: api.ShipPvp{Battles: 10, Wins: 6, Losses: 4, Frags: 12}},
		{ShipID: 2, Battles: 3, Distance: 40, Pvp: api.ShipPvp{Battles: 3, Wins: 1, Losses: 2}},
	}
	env.upstream.ships[1] = &api.ShipInfo{ShipID: 1, Name: "Des Moines", Nation: "usa", Type: "Cruiser", Tier: 10}
	// ship 2 is unknown upstream
}

func TestGetTierData_FirstRequestBuildsViews(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)
	ctx := context.Background()

	tiers, err := env.statsSvc.GetTierData(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, tiers, 11)
	assert.Equal(t, 11, tiers[0].ShipTier)
	assert.Equal(t, domain.TierStat{ShipTier: 10, PvpBattles: 10, Wins: 6, WinRatio: 0.6}, tiers[1])
	assert.Equal(t, domain.TierStat{ShipTier: 1}, tiers[10])

	types, err := env.statsSvc.GetTypeData(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, []domain.TypeStat{{ShipType: "Cruiser", PvpBattles: 10, Wins: 6, WinRatio: 0.6}}, types)

	randoms, err := env.statsSvc.GetRandomsData(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, randoms, 1)
	assert.Equal(t, 0.6, randoms[0].WinRatio)
	assert.Equal(t, "Des Moines", randoms[0].ShipName)

	battles, err := env.statsSvc.GetBattleData(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.Equal(t, 2, battles[0].PveBattles)
	assert.Equal(t, 1.2, battles[0].KDR)
	assert.Equal(t, 500, battles[0].Distance)

	// one upstream fetch serves every view
	assert.Equal(t, 1, env.upstream.count("GetShipStats"))
	assert.Equal(t, 2, env.upstream.count("GetShip"))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ViewLookups.WithLabelValues("tiers", "miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ViewLookups.WithLabelValues("battles", "fresh")))
}

func TestGetTierData_StaleServesCachedAndEnqueues(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)
	ctx := context.Background()

	first, err := env.statsSvc.GetTierData(ctx, 1001)
	require.NoError(t, err)

	env.upstream.shipStats[1001][0].Pvp.Wins = 8
	env.advance(25 * time.Hour)

	second, err := env.statsSvc.GetTierData(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, env.queue.InFlight(JobRefreshBattles, "1001"))
	assert.Equal(t, 1, env.upstream.count("GetShipStats"))

	// what the background job does
	require.NoError(t, env.statsSvc.RefreshBattleViews(ctx, 1001))
	assert.Equal(t, 2, env.upstream.count("GetShipStats"))
	// only the ship upstream could not resolve is looked up again
	assert.Equal(t, 3, env.upstream.count("GetShip"))

	player, err := env.players.Get(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, 8, player.Tiers[1].Wins)
	assert.Equal(t, 0.8, player.Tiers[1].WinRatio)
}

func TestRefreshBattleViews_ReusesFreshBattleList(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)
	ctx := context.Background()

	_, err := env.statsSvc.GetBattleData(ctx, 1001)
	require.NoError(t, err)

	env.advance(10 * time.Minute)
	require.NoError(t, env.statsSvc.RefreshBattleViews(ctx, 1001))
	assert.Equal(t, 1, env.upstream.count("GetShipStats"))

	player, err := env.players.Get(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, testNow.Equal(*player.BattlesUpdatedAt))
	assert.True(t, testNow.Add(10*time.Minute).Equal(*player.TiersUpdatedAt))
}

func TestGetTierData_UpstreamFailureReturnsEmpty(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)
	ctx := context.Background()

	_, err := env.playerSvc.EnsurePlayer(ctx, 1001)
	require.NoError(t, err)

	env.upstream.setErr(api.ErrUpstreamUnavailable)
	tiers, err := env.statsSvc.GetTierData(ctx, 1001)
	require.NoError(t, err)
	assert.Empty(t, tiers)

	player, err := env.players.Get(ctx, 1001)
	require.NoError(t, err)
	assert.Nil(t, player.Tiers)
	assert.Nil(t, player.TiersUpdatedAt)
}

func TestGetTierData_FailedShipLookupIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)
	env.upstream.shipStats[1001] = append(env.upstream.shipStats[1001],
		api.ShipStats{ShipID: 999, Battles: 5, Pvp: api.ShipPvp{Battles: 5, Wins: 5}})
	env.upstream.shipErrs[999] = api.ErrUpstreamMalformed
	ctx := context.Background()

	tiers, err := env.statsSvc.GetTierData(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, tiers, 11)
	assert.Equal(t, domain.TierStat{ShipTier: 10, PvpBattles: 10, Wins: 6, WinRatio: 0.6}, tiers[1])

	battles, err := env.statsSvc.GetBattleData(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, battles, 1)
	assert.Equal(t, "Des Moines", battles[0].ShipName)
	assert.Equal(t, 3, env.upstream.count("GetShip"))
}

func TestRefresh_CancelledCallerDoesNotBlockRetry(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)

	_, err := env.playerSvc.EnsurePlayer(context.Background(), 1001)
	require.NoError(t, err)

	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	env.upstream.mu.Lock()
	env.upstream.holdShipStats = hold
	env.upstream.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.statsSvc.refresh(ctx, JobRefreshBattles, 1001) }()

	require.Eventually(t, func() bool {
		return env.upstream.count("GetShipStats") == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// the first run is still blocked upstream; the retry must not join it
	require.NoError(t, env.statsSvc.refresh(context.Background(), JobRefreshBattles, 1001))
	assert.Equal(t, 2, env.upstream.count("GetShipStats"))

	player, err := env.players.Get(context.Background(), 1001)
	require.NoError(t, err)
	require.Len(t, player.Battles, 1)
	assert.NotNil(t, player.TiersUpdatedAt)
}

func TestGetTierData_UnknownPlayer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.statsSvc.GetTierData(context.Background(), 4242)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestRefreshBattleViews_CancelledLeavesCacheUntouched(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)

	_, err := env.playerSvc.EnsurePlayer(context.Background(), 1001)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, env.statsSvc.RefreshBattleViews(ctx, 1001), context.Canceled)

	player, err := env.players.Get(context.Background(), 1001)
	require.NoError(t, err)
	assert.Nil(t, player.Battles)
	assert.Nil(t, player.BattlesUpdatedAt)
}

func TestGetActivityData_BuildsTimeline(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.profiles[1001] = profile(1001, "Captain", 140, 70)
	env.upstream.daily[1001] = map[string]api.DailyStats{}
	for i, b := range []int{100, 100, 115, 115, 140} {
		date := time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format("20060102")
		env.upstream.daily[1001][date] = api.DailyStats{Battles: b, Wins: b / 2, BattleType: "pvp", Date: date}
	}
	ctx := context.Background()

	days, err := env.statsSvc.GetActivityData(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, days, 29)
	assert.Equal(t, "2024-02-11", days[0].Date)
	assert.Equal(t, "2024-03-10", days[28].Date)
	assert.Equal(t, 4, env.upstream.count("GetDailySnapshots"))

	// empty weeks store one zero snapshot on their last day
	window, err := env.snapshots.ListSince(ctx, 1001, "2024-02-11")
	require.NoError(t, err)
	dates := make([]string, len(window))
	for i, s := range window {
		dates[i] = s.Date
	}
	assert.Equal(t, []string{
		"2024-02-17", "2024-02-24",
		"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04", "2024-03-05",
	}, dates)

	assert.Equal(t, domain.ActivityDay{Date: "2024-02-17"}, days[6])
	assert.Equal(t, domain.ActivityDay{Date: "2024-03-01", Battles: 100, Wins: 50}, days[19])
	assert.Equal(t, domain.ActivityDay{Date: "2024-03-02"}, days[20])
	assert.Equal(t, domain.ActivityDay{Date: "2024-03-03", Battles: 15, Wins: 7}, days[21])
	assert.Equal(t, domain.ActivityDay{Date: "2024-03-05", Battles: 25, Wins: 13}, days[23])
	assert.Equal(t, domain.ActivityDay{Date: "2024-03-10"}, days[28])
}

func TestRefreshActivity_SnapshotFetchIsGated(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.profiles[1001] = profile(1001, "Captain", 140, 70)
	ctx := context.Background()

	_, err := env.statsSvc.GetActivityData(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, 4, env.upstream.count("GetDailySnapshots"))

	env.advance(16 * time.Minute)
	_, err = env.statsSvc.GetActivityData(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, env.queue.InFlight(JobRefreshActivity, "1001"))

	// timeline is rebuilt, snapshots are not refetched within a day
	require.NoError(t, env.statsSvc.RefreshActivity(ctx, 1001))
	assert.Equal(t, 4, env.upstream.count("GetDailySnapshots"))

	env.advance(24 * time.Hour)
	require.NoError(t, env.statsSvc.RefreshActivity(ctx, 1001))
	assert.Equal(t, 8, env.upstream.count("GetDailySnapshots"))
}

func TestBackgroundJobRefreshesView(t *testing.T) {
	env := newTestEnv(t)
	seedCruiser(env)
	ctx := context.Background()

	_, err := env.statsSvc.GetRandomsData(ctx, 1001)
	require.NoError(t, err)

	env.upstream.shipStats[1001][0].Pvp.Battles = 20
	env.advance(25 * time.Hour)

	require.NoError(t, env.queue.Start())
	t.Cleanup(func() { _ = env.queue.Stop(context.Background()) })

	_, err = env.statsSvc.GetRandomsData(ctx, 1001)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		player, err := env.players.Get(ctx, 1001)
		return err == nil && len(player.Randoms) == 1 && player.Randoms[0].PvpBattles == 20
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPruneSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.profiles[1001] = profile(1001, "Captain", 140, 70)
	ctx := context.Background()

	_, err := env.playerSvc.EnsurePlayer(ctx, 1001)
	require.NoError(t, err)
	_, err = env.snapshots.SaveWindow(ctx, 1001, []domain.Snapshot{
		{Date: "2023-12-01", BattleType: "pvp"},
		{Date: "2024-03-01", BattleType: "pvp"},
	}, "2000-01-01", testNow)
	require.NoError(t, err)

	n, err := env.statsSvc.PruneSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
