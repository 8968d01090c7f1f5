package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"battlestats/internal/config"
	"battlestats/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*WowsClient, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.New()
	cfg := &config.Config{
		WGAppID:       "test-app",
		WGBaseURL:     srv.URL,
		ShipCacheSize: 16,
		ShipCacheTTL:  time.Hour,
	}
	return NewWowsClient(cfg, m), m
}

func TestFindPlayerID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/list/", r.URL.Path)
		assert.Equal(t, "test-app", r.URL.Query().Get("application_id"))
		assert.Equal(t, "exact", r.URL.Query().Get("type"))
		switch r.URL.Query().Get("search") {
		case "Captain":
			fmt.Fprint(w, `{"status":"ok","data":[{"nickname":"Captain","account_id":1001}]}`)
		default:
			fmt.Fprint(w, `{"status":"ok","data":[]}`)
		}
	})

	id, ok, err := client.FindPlayerID(context.Background(), "Captain")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1001), id)

	_, ok, err = client.FindPlayerID(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPlayerProfile(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("account_id") {
		case "1001":
			fmt.Fprint(w, `{"status":"ok","data":{"1001":{
				"account_id":1001,"nickname":"Captain","created_at":1500000000,
				"last_battle_time":1700000000,"hidden_profile":false,
				"statistics":{"battles":120,"distance":5000,
					"pvp":{"battles":100,"wins":55,"losses":44,"survived_battles":40,"survived_wins":30}}}}}`)
		case "1002":
			fmt.Fprint(w, `{"status":"ok","data":{"1002":{"account_id":1002,"nickname":"Shy","hidden_profile":true,"statistics":null}}}`)
		case "1003":
			fmt.Fprint(w, `{"status":"ok","data":{"1003":{"account_id":1003,"nickname":"Broken","hidden_profile":false}}}`)
		default:
			fmt.Fprintf(w, `{"status":"ok","data":{%q:null}}`, r.URL.Query().Get("account_id"))
		}
	})
	ctx := context.Background()

	profile, err := client.GetPlayerProfile(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Captain", profile.Nickname)
	require.NotNil(t, profile.Statistics.Pvp)
	assert.Equal(t, 55, profile.Statistics.Pvp.Wins)

	hidden, err := client.GetPlayerProfile(ctx, 1002)
	require.NoError(t, err)
	require.NotNil(t, hidden)
	assert.True(t, hidden.HiddenProfile)

	_, err = client.GetPlayerProfile(ctx, 1003)
	assert.ErrorIs(t, err, ErrUpstreamMalformed)

	missing, err := client.GetPlayerProfile(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetPlayerProfiles_RejectsOversizedBatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	ids := make([]int64, 101)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	_, err := client.GetPlayerProfiles(context.Background(), ids)
	assert.Error(t, err)
}

func TestGetPlayerProfiles_SkipsAccountWithoutStatistics(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1,2,3", r.URL.Query().Get("account_id"))
		fmt.Fprint(w, `{"status":"ok","data":{
			"1":{"account_id":1,"nickname":"Good","hidden_profile":false,
				"statistics":{"battles":10,"pvp":{"battles":10,"wins":6}}},
			"2":{"account_id":2,"nickname":"Broken","hidden_profile":false},
			"3":{"account_id":3,"nickname":"Shy","hidden_profile":true}}}`)
	})

	profiles, err := client.GetPlayerProfiles(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "Good", profiles[1].Nickname)
	assert.True(t, profiles[3].HiddenProfile)
	assert.NotContains(t, profiles, int64(2))
}

func TestGetShipStats(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ships/stats/", r.URL.Path)
		fmt.Fprint(w, `{"status":"ok","data":{"1001":[
			{"ship_id":4001,"battles":12,"distance":300,"pvp":{"battles":10,"wins":6,"losses":4,"frags":8}}]}}`)
	})

	stats, err := client.GetShipStats(context.Background(), 1001)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(4001), stats[0].ShipID)
	assert.Equal(t, 8, stats[0].Pvp.Frags)
}

func TestGetShip_CachesHitsAndMisses(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("ship_id") {
		case "4001":
			fmt.Fprint(w, `{"status":"ok","data":{"4001":{"ship_id":4001,"name":"Cleveland","nation":"usa","type":"Cruiser","tier":6,"is_premium":false}}}`)
		default:
			fmt.Fprint(w, `{"status":"ok","data":{"4002":null}}`)
		}
	})
	ctx := context.Background()

	for range 3 {
		ship, err := client.GetShip(ctx, 4001)
		require.NoError(t, err)
		require.NotNil(t, ship)
		assert.Equal(t, "Cleveland", ship.Name)
	}
	for range 2 {
		ship, err := client.GetShip(ctx, 4002)
		require.NoError(t, err)
		assert.Nil(t, ship)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetDailySnapshots(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20240301,20240302", r.URL.Query().Get("dates"))
		fmt.Fprint(w, `{"status":"ok","data":{"1001":{"pvp":{
			"20240301":{"battles":100,"wins":50,"survived_battles":30,"battle_type":"pvp","date":"20240301"}}}}}`)
	})

	days, err := client.GetDailySnapshots(context.Background(), 1001, []string{"20240301", "20240302"})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 100, days["20240301"].Battles)
}

func TestGetDailySnapshots_NoData(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","data":{"1001":null}}`)
	})

	days, err := client.GetDailySnapshots(context.Background(), 1001, []string{"20240301"})
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestGetPlayerClan(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "clan", r.URL.Query().Get("extra"))
		switch r.URL.Query().Get("account_id") {
		case "1001":
			fmt.Fprint(w, `{"status":"ok","data":{"1001":{"clan_id":500,"clan":{"clan_id":500,"name":"Fleet","tag":"FLT","members_count":2}}}}`)
		default:
			fmt.Fprint(w, `{"status":"ok","data":{"1002":{"clan_id":null,"clan":null}}}`)
		}
	})
	ctx := context.Background()

	clan, err := client.GetPlayerClan(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, clan)
	assert.Equal(t, "FLT", clan.Tag)

	none, err := client.GetPlayerClan(ctx, 1002)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGetClanInfoAndMembers(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clans/info/", r.URL.Path)
		fmt.Fprint(w, `{"status":"ok","data":{"500":{"clan_id":500,"name":"Fleet","tag":"FLT",
			"members_count":2,"leader_id":1001,"leader_name":"Captain","members_ids":[1001,1002]}}}`)
	})
	ctx := context.Background()

	info, err := client.GetClanInfo(ctx, 500)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Captain", info.LeaderName)

	ids, err := client.GetClanMemberIDs(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1002}, ids)
}

func TestErrorEnvelope(t *testing.T) {
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","error":{"code":407,"message":"REQUEST_LIMIT_EXCEEDED","field":null}}`)
	})

	_, err := client.GetShipStats(context.Background(), 1001)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 407, apiErr.Code)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("ships/stats/", "error")))
}

func TestHTTPFailureAndMalformedBody(t *testing.T) {
	var mode atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if mode.Load() == 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"status":"ok","data":`)
	})
	ctx := context.Background()

	_, err := client.GetShipStats(ctx, 1001)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	mode.Store(1)
	_, err = client.GetShipStats(ctx, 1001)
	assert.ErrorIs(t, err, ErrUpstreamMalformed)
}
