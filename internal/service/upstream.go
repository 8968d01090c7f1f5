package service

import (
	"context"
	"fmt"
	"strconv"

	"battlestats/internal/api"

	"golang.org/x/sync/singleflight"
)

// Upstream is the subset of the stats API the services call.
type Upstream interface {
	FindPlayerID(ctx context.Context, name string) (int64, bool, error)
	GetPlayerProfile(ctx context.Context, playerID int64) (*api.PlayerProfile, error)
	GetPlayerProfiles(ctx context.Context, playerIDs []int64) (map[int64]*api.PlayerProfile, error)
	GetShipStats(ctx context.Context, playerID int64) ([]api.ShipStats, error)
	GetShip(ctx context.Context, shipID int64) (*api.ShipInfo, error)
	GetDailySnapshots(ctx context.Context, playerID int64, dates []string) (map[string]api.DailyStats, error)
	GetPlayerClan(ctx context.Context, playerID int64) (*api.ClanSummary, error)
	GetClanInfo(ctx context.Context, clanID int64) (*api.ClanInfo, error)
	GetClanMemberIDs(ctx context.Context, clanID int64) ([]int64, error)
}

var _ Upstream = (*api.WowsClient)(nil)

const (
	JobRefreshProfile  = "refresh-profile"
	JobRefreshBattles  = "refresh-battles"
	JobRefreshActivity = "refresh-activity"
	JobRefreshClan     = "refresh-clan"
)

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func flightKey(job string, id int64) string {
	return job + ":" + idKey(id)
}

// payloadID reads an id from a job payload. In-process jobs carry int64; the
// other cases cover payloads that went through a JSON round trip.
func payloadID(payload map[string]any, key string) (int64, error) {
	switch v := payload[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("payload %q missing or has type %T", key, payload[key])
	}
}

// runShared runs fn once per key across concurrent callers and reports
// whether the result was shared. A caller whose ctx ends stops waiting and
// forgets the key, so a retry starts a new run instead of joining the
// abandoned one.
func runShared(ctx context.Context, group *singleflight.Group, key string, fn func() error) (bool, error) {
	ch := group.DoChan(key, func() (_ any, err error) {
		// DoChan re-panics on its own goroutine, where nothing can recover.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", key, r)
			}
		}()
		return nil, fn()
	})
	select {
	case res := <-ch:
		return res.Shared, res.Err
	case <-ctx.Done():
		group.Forget(key)
		return false, ctx.Err()
	}
}
