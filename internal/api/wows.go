package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"battlestats/internal/config"
	"battlestats/internal/constants"
	"battlestats/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/valyala/fasthttp"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamMalformed   = errors.New("upstream data malformed")
)

// APIError is an error envelope returned by the stats API.
type APIError struct {
	Endpoint string
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Field    string `json:"field"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error on %s: %d %s (field %q)", e.Endpoint, e.Code, e.Message, e.Field)
}

func (e *APIError) Unwrap() error { return ErrUpstreamUnavailable }

type WowsClient struct {
	appID   string
	baseURL string
	client  *fasthttp.Client
	metrics *metrics.Metrics

	// ship id -> encyclopedia entry; nil entries remember ids upstream does not know
	ships *expirable.LRU[int64, *ShipInfo]
}

func NewWowsClient(cfg *config.Config, m *metrics.Metrics) *WowsClient {
	baseURL := cfg.WGBaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &WowsClient{
		appID:   cfg.WGAppID,
		baseURL: baseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		metrics: m,
		ships:   expirable.NewLRU[int64, *ShipInfo](cfg.ShipCacheSize, nil, cfg.ShipCacheTTL),
	}
}

type envelope[T any] struct {
	Status string    `json:"status"`
	Error  *APIError `json:"error"`
	Data   T         `json:"data"`
}

func doRequest[T any](ctx context.Context, c *WowsClient, endpoint string, params map[string]string) (T, error) {
	var zero T

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + endpoint)
	req.Header.SetMethod(fasthttp.MethodGet)
	args := req.URI().QueryArgs()
	args.Set("application_id", c.appID)
	for k, v := range params {
		args.Set(k, v)
	}

	start := time.Now()
	result := "ok"
	defer func() {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, result).Inc()
		c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(float64(time.Since(start).Milliseconds()))
	}()

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.DoTimeout(req, resp, constants.ExternalAPITimeout)
	}
	if err != nil {
		result = "unavailable"
		return zero, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		result = "unavailable"
		return zero, fmt.Errorf("%w: %s: HTTP %d", ErrUpstreamUnavailable, endpoint, resp.StatusCode())
	}

	var env envelope[T]
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		result = "malformed"
		return zero, fmt.Errorf("%w: %s: %v", ErrUpstreamMalformed, endpoint, err)
	}

	if env.Status != "ok" {
		result = "error"
		if env.Error == nil {
			env.Error = &APIError{Message: "status " + env.Status}
		}
		env.Error.Endpoint = endpoint
		return zero, env.Error
	}

	return env.Data, nil
}

func idList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// FindPlayerID resolves an exact nickname. It reports false when upstream has
// no match or more than one.
func (c *WowsClient) FindPlayerID(ctx context.Context, name string) (int64, bool, error) {
	accounts, err := doRequest[[]AccountListItem](ctx, c, "account/list/", map[string]string{
		"search": name,
		"type":   "exact",
	})
	if err != nil {
		return 0, false, err
	}
	if len(accounts) != 1 {
		return 0, false, nil
	}
	return accounts[0].AccountID, true, nil
}

// GetPlayerProfile returns nil when upstream has no account with that id.
// A non-hidden account without statistics is ErrUpstreamMalformed.
func (c *WowsClient) GetPlayerProfile(ctx context.Context, playerID int64) (*PlayerProfile, error) {
	profiles, malformed, err := c.fetchProfiles(ctx, []int64{playerID})
	if err != nil {
		return nil, err
	}
	if len(malformed) > 0 {
		return nil, fmt.Errorf("%w: account/info: account %d has no statistics", ErrUpstreamMalformed, playerID)
	}
	return profiles[playerID], nil
}

// GetPlayerProfiles fetches up to ProfileBatchSize accounts in one call. Ids
// without data, and non-hidden accounts without statistics, are absent from
// the result.
func (c *WowsClient) GetPlayerProfiles(ctx context.Context, playerIDs []int64) (map[int64]*PlayerProfile, error) {
	profiles, _, err := c.fetchProfiles(ctx, playerIDs)
	return profiles, err
}

// fetchProfiles returns the usable profiles and the ids of malformed ones.
func (c *WowsClient) fetchProfiles(ctx context.Context, playerIDs []int64) (map[int64]*PlayerProfile, []int64, error) {
	if len(playerIDs) == 0 {
		return map[int64]*PlayerProfile{}, nil, nil
	}
	if len(playerIDs) > constants.ProfileBatchSize {
		return nil, nil, fmt.Errorf("too many account ids: %d > %d", len(playerIDs), constants.ProfileBatchSize)
	}

	data, err := doRequest[map[string]*PlayerProfile](ctx, c, "account/info/", map[string]string{
		"account_id": idList(playerIDs),
	})
	if err != nil {
		return nil, nil, err
	}

	out := make(map[int64]*PlayerProfile, len(data))
	var malformed []int64
	for key, profile := range data {
		if profile == nil {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: account/info: bad account id %q", ErrUpstreamMalformed, key)
		}
		if !profile.HiddenProfile && profile.Statistics == nil {
			malformed = append(malformed, id)
			continue
		}
		out[id] = profile
	}
	return out, malformed, nil
}

func (c *WowsClient) GetShipStats(ctx context.Context, playerID int64) ([]ShipStats, error) {
	data, err := doRequest[map[string][]ShipStats](ctx, c, "ships/stats/", map[string]string{
		"account_id": strconv.FormatInt(playerID, 10),
	})
	if err != nil {
		return nil, err
	}
	return data[strconv.FormatInt(playerID, 10)], nil
}

// GetShip returns the encyclopedia entry for a ship, or nil if upstream does
// not know the id. Results, including misses, are cached.
func (c *WowsClient) GetShip(ctx context.Context, shipID int64) (*ShipInfo, error) {
	if ship, ok := c.ships.Get(shipID); ok {
		return ship, nil
	}

	key := strconv.FormatInt(shipID, 10)
	data, err := doRequest[map[string]*ShipInfo](ctx, c, "encyclopedia/ships/", map[string]string{
		"ship_id": key,
		"fields":  "name,nation,type,tier,is_premium,ship_id",
	})
	if err != nil {
		return nil, err
	}

	ship := data[key]
	if ship != nil && ship.ShipID == 0 {
		ship.ShipID = shipID
	}
	c.ships.Add(shipID, ship)
	return ship, nil
}

// GetDailySnapshots returns the cumulative pvp counters keyed by YYYYMMDD for
// each requested date upstream has data for.
func (c *WowsClient) GetDailySnapshots(ctx context.Context, playerID int64, dates []string) (map[string]DailyStats, error) {
	if len(dates) > constants.SnapshotBatchDays {
		return nil, fmt.Errorf("too many dates: %d > %d", len(dates), constants.SnapshotBatchDays)
	}

	key := strconv.FormatInt(playerID, 10)
	data, err := doRequest[map[string]*statsByDate](ctx, c, "account/statsbydate/", map[string]string{
		"account_id": key,
		"dates":      strings.Join(dates, ","),
		"fields":     "pvp.account_id,pvp.battles,pvp.wins,pvp.survived_battles,pvp.battle_type,pvp.date",
	})
	if err != nil {
		return nil, err
	}

	entry := data[key]
	if entry == nil || len(entry.Pvp) == 0 {
		return map[string]DailyStats{}, nil
	}
	return entry.Pvp, nil
}

// GetPlayerClan returns nil when the player is not in a clan.
func (c *WowsClient) GetPlayerClan(ctx context.Context, playerID int64) (*ClanSummary, error) {
	key := strconv.FormatInt(playerID, 10)
	data, err := doRequest[map[string]*accountClan](ctx, c, "clans/accountinfo/", map[string]string{
		"account_id": key,
		"extra":      "clan",
		"fields":     "clan_id,clan.members_count,clan.tag,clan.name,clan.clan_id",
	})
	if err != nil {
		return nil, err
	}

	entry := data[key]
	if entry == nil || entry.Clan == nil {
		return nil, nil
	}
	if entry.Clan.ClanID == 0 && entry.ClanID != nil {
		entry.Clan.ClanID = *entry.ClanID
	}
	return entry.Clan, nil
}

// GetClanInfo returns nil when upstream has no clan with that id.
func (c *WowsClient) GetClanInfo(ctx context.Context, clanID int64) (*ClanInfo, error) {
	key := strconv.FormatInt(clanID, 10)
	data, err := doRequest[map[string]*ClanInfo](ctx, c, "clans/info/", map[string]string{
		"clan_id": key,
	})
	if err != nil {
		return nil, err
	}
	return data[key], nil
}

func (c *WowsClient) GetClanMemberIDs(ctx context.Context, clanID int64) ([]int64, error) {
	key := strconv.FormatInt(clanID, 10)
	data, err := doRequest[map[string]*ClanInfo](ctx, c, "clans/info/", map[string]string{
		"clan_id": key,
		"fields":  "members_ids",
	})
	if err != nil {
		return nil, err
	}
	if info := data[key]; info != nil {
		return info.MembersIDs, nil
	}
	return nil, nil
}
