package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"battlestats/internal/api"
	"battlestats/internal/domain"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

const BattleStatsPath = "/battlestats.v1.BattleStats/"

const (
	GetPlayerProcedure      = BattleStatsPath + "GetPlayer"
	GetBattleDataProcedure  = BattleStatsPath + "GetBattleData"
	GetTierDataProcedure    = BattleStatsPath + "GetTierData"
	GetTypeDataProcedure    = BattleStatsPath + "GetTypeData"
	GetActivityProcedure    = BattleStatsPath + "GetActivityData"
	GetRandomsDataProcedure = BattleStatsPath + "GetRandomsData"
	GetClanProcedure        = BattleStatsPath + "GetClan"
	GetClanMembersProcedure = BattleStatsPath + "GetClanMembers"
)

type Players interface {
	ResolvePlayer(ctx context.Context, name string) (*domain.Player, error)
}

type Stats interface {
	GetBattleData(ctx context.Context, playerID int64) ([]domain.ShipStat, error)
	GetTierData(ctx context.Context, playerID int64) ([]domain.TierStat, error)
	GetTypeData(ctx context.Context, playerID int64) ([]domain.TypeStat, error)
	GetActivityData(ctx context.Context, playerID int64) ([]domain.ActivityDay, error)
	GetRandomsData(ctx context.Context, playerID int64) ([]domain.RandomsStat, error)
}

type Clans interface {
	GetClan(ctx context.Context, clanID int64) (*domain.Clan, error)
	GetClanMembers(ctx context.Context, clanID int64) ([]domain.ClanMemberStat, error)
}

type PlayerRequest struct {
	Name string `json:"name"`
}

type PlayerIDRequest struct {
	PlayerID int64 `json:"player_id"`
}

type ClanIDRequest struct {
	ClanID int64 `json:"clan_id"`
}

type PlayerResponse struct {
	PlayerID            int64      `json:"player_id"`
	Name                string     `json:"name"`
	ClanID              *int64     `json:"clan_id"`
	IsHidden            bool       `json:"is_hidden"`
	CreationDate        *time.Time `json:"creation_date"`
	LastBattleDate      *time.Time `json:"last_battle_date"`
	DaysSinceLastBattle int        `json:"days_since_last_battle"`
	TotalBattles        int        `json:"total_battles"`
	PvpBattles          int        `json:"pvp_battles"`
	PvpWins             int        `json:"pvp_wins"`
	PvpLosses           int        `json:"pvp_losses"`
	PvpRatio            float64    `json:"pvp_ratio"`
	PvpSurvivalRate     float64    `json:"pvp_survival_rate"`
	WinsSurvivalRate    float64    `json:"wins_survival_rate"`
	LastFetch           *time.Time `json:"last_fetch"`
}

type ClanResponse struct {
	ClanID       int64      `json:"clan_id"`
	Name         string     `json:"name"`
	Tag          string     `json:"tag"`
	Description  string     `json:"description"`
	MembersCount int        `json:"members_count"`
	LeaderID     *int64     `json:"leader_id"`
	LeaderName   string     `json:"leader_name"`
	LastFetch    *time.Time `json:"last_fetch"`
}

type BattleStatsServer struct {
	players Players
	stats   Stats
	clans   Clans
	logger  zerolog.Logger
}

func NewBattleStatsServer(players Players, stats Stats, clans Clans, logger zerolog.Logger) *BattleStatsServer {
	return &BattleStatsServer{players: players, stats: stats, clans: clans, logger: logger}
}

// Handler returns the path prefix and the handler serving every procedure
// under it.
func (s *BattleStatsServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetPlayerProcedure, connect.NewUnaryHandler(GetPlayerProcedure, s.GetPlayer, opts...))
	mux.Handle(GetBattleDataProcedure, connect.NewUnaryHandler(GetBattleDataProcedure, playerView(s.stats.GetBattleData), opts...))
	mux.Handle(GetTierDataProcedure, connect.NewUnaryHandler(GetTierDataProcedure, playerView(s.stats.GetTierData), opts...))
	mux.Handle(GetTypeDataProcedure, connect.NewUnaryHandler(GetTypeDataProcedure, playerView(s.stats.GetTypeData), opts...))
	mux.Handle(GetActivityProcedure, connect.NewUnaryHandler(GetActivityProcedure, playerView(s.stats.GetActivityData), opts...))
	mux.Handle(GetRandomsDataProcedure, connect.NewUnaryHandler(GetRandomsDataProcedure, playerView(s.stats.GetRandomsData), opts...))
	mux.Handle(GetClanProcedure, connect.NewUnaryHandler(GetClanProcedure, s.GetClan, opts...))
	mux.Handle(GetClanMembersProcedure, connect.NewUnaryHandler(GetClanMembersProcedure, s.GetClanMembers, opts...))
	return BattleStatsPath, mux
}

func (s *BattleStatsServer) GetPlayer(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[PlayerResponse], error) {
	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("name is required"))
	}

	player, err := s.players.ResolvePlayer(ctx, name)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	return connect.NewResponse(&PlayerResponse{
		PlayerID:            player.PlayerID,
		Name:                player.Name,
		ClanID:              player.ClanID,
		IsHidden:            player.IsHidden,
		CreationDate:        player.CreationDate,
		LastBattleDate:      player.LastBattleDate,
		DaysSinceLastBattle: player.DaysSinceLastBattle,
		TotalBattles:        player.TotalBattles,
		PvpBattles:          player.PvpBattles,
		PvpWins:             player.PvpWins,
		PvpLosses:           player.PvpLosses,
		PvpRatio:            player.PvpRatio,
		PvpSurvivalRate:     player.PvpSurvivalRate,
		WinsSurvivalRate:    player.WinsSurvivalRate,
		LastFetch:           player.LastFetch,
	}), nil
}

func (s *BattleStatsServer) GetClan(ctx context.Context, req *connect.Request[ClanIDRequest]) (*connect.Response[ClanResponse], error) {
	if req.Msg.ClanID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("clan_id is required"))
	}

	clan, err := s.clans.GetClan(ctx, req.Msg.ClanID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	return connect.NewResponse(&ClanResponse{
		ClanID:       clan.ClanID,
		Name:         clan.Name,
		Tag:          clan.Tag,
		Description:  clan.Description,
		MembersCount: clan.MembersCount,
		LeaderID:     clan.LeaderID,
		LeaderName:   clan.LeaderName,
		LastFetch:    clan.LastFetch,
	}), nil
}

func (s *BattleStatsServer) GetClanMembers(ctx context.Context, req *connect.Request[ClanIDRequest]) (*connect.Response[[]domain.ClanMemberStat], error) {
	if req.Msg.ClanID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("clan_id is required"))
	}

	members, err := s.clans.GetClanMembers(ctx, req.Msg.ClanID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&members), nil
}

// playerView adapts a per-player view lookup to a unary handler.
func playerView[T any](get func(context.Context, int64) ([]T, error)) func(context.Context, *connect.Request[PlayerIDRequest]) (*connect.Response[[]T], error) {
	return func(ctx context.Context, req *connect.Request[PlayerIDRequest]) (*connect.Response[[]T], error) {
		if req.Msg.PlayerID <= 0 {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("player_id is required"))
		}

		rows, err := get(ctx, req.Msg.PlayerID)
		if err != nil {
			return nil, toConnectError(ctx, err)
		}
		return connect.NewResponse(&rows), nil
	}
}

func toConnectError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrPlayerNotFound), errors.Is(err, domain.ErrClanNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, api.ErrUpstreamUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	zerolog.Ctx(ctx).Error().Err(err).Msg("request failed")
	return connect.NewError(connect.CodeInternal, err)
}
