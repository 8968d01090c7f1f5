package domain

import (
	"errors"
	"time"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrClanNotFound   = errors.New("clan not found")
)

type Player struct {
	PlayerID            int64
	Name                string
	ClanID              *int64
	IsHidden            bool
	CreationDate        *time.Time
	LastBattleDate      *time.Time
	DaysSinceLastBattle int
	TotalBattles        int
	PvpBattles          int
	PvpWins             int
	PvpLosses           int
	PvpRatio            float64
	PvpSurvivalRate     float64
	WinsSurvivalRate    float64
	LastFetch           *time.Time
	LastLookup          *time.Time

	// raw battle snapshot and the views derived from it; nil means never cached
	Battles          []ShipStat
	BattlesUpdatedAt *time.Time
	Tiers            []TierStat
	TiersUpdatedAt   *time.Time
	Types            []TypeStat
	TypesUpdatedAt   *time.Time
	Randoms          []RandomsStat
	RandomsUpdatedAt *time.Time
	Activity         []ActivityDay
	ActivityUpdated  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the identity and lifetime totals of a player as reported upstream.
type Profile struct {
	Name             string
	IsHidden         bool
	CreationDate     *time.Time
	LastBattleDate   *time.Time
	TotalBattles     int
	PvpBattles       int
	PvpWins          int
	PvpLosses        int
	PvpRatio         float64
	PvpSurvivalRate  float64
	WinsSurvivalRate float64
}

type Ship struct {
	ShipID    int64
	Name      string
	Nation    string
	ShipType  string
	Tier      int
	IsPremium bool
	CreatedAt time.Time
}

type Clan struct {
	ClanID       int64
	Name         string
	Tag          string
	Description  string
	MembersCount int
	LeaderID     *int64
	LeaderName   string
	LastFetch    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Snapshot struct {
	ID              string // nanoid
	PlayerID        int64
	Date            string // YYYY-MM-DD
	Battles         int
	Wins            int
	SurvivedBattles int
	BattleType      string
	IntervalBattles *int
	IntervalWins    *int
	LastFetch       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ShipStat is one row of the canonical battles list.
type ShipStat struct {
	ShipName   string  `json:"ship_name"`
	ShipTier   int     `json:"ship_tier"`
	AllBattles int     `json:"all_battles"`
	Distance   int     `json:"distance"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	ShipType   string  `json:"ship_type"`
	PveBattles int     `json:"pve_battles"`
	PvpBattles int     `json:"pvp_battles"`
	WinRatio   float64 `json:"win_ratio"`
	KDR        float64 `json:"kdr"`
}

type TierStat struct {
	ShipTier   int     `json:"ship_tier"`
	PvpBattles int     `json:"pvp_battles"`
	Wins       int     `json:"wins"`
	WinRatio   float64 `json:"win_ratio"`
}

type TypeStat struct {
	ShipType   string  `json:"ship_type"`
	PvpBattles int     `json:"pvp_battles"`
	Wins       int     `json:"wins"`
	WinRatio   float64 `json:"win_ratio"`
}

type RandomsStat struct {
	PvpBattles int     `json:"pvp_battles"`
	ShipName   string  `json:"ship_name"`
	WinRatio   float64 `json:"win_ratio"`
	Wins       int     `json:"wins"`
}

type ActivityDay struct {
	Date    string `json:"date"`
	Battles int    `json:"battles"`
	Wins    int    `json:"wins"`
}

type ClanMemberStat struct {
	PlayerName string  `json:"player_name"`
	PvpBattles int     `json:"pvp_battles"`
	WinRatio   float64 `json:"win_ratio"`
}
