package db

import (
	"time"
)

type Clan struct {
	ClanID       int64
	Name         string
	Tag          string
	Description  string
	MembersCount int64
	LeaderID     *int64
	LeaderName   string
	LastFetch    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Player struct {
	PlayerID          int64
	Name              string
	ClanID            *int64
	IsHidden          bool
	CreationDate      *time.Time
	LastBattleDate    *time.Time
	TotalBattles      int64
	PvpBattles        int64
	PvpWins           int64
	PvpLosses         int64
	PvpRatio          float64
	PvpSurvivalRate   float64
	WinsSurvivalRate  float64
	LastFetch         *time.Time
	LastLookup        *time.Time
	BattlesJson       *string
	BattlesUpdatedAt  *time.Time
	TiersJson         *string
	TiersUpdatedAt    *time.Time
	TypeJson          *string
	TypeUpdatedAt     *time.Time
	RandomsJson       *string
	RandomsUpdatedAt  *time.Time
	ActivityJson      *string
	ActivityUpdatedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Ship struct {
	ShipID    int64
	Name      string
	Nation    string
	ShipType  string
	Tier      int64
	IsPremium bool
	CreatedAt time.Time
}

type Snapshot struct {
	ID              string
	PlayerID        int64
	Date            string
	Battles         int64
	Wins            int64
	SurvivedBattles int64
	BattleType      string
	IntervalBattles *int64
	IntervalWins    *int64
	LastFetch       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
