package api

type AccountListItem struct {
	Nickname  string `json:"nickname"`
	AccountID int64  `json:"account_id"`
}

type PlayerProfile struct {
	AccountID      int64              `json:"account_id"`
	Nickname       string             `json:"nickname"`
	CreatedAt      int64              `json:"created_at"`
	LastBattleTime int64              `json:"last_battle_time"`
	StatsUpdatedAt int64              `json:"stats_updated_at"`
	HiddenProfile  bool               `json:"hidden_profile"`
	Statistics     *ProfileStatistics `json:"statistics"`
}

type ProfileStatistics struct {
	Battles  int        `json:"battles"`
	Distance int        `json:"distance"`
	Pvp      *PvpTotals `json:"pvp"`
}

type PvpTotals struct {
	Battles         int `json:"battles"`
	Wins            int `json:"wins"`
	Losses          int `json:"losses"`
	SurvivedBattles int `json:"survived_battles"`
	SurvivedWins    int `json:"survived_wins"`
}

type ShipStats struct {
	ShipID   int64   `json:"ship_id"`
	Battles  int     `json:"battles"`
	Distance int     `json:"distance"`
	Pvp      ShipPvp `json:"pvp"`
}

type ShipPvp struct {
	Battles int `json:"battles"`
	Wins    int `json:"wins"`
	Losses  int `json:"losses"`
	Frags   int `json:"frags"`
}

type ShipInfo struct {
	ShipID    int64  `json:"ship_id"`
	Name      string `json:"name"`
	Nation    string `json:"nation"`
	Type      string `json:"type"`
	Tier      int    `json:"tier"`
	IsPremium bool   `json:"is_premium"`
}

type DailyStats struct {
	Battles         int    `json:"battles"`
	Wins            int    `json:"wins"`
	SurvivedBattles int    `json:"survived_battles"`
	BattleType      string `json:"battle_type"`
	Date            string `json:"date"`
}

type statsByDate struct {
	Pvp map[string]DailyStats `json:"pvp"`
}

type ClanSummary struct {
	ClanID       int64  `json:"clan_id"`
	Name         string `json:"name"`
	Tag          string `json:"tag"`
	MembersCount int    `json:"members_count"`
}

type accountClan struct {
	ClanID *int64       `json:"clan_id"`
	Clan   *ClanSummary `json:"clan"`
}

type ClanInfo struct {
	ClanID       int64   `json:"clan_id"`
	Name         string  `json:"name"`
	Tag          string  `json:"tag"`
	Description  string  `json:"description"`
	MembersCount int     `json:"members_count"`
	LeaderID     int64   `json:"leader_id"`
	LeaderName   string  `json:"leader_name"`
	MembersIDs   []int64 `json:"members_ids"`
}
