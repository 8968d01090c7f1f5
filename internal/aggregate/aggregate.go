// Package aggregate turns per-ship upstream statistics into the canonical
// battles list and the tier, type and randoms views derived from it.
package aggregate

import (
	"math"
	"sort"

	"battlestats/internal/constants"
	"battlestats/internal/domain"

	"github.com/samber/lo"
)

// Record is one per-ship statistic entry as reported by ships/stats.
type Record struct {
	ShipID   int64
	Battles  int
	Distance int
	Pvp      PvpRecord
}

type PvpRecord struct {
	Battles int
	Wins    int
	Losses  int
	Frags   int
}

// Views bundles the three views derived from one canonical battles list.
type Views struct {
	Tiers   []domain.TierStat
	Types   []domain.TypeStat
	Randoms []domain.RandomsStat
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ratio returns num/den rounded to two decimals, or 0 when den is not positive.
func Ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return Round2(float64(num) / float64(den))
}

// BuildBattles resolves each record against ships and returns the canonical
// battles list sorted by pvp battles, highest first. Records whose ship is
// unknown or has no name are dropped.
func BuildBattles(records []Record, ships map[int64]*domain.Ship) []domain.ShipStat {
	out := make([]domain.ShipStat, 0, len(records))
	for _, r := range records {
		ship, ok := ships[r.ShipID]
		if !ok || ship == nil || ship.Name == "" {
			continue
		}

		out = append(out, domain.ShipStat{
			ShipName:   ship.Name,
			ShipTier:   ship.Tier,
			AllBattles: r.Battles,
			Distance:   r.Distance,
			Wins:       r.Pvp.Wins,
			Losses:     r.Pvp.Losses,
			ShipType:   ship.ShipType,
			PveBattles: r.Battles - (r.Pvp.Wins + r.Pvp.Losses),
			PvpBattles: r.Pvp.Battles,
			WinRatio:   Ratio(r.Pvp.Wins, r.Pvp.Battles),
			KDR:        Ratio(r.Pvp.Frags, r.Pvp.Battles),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PvpBattles > out[j].PvpBattles
	})
	return out
}

// TierView sums pvp battles and wins per tier, from the highest tier down
// to tier 1. Ships outside 1..MaxShipTier are ignored.
func TierView(battles []domain.ShipStat) []domain.TierStat {
	if len(battles) == 0 {
		return []domain.TierStat{}
	}

	byTier := make(map[int]*domain.TierStat, constants.MaxShipTier)
	out := make([]domain.TierStat, 0, constants.MaxShipTier)
	for tier := constants.MaxShipTier; tier >= 1; tier-- {
		out = append(out, domain.TierStat{ShipTier: tier})
	}
	for i := range out {
		byTier[out[i].ShipTier] = &out[i]
	}

	for _, s := range battles {
		row, ok := byTier[s.ShipTier]
		if !ok {
			continue
		}
		row.PvpBattles += s.PvpBattles
		row.Wins += s.Wins
	}

	for i := range out {
		out[i].WinRatio = Ratio(out[i].Wins, out[i].PvpBattles)
	}
	return out
}

// TypeView sums pvp battles and wins per ship type, most played first.
// Types with equal battle counts keep the order in which they first appear.
func TypeView(battles []domain.ShipStat) []domain.TypeStat {
	if len(battles) == 0 {
		return []domain.TypeStat{}
	}

	types := lo.Uniq(lo.Map(battles, func(s domain.ShipStat, _ int) string { return s.ShipType }))
	out := make([]domain.TypeStat, 0, len(types))
	for _, shipType := range types {
		row := domain.TypeStat{ShipType: shipType}
		for _, s := range battles {
			if s.ShipType == shipType {
				row.PvpBattles += s.PvpBattles
				row.Wins += s.Wins
			}
		}
		row.WinRatio = Ratio(row.Wins, row.PvpBattles)
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PvpBattles > out[j].PvpBattles
	})
	return out
}

// RandomsView returns the RandomsLimit most played ships.
func RandomsView(battles []domain.ShipStat) []domain.RandomsStat {
	if len(battles) == 0 {
		return []domain.RandomsStat{}
	}

	sorted := make([]domain.ShipStat, len(battles))
	copy(sorted, battles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PvpBattles > sorted[j].PvpBattles
	})
	if len(sorted) > constants.RandomsLimit {
		sorted = sorted[:constants.RandomsLimit]
	}

	return lo.Map(sorted, func(s domain.ShipStat, _ int) domain.RandomsStat {
		return domain.RandomsStat{
			PvpBattles: s.PvpBattles,
			ShipName:   s.ShipName,
			WinRatio:   s.WinRatio,
			Wins:       s.Wins,
		}
	})
}

// Derive computes every view from the same canonical list.
func Derive(battles []domain.ShipStat) Views {
	return Views{
		Tiers:   TierView(battles),
		Types:   TypeView(battles),
		Randoms: RandomsView(battles),
	}
}
