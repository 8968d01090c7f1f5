// Package activity builds the daily battle timeline from cumulative
// per-date snapshots.
package activity

import (
	"sort"
	"time"

	"battlestats/internal/constants"
	"battlestats/internal/domain"
)

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WindowStart is the first day covered by the timeline ending on today.
func WindowStart(today time.Time) time.Time {
	return Day(today).AddDate(0, 0, -(constants.TimelineDays - 1))
}

// WeekBatches splits the days today-28 .. today-1 into the weekly groups the
// upstream statsbydate endpoint is queried with, oldest first.
func WeekBatches(today time.Time) [][]time.Time {
	start := WindowStart(today)
	batches := make([][]time.Time, 0, constants.SnapshotBatches)
	for n := 0; n < constants.SnapshotBatches; n++ {
		week := make([]time.Time, 0, constants.SnapshotBatchDays)
		for i := 0; i < constants.SnapshotBatchDays; i++ {
			week = append(week, start.AddDate(0, 0, n*constants.SnapshotBatchDays+i))
		}
		batches = append(batches, week)
	}
	return batches
}

// EmptyWeekDate is the single date recorded for a week in which upstream
// reported no battles at all.
func EmptyWeekDate(week []time.Time) time.Time {
	return week[len(week)-1]
}

// ApplyIntervals sorts snaps by date and sets each snapshot's interval
// counters to the difference from the snapshot before it. The earliest
// snapshot is left without intervals.
func ApplyIntervals(snaps []domain.Snapshot) []domain.Snapshot {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Date < snaps[j].Date
	})
	for i := 1; i < len(snaps); i++ {
		battles := snaps[i].Battles - snaps[i-1].Battles
		wins := snaps[i].Wins - snaps[i-1].Wins
		snaps[i].IntervalBattles = &battles
		snaps[i].IntervalWins = &wins
	}
	return snaps
}

// BuildTimeline returns one entry per day from today-28 through today in
// chronological order. Days without a snapshot report zero battles.
func BuildTimeline(snaps []domain.Snapshot, today time.Time) []domain.ActivityDay {
	byDate := make(map[string]domain.Snapshot, len(snaps))
	for _, s := range snaps {
		byDate[s.Date] = s
	}

	start := WindowStart(today)
	days := make([]domain.ActivityDay, 0, constants.TimelineDays)
	for i := 0; i < constants.TimelineDays; i++ {
		date := start.AddDate(0, 0, i).Format(constants.SnapshotDateLayout)
		day := domain.ActivityDay{Date: date}
		if s, ok := byDate[date]; ok {
			if s.IntervalBattles != nil {
				day.Battles = *s.IntervalBattles
			}
			if s.IntervalWins != nil {
				day.Wins = *s.IntervalWins
			}
		}
		days = append(days, day)
	}
	return days
}
