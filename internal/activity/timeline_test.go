package activity

import (
	"testing"
	"time"

	"battlestats/internal/constants"
	"battlestats/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 3, 10, 17, 45, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func TestApplyIntervals(t *testing.T) {
	cumulative := []int{100, 100, 115, 115, 140}
	snaps := make([]domain.Snapshot, 0, len(cumulative))
	for i, b := range cumulative {
		snaps = append(snaps, domain.Snapshot{
			Date:    time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format(constants.SnapshotDateLayout),
			Battles: b,
			Wins:    b / 2,
		})
	}
	// out of order input must still be handled by date
	snaps[0], snaps[3] = snaps[3], snaps[0]

	got := ApplyIntervals(snaps)

	assert.Nil(t, got[0].IntervalBattles)
	assert.Nil(t, got[0].IntervalWins)
	want := []int{0, 15, 0, 25}
	for i, w := range want {
		require.NotNil(t, got[i+1].IntervalBattles)
		assert.Equal(t, w, *got[i+1].IntervalBattles, "day %d", i+1)
	}
	assert.Equal(t, 13, *got[4].IntervalWins)
}

func TestApplyIntervals_Empty(t *testing.T) {
	assert.Empty(t, ApplyIntervals(nil))
}

func TestBuildTimeline_AlwaysTwentyNineDays(t *testing.T) {
	timeline := BuildTimeline(nil, today)
	require.Len(t, timeline, 29)

	assert.Equal(t, "2024-02-11", timeline[0].Date)
	assert.Equal(t, "2024-03-10", timeline[28].Date)

	seen := map[string]bool{}
	for i, day := range timeline {
		assert.False(t, seen[day.Date], "duplicate date %s", day.Date)
		seen[day.Date] = true
		assert.Zero(t, day.Battles)
		if i > 0 {
			prev, _ := time.Parse(constants.SnapshotDateLayout, timeline[i-1].Date)
			cur, _ := time.Parse(constants.SnapshotDateLayout, day.Date)
			assert.Equal(t, 24*time.Hour, cur.Sub(prev))
		}
	}
}

func TestBuildTimeline_UsesIntervals(t *testing.T) {
	snaps := []domain.Snapshot{
		{Date: "2024-03-08", Battles: 500, Wins: 250},
		{Date: "2024-03-09", Battles: 510, Wins: 256, IntervalBattles: intPtr(10), IntervalWins: intPtr(6)},
		{Date: "2024-01-01", Battles: 1, IntervalBattles: intPtr(99)},
	}

	timeline := BuildTimeline(snaps, today)
	require.Len(t, timeline, 29)

	assert.Equal(t, domain.ActivityDay{Date: "2024-03-08"}, timeline[26])
	assert.Equal(t, domain.ActivityDay{Date: "2024-03-09", Battles: 10, Wins: 6}, timeline[27])
	assert.Equal(t, domain.ActivityDay{Date: "2024-03-10"}, timeline[28])
}

func TestWeekBatches(t *testing.T) {
	batches := WeekBatches(today)
	require.Len(t, batches, 4)

	for _, week := range batches {
		require.Len(t, week, 7)
	}
	assert.Equal(t, "2024-02-11", batches[0][0].Format(constants.SnapshotDateLayout))
	assert.Equal(t, "2024-02-17", batches[0][6].Format(constants.SnapshotDateLayout))
	assert.Equal(t, "2024-03-03", batches[3][0].Format(constants.SnapshotDateLayout))
	assert.Equal(t, "2024-03-09", batches[3][6].Format(constants.SnapshotDateLayout))

	assert.Equal(t, batches[2][6], EmptyWeekDate(batches[2]))
}

func TestDay(t *testing.T) {
	local := time.Date(2024, 3, 10, 23, 30, 0, 0, time.FixedZone("x", -2*3600))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), Day(local))
}
