package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"battlestats/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) SweepStaleClans(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 2, f.err
}

type fakePruner struct {
	calls atomic.Int32
}

func (f *fakePruner) PruneSnapshots(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return 5, nil
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := New(&config.Config{
		ClanSweepSchedule:     "not a schedule",
		SnapshotPruneSchedule: "0 4 * * *",
	}, &fakeSweeper{}, &fakePruner{}, zerolog.Nop())

	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	sweeper := &fakeSweeper{}
	pruner := &fakePruner{}
	s := New(&config.Config{
		ClanSweepSchedule:     "@every 1h",
		SnapshotPruneSchedule: "0 4 * * *",
	}, sweeper, pruner, zerolog.Nop())

	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestJobsCallThrough(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db locked")}
	pruner := &fakePruner{}
	s := New(&config.Config{}, sweeper, pruner, zerolog.Nop())

	s.SweepClans()
	s.PruneSnapshots()

	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Equal(t, int32(1), pruner.calls.Load())
}
