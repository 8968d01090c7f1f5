package service

import (
	"battlestats/internal/queue"
)

// RegisterJobs binds every background refresh job to its handler.
func RegisterJobs(q *queue.Queue, players *PlayerService, stats *StatsService, clans *ClanService) {
	q.Register(JobRefreshProfile, players.handleRefreshProfile)
	q.Register(JobRefreshBattles, stats.handleRefresh(JobRefreshBattles))
	q.Register(JobRefreshActivity, stats.handleRefresh(JobRefreshActivity))
	q.Register(JobRefreshClan, clans.handleRefreshClan)
}
