package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// upstream accepts at most this many dates per statsbydate call
	SnapshotBatchDays = 7
	SnapshotBatches   = 4
	TimelineDays      = 29

	MaxShipTier  = 11
	RandomsLimit = 20

	// account/info accepts up to 100 comma separated ids
	ProfileBatchSize = 100

	ShipLookupConcurrency = 8
	StaleClanSweepLimit   = 50
)

const (
	SnapshotDateLayout = "2006-01-02"
	UpstreamDateLayout = "20060102"
)
