// Package config carries the tunable constants shared by the scheduler,
// downloader and tile maker. A single immutable Config is built once at
// startup and threaded through every stage; nothing here is a package
// global.
package config

import "time"

// Config holds every tunable used by the archive pipeline.
type Config struct {
	// Margin padding (spec.md §4.1): symmetric widening applied to a job's
	// extent before it is counted or fetched, never stored.
	MarginLatDeg  float64
	MarginLonDeg  float64
	MarginTime    time.Duration

	// MaxResultsInRequest is the cap a job's padded rectangle must stay
	// under to avoid the upstream API's overflow response.
	MaxResultsInRequest int

	// UpstreamHardCap is the absolute ceiling the API reports 'total'
	// against; beyond it the region is unreachable regardless of paging.
	UpstreamHardCap int

	// APIKey authenticates against the upstream photo-search API.
	APIKey string

	// DownloaderWorkers bounds the per-job page-fetch worker pool.
	DownloaderWorkers int

	// RetryAttempts and RetryBackoff govern the upstream HTTP retry policy.
	RetryAttempts int
	RetryBackoff  time.Duration

	// ConnectTimeout and ReadTimeout bound a single HTTP request.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// HardPageCeiling caps total pages fetched for a too-small job that
	// overflowed and must tolerate data loss rather than scan forever.
	HardPageCeiling int

	// StatsInterval controls how often the downloader emits its
	// queue/throughput stats line.
	StatsInterval time.Duration

	// Tile pyramid tunables (spec.md §4.3).
	SymbolRadiusPx        int
	MaxPointsInVectorTile int
	MaxPointsInNormalTile int
	MaxLevel              uint8
	MaxOverviewsLevel     uint8
	StepPixels            int

	// BannedOwners are excluded from tile rendering entirely.
	BannedOwners []string
}

// Default returns the constants observed in the original pipeline.
func Default() Config {
	return Config{
		MarginLatDeg:          0.0004,
		MarginLonDeg:          0.0004,
		MarginTime:            1000 * time.Second,
		MaxResultsInRequest:   3500,
		UpstreamHardCap:       4000,
		DownloaderWorkers:     20,
		RetryAttempts:         1000,
		RetryBackoff:          time.Second,
		ConnectTimeout:        3050 * time.Millisecond,
		ReadTimeout:           30 * time.Second,
		HardPageCeiling:       20,
		StatsInterval:         60 * time.Second,
		SymbolRadiusPx:        5,
		MaxPointsInVectorTile: 2000,
		MaxPointsInNormalTile: 100000,
		MaxLevel:              18,
		MaxOverviewsLevel:     5,
		StepPixels:            2,
		BannedOwners:          []string{"100597270@N04"},
	}
}
