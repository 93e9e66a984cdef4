package fetcherproc

import "time"

// Config holds everything one fetcher process's worker pool needs that
// isn't itself a dependency (frontier, fetcher, queues, logging).
type Config struct {
	ShardID       int
	NumWorkers    int
	UserAgent     string
	FetchTimeout  time.Duration

	// EmptyFrontierSleep is how long an idle worker waits before polling
	// get_next_url again (spec.md §4.4 "EMPTY_FRONTIER_SLEEP").
	EmptyFrontierSleep time.Duration

	// BackpressureSoftThreshold/HardThreshold gate fetch:queue depth
	// against parser consumption (spec.md §4.4).
	BackpressureSoftThreshold int64
	BackpressureHardThreshold int64

	// StartupBatchSize/StartupBatchInterval stagger worker goroutine
	// startup so a fetcher process doesn't open every connection at once.
	StartupBatchSize     int
	StartupBatchInterval time.Duration
}

// WithDefault fills in the constants spec.md §4.4 pins, leaving the
// caller to set ShardID/NumWorkers/UserAgent/FetchTimeout.
func WithDefault() Config {
	return Config{
		EmptyFrontierSleep:        10 * time.Second,
		BackpressureSoftThreshold: 20000,
		BackpressureHardThreshold: 80000,
		StartupBatchSize:          100,
		StartupBatchInterval:      5 * time.Second,
	}
}
