package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/swarmcrawl/crawler/internal/config"
	"github.com/swarmcrawl/crawler/internal/fetcher"
	"github.com/swarmcrawl/crawler/internal/fetcherproc"
	"github.com/swarmcrawl/crawler/internal/metrics"
	"github.com/swarmcrawl/crawler/internal/parserproc"
)

// buildFetcherPool constructs one shard's worker pool. The orchestrator
// calls this once, for shard 0, to run in-process; a re-exec'd fetcher
// child calls it for whichever shard it was told to own.
func buildFetcherPool(cfg config.Config, shard int, d *deps, collector *metrics.Collector, logger zerolog.Logger) *fetcherproc.Pool {
	poolCfg := fetcherproc.WithDefault()
	poolCfg.ShardID = shard
	poolCfg.NumWorkers = cfg.FetcherWorkersPerShard()
	poolCfg.UserAgent = cfg.UserAgent()
	poolCfg.FetchTimeout = cfg.Timeout()
	if cfg.FetchQueueSoftLimit() > 0 {
		poolCfg.BackpressureSoftThreshold = int64(cfg.FetchQueueSoftLimit())
	}
	if cfg.FetchQueueHardLimit() > 0 {
		poolCfg.BackpressureHardThreshold = int64(cfg.FetchQueueHardLimit())
	}

	htmlFetcher := fetcher.NewHtmlFetcher(d.recorder, cfg.Timeout())

	return fetcherproc.NewPool(
		poolCfg,
		d.frontierMgr,
		d.fetchQueue,
		d.visitedStore,
		d.pageCounter,
		&htmlFetcher,
		d.recorder,
		collector,
		logger,
		d.retryParam,
		realSleeper,
	)
}

// buildParserPool constructs the parser worker pool for this process
// (the orchestrator never runs one locally; only re-exec'd parser
// children do).
func buildParserPool(cfg config.Config, d *deps, collector *metrics.Collector, logger zerolog.Logger) *parserproc.Pool {
	poolCfg := parserproc.WithDefault()
	poolCfg.NumWorkers = cfg.ParserWorkers()

	return parserproc.NewPool(
		poolCfg,
		d.fetchQueue,
		d.frontierMgr,
		d.visitedStore,
		&d.contentStore,
		d.recorder,
		collector,
		logger,
		d.retryParam,
	)
}
