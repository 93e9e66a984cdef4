package orchestrator

import (
	"net/http"

	"github.com/swarmcrawl/crawler/internal/bloomfilter"
	"github.com/swarmcrawl/crawler/internal/config"
	"github.com/swarmcrawl/crawler/internal/fetchqueue"
	"github.com/swarmcrawl/crawler/internal/frontier"
	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/internal/politeness"
	"github.com/swarmcrawl/crawler/internal/redisconn"
	"github.com/swarmcrawl/crawler/internal/storage"
	"github.com/swarmcrawl/crawler/internal/visited"
	"github.com/swarmcrawl/crawler/pkg/retry"
	"github.com/swarmcrawl/crawler/pkg/timeutil"
)

// deps bundles every shared component a fetcher shard, a parser worker, or
// the bootstrap sequence itself needs. The orchestrator builds one copy to
// run shard 0 and the bootstrap steps in-process; a re-exec'd child builds
// its own copy against the same Redis pools.
type deps struct {
	recorder     *metadata.Recorder
	frontierMgr  *frontier.Manager
	enforcer     *politeness.Enforcer
	bloom        bloomfilter.Filter
	pageCounter  metadata.PageCounter
	contentStore storage.ContentStore
	frontierStore storage.FrontierStore
	visitedStore visited.Store
	fetchQueue   fetchqueue.Queue
	retryParam   retry.RetryParam
}

func buildDeps(cfg config.Config, pools *redisconn.Pools, recorder *metadata.Recorder) *deps {
	frontierStore := storage.NewFrontierStore(cfg.DataDir(), recorder)
	contentStore := storage.NewContentStore(cfg.DataDir(), recorder)
	bloom := bloomfilter.New(pools.Metadata)
	enforcer := politeness.NewEnforcer(pools.Metadata, &http.Client{Timeout: cfg.Timeout()}, cfg.UserAgent(), cfg.BaseDelay())
	frontierMgr := frontier.NewManager(pools.Metadata, frontierStore, bloom, enforcer, recorder, cfg.SeededOnly())

	retryParam := retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()),
	)

	return &deps{
		recorder:      recorder,
		frontierMgr:   frontierMgr,
		enforcer:      enforcer,
		bloom:         bloom,
		pageCounter:   metadata.NewPageCounter(pools.Metadata),
		contentStore:  contentStore,
		frontierStore: frontierStore,
		visitedStore:  visited.New(pools.Metadata),
		fetchQueue:    fetchqueue.New(pools.FetchQueue),
		retryParam:    retryParam,
	}
}

// realSleeper is declared here, not imported per call site, so the single
// instance is reused across every fetcher shard this process hosts.
var realSleeper = timeutil.NewRealSleeper()
