package fetcherproc

import (
	"context"
	"math/rand"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/swarmcrawl/crawler/internal/fetchqueue"
	"github.com/swarmcrawl/crawler/internal/fetcher"
	"github.com/swarmcrawl/crawler/internal/frontier"
	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/internal/metrics"
	"github.com/swarmcrawl/crawler/internal/visited"
	"github.com/swarmcrawl/crawler/pkg/failure"
	"github.com/swarmcrawl/crawler/pkg/retry"
	"github.com/swarmcrawl/crawler/pkg/timeutil"
)

/*
Responsibilities (spec.md §4.4)

  - Run NumWorkers goroutines per fetcher process, each looping
    get_next_url -> fetch -> classify -> record, owning shard ShardID.
  - Stagger worker startup in batches so a process doesn't open every
    connection at once, and jitter each worker's first iteration.
  - Back off when fetch:queue grows faster than the parser drains it.
  - Treat every Redis round trip as a bounded, retryable operation; a
    transport-level fetch failure is outcome data, not a retry trigger.

A worker never blocks indefinitely: an empty frontier sleeps and
retries, a backlogged fetch queue sleeps and retries, and a dead
upstream Redis eventually exhausts its retry budget and is logged as a
recoverable error for the next iteration to try again.
*/

// FrontierSource is the narrow frontier.Manager dependency a worker needs.
type FrontierSource interface {
	GetNextURL(ctx context.Context, fetcherID int) (frontier.CrawlToken, bool, error)
}

// FetchQueuePusher is the narrow fetchqueue.Queue dependency a worker needs.
type FetchQueuePusher interface {
	Push(ctx context.Context, r fetchqueue.Record) error
	Depth(ctx context.Context) (int64, error)
}

// VisitedRecorder is the narrow visited.Store dependency a worker needs.
type VisitedRecorder interface {
	Record(ctx context.Context, r visited.Record) error
}

// PageCounter is the narrow metadata.PageCounter dependency a worker needs,
// backing the orchestrator's global pages_crawled stopping condition.
type PageCounter interface {
	IncrPagesFetched(ctx context.Context) error
}

type Pool struct {
	cfg Config

	frontierSrc  FrontierSource
	fetchQueue   FetchQueuePusher
	visitedStore VisitedRecorder
	pageCounter  PageCounter
	fetcher      fetcher.Fetcher

	metadataSink metadata.MetadataSink
	metrics      *metrics.Collector
	logger       zerolog.Logger

	retryParam retry.RetryParam
	sleeper    timeutil.Sleeper
}

func NewPool(
	cfg Config,
	frontierSrc FrontierSource,
	fetchQueue FetchQueuePusher,
	visitedStore VisitedRecorder,
	pageCounter PageCounter,
	htmlFetcher fetcher.Fetcher,
	metadataSink metadata.MetadataSink,
	collector *metrics.Collector,
	logger zerolog.Logger,
	retryParam retry.RetryParam,
	sleeper timeutil.Sleeper,
) *Pool {
	return &Pool{
		cfg:          cfg,
		frontierSrc:  frontierSrc,
		fetchQueue:   fetchQueue,
		visitedStore: visitedStore,
		pageCounter:  pageCounter,
		fetcher:      htmlFetcher,
		metadataSink: metadataSink,
		metrics:      collector,
		logger:       logger.With().Str("component", "fetcherproc").Int("shard", cfg.ShardID).Logger(),
		retryParam:   retryParam,
		sleeper:      sleeper,
	}
}

// Run launches the worker pool and blocks until ctx is cancelled or a
// worker returns an unrecoverable error.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.NumWorkers; i++ {
		workerID := i
		g.Go(func() error {
			p.staggerStartup(ctx, workerID)
			p.workerLoop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) staggerStartup(ctx context.Context, workerID int) {
	batchSize := p.cfg.StartupBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	batch := workerID / batchSize
	batchDelay := time.Duration(batch) * p.cfg.StartupBatchInterval
	jitter := time.Duration(workerID%100) * 50 * time.Millisecond

	select {
	case <-ctx.Done():
	case <-time.After(batchDelay + jitter):
	}
}

func (p *Pool) workerLoop(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(int64(workerID) + 1))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if p.waitOnBackpressure(ctx, rng) {
			continue
		}

		token, ok, err := p.getNextURL(ctx)
		if err != nil {
			p.recordError("GetNextURL", err)
			continue
		}
		if !ok {
			p.sleeper.Sleep(p.cfg.EmptyFrontierSleep)
			continue
		}

		p.handleToken(ctx, token)
	}
}

// backpressurePollInterval is how often a hard-backpressured worker
// re-samples queue depth while block-polling for it to drain.
const backpressurePollInterval = time.Second

// drainTarget is the depth a hard-backpressured worker block-polls down
// to before resuming (spec.md §4.4: "block-poll until depth < 20 000").
const drainTarget = 20000

// waitOnBackpressure samples fetch:queue depth against the soft/hard
// thresholds (spec.md §4.4 step 4). Past the hard threshold the worker
// blocks, re-sampling depth, until it drops back under drainTarget; past
// only the soft threshold it sleeps once, proportional to the overflow,
// and resumes.
func (p *Pool) waitOnBackpressure(ctx context.Context, rng *rand.Rand) bool {
	depth, err := p.queueDepth(ctx)
	if err != nil {
		p.recordError("fetchqueue.Depth", err)
		return false
	}

	if depth > p.cfg.BackpressureHardThreshold {
		if p.metrics != nil {
			p.metrics.BackpressureHard.Inc()
		}
		for {
			select {
			case <-ctx.Done():
				return true
			default:
			}
			p.sleeper.Sleep(backpressurePollInterval)
			depth, err = p.queueDepth(ctx)
			if err != nil {
				p.recordError("fetchqueue.Depth", err)
				return true
			}
			if depth < drainTarget {
				break
			}
		}
	}

	if depth > p.cfg.BackpressureSoftThreshold {
		if p.metrics != nil {
			p.metrics.BackpressureSoft.Inc()
		}
		seconds := 2 * float64(depth-drainTarget) / 60000
		sleep := time.Duration(seconds * float64(time.Second))
		sleep += timeutil.ComputeJitter(500*time.Millisecond, *rng)
		p.sleeper.Sleep(sleep)
	}

	return false
}

func (p *Pool) handleToken(ctx context.Context, token frontier.CrawlToken) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	fetchURL, err := url.Parse(token.URL())
	if err != nil {
		p.recordError("url.Parse", err)
		return
	}

	outcome := p.fetcher.Fetch(fetchCtx, token.Depth(), fetcher.NewFetchParam(*fetchURL, p.cfg.UserAgent))

	if err := p.incrPagesFetched(ctx); err != nil {
		p.recordError("PageCounter.Incr", err)
	}

	if outcome.IsHTML() {
		p.enqueueForParsing(ctx, token, outcome)
		return
	}

	p.recordVisited(ctx, token, outcome)
}

func (p *Pool) enqueueForParsing(ctx context.Context, token frontier.CrawlToken, outcome fetcher.FetchOutcome) {
	record := fetchqueue.NewRecord(
		outcome.FinalURL().String(),
		token.URL(),
		token.Domain(),
		token.Depth(),
		outcome.StatusCode(),
		outcome.ContentType(),
		outcome.IsRedirect(),
		outcome.FetchedAt(),
		outcome.Body(),
	)
	if err := p.pushFetchQueue(ctx, record); err != nil {
		p.recordError("fetchqueue.Push", err)
	}
}

func (p *Pool) recordVisited(ctx context.Context, token frontier.CrawlToken, outcome fetcher.FetchOutcome) {
	record := visited.Record{
		URL:         token.URL(),
		StatusCode:  outcome.StatusCode(),
		ContentType: outcome.ContentType(),
		CrawledAt:   outcome.FetchedAt(),
	}
	if outcome.IsRedirect() {
		record.RedirectedTo = outcome.FinalURL().String()
	}
	if err := p.recordVisitedRetrying(ctx, record); err != nil {
		p.recordError("visited.Record", err)
	}
}

type nextURLResult struct {
	token frontier.CrawlToken
	ok    bool
}

func (p *Pool) getNextURL(ctx context.Context) (frontier.CrawlToken, bool, error) {
	result := retry.Retry(p.retryParam, func() (nextURLResult, failure.ClassifiedError) {
		token, ok, err := p.frontierSrc.GetNextURL(ctx, p.cfg.ShardID)
		if err != nil {
			return nextURLResult{}, &redisOpError{err}
		}
		return nextURLResult{token: token, ok: ok}, nil
	})
	if result.Err() != nil {
		return frontier.CrawlToken{}, false, result.Err()
	}
	return result.Value().token, result.Value().ok, nil
}

func (p *Pool) queueDepth(ctx context.Context) (int64, error) {
	result := retry.Retry(p.retryParam, func() (int64, failure.ClassifiedError) {
		depth, err := p.fetchQueue.Depth(ctx)
		if err != nil {
			return 0, &redisOpError{err}
		}
		return depth, nil
	})
	if result.Err() != nil {
		return 0, result.Err()
	}
	return result.Value(), nil
}

func (p *Pool) pushFetchQueue(ctx context.Context, record fetchqueue.Record) error {
	result := retry.Retry(p.retryParam, func() (struct{}, failure.ClassifiedError) {
		if err := p.fetchQueue.Push(ctx, record); err != nil {
			return struct{}{}, &redisOpError{err}
		}
		return struct{}{}, nil
	})
	return result.Err()
}

func (p *Pool) recordVisitedRetrying(ctx context.Context, record visited.Record) error {
	result := retry.Retry(p.retryParam, func() (struct{}, failure.ClassifiedError) {
		if err := p.visitedStore.Record(ctx, record); err != nil {
			return struct{}{}, &redisOpError{err}
		}
		return struct{}{}, nil
	})
	return result.Err()
}

func (p *Pool) incrPagesFetched(ctx context.Context) error {
	if p.pageCounter == nil {
		return nil
	}
	result := retry.Retry(p.retryParam, func() (struct{}, failure.ClassifiedError) {
		if err := p.pageCounter.IncrPagesFetched(ctx); err != nil {
			return struct{}{}, &redisOpError{err}
		}
		return struct{}{}, nil
	})
	return result.Err()
}

func (p *Pool) recordError(action string, err error) {
	p.logger.Error().Str("action", action).Err(err).Msg("fetcher worker error")
	if p.metadataSink == nil {
		return
	}
	p.metadataSink.RecordError(
		time.Now(),
		"fetcherproc",
		action,
		metadata.CauseUnknown,
		err.Error(),
		nil,
	)
	if p.metrics != nil {
		p.metrics.ErrorsTotal.WithLabelValues(action).Inc()
	}
}
