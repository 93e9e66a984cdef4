package parserproc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/swarmcrawl/crawler/internal/fetchqueue"
	"github.com/swarmcrawl/crawler/internal/frontier"
	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/internal/metrics"
	"github.com/swarmcrawl/crawler/internal/storage"
	"github.com/swarmcrawl/crawler/internal/visited"
	"github.com/swarmcrawl/crawler/pkg/failure"
	"github.com/swarmcrawl/crawler/pkg/retry"
)

/*
Responsibilities (spec.md §4.5)

  - BLPOP fetch:queue with a bounded timeout; an empty pop is not an
    error, the worker just loops.
  - Extract main text and outbound links from the HTML payload.
  - Persist the extracted text atomically, feed links back into the
    frontier at depth+1, and record the terminal visited: entry.
  - On an extraction failure, re-queue the item with its retry counter
    incremented, up to MaxRetries; past that the item is dropped and the
    drop is recorded as a parse-drop metric, not silently discarded.

Every Redis round trip goes through pkg/retry.Retry, the same as
internal/fetcherproc, so a transient Redis blip never turns into a
permanently lost fetch:queue item.
*/

// FetchQueueConsumer is the narrow fetchqueue.Queue dependency a worker needs.
type FetchQueueConsumer interface {
	BlockingPop(ctx context.Context, timeout time.Duration) ([]byte, bool, error)
	Push(ctx context.Context, r fetchqueue.Record) error
}

// FrontierAdder is the narrow frontier.Manager dependency a worker needs.
type FrontierAdder interface {
	AddURLs(ctx context.Context, batch []frontier.URLCandidate) (int, error)
}

// VisitedRecorder is the narrow visited.Store dependency a worker needs.
type VisitedRecorder interface {
	Record(ctx context.Context, r visited.Record) error
}

// ContentWriter is the narrow storage.ContentStore dependency a worker needs.
type ContentWriter interface {
	Write(sourceURL string, text []byte) (storage.WriteResult, failure.ClassifiedError)
}

type Pool struct {
	cfg Config

	fetchQueue    FetchQueueConsumer
	frontierDest  FrontierAdder
	visitedStore  VisitedRecorder
	contentStore  ContentWriter

	metadataSink metadata.MetadataSink
	metrics      *metrics.Collector
	logger       zerolog.Logger

	retryParam retry.RetryParam
}

func NewPool(
	cfg Config,
	fetchQueue FetchQueueConsumer,
	frontierDest FrontierAdder,
	visitedStore VisitedRecorder,
	contentStore ContentWriter,
	metadataSink metadata.MetadataSink,
	collector *metrics.Collector,
	logger zerolog.Logger,
	retryParam retry.RetryParam,
) *Pool {
	return &Pool{
		cfg:          cfg,
		fetchQueue:   fetchQueue,
		frontierDest: frontierDest,
		visitedStore: visitedStore,
		contentStore: contentStore,
		metadataSink: metadataSink,
		metrics:      collector,
		logger:       logger.With().Str("component", "parserproc").Logger(),
		retryParam:   retryParam,
	}
}

func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.NumWorkers; i++ {
		g.Go(func() error {
			p.workerLoop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, ok, err := p.blockingPop(ctx)
		if err != nil {
			p.recordError("BlockingPop", err)
			continue
		}
		if !ok {
			continue
		}

		record, err := fetchqueue.Decode(raw)
		if err != nil {
			p.recordError("fetchqueue.Decode", err)
			continue
		}

		p.handleRecord(ctx, record)
	}
}

func (p *Pool) handleRecord(ctx context.Context, record fetchqueue.Record) {
	page, err := extractPage(record.HTML, record.URL)
	if err != nil {
		p.onExtractionFailure(ctx, record, err)
		return
	}

	_, writeErr := p.writeContent(record.URL, []byte(page.text))
	if writeErr != nil {
		p.recordError("ContentStore.Write", writeErr)
	}

	candidates := make([]frontier.URLCandidate, 0, len(page.links))
	for _, link := range page.links {
		candidates = append(candidates, frontier.NewURLCandidate(link, record.Depth+1))
	}
	if len(candidates) > 0 {
		if _, err := p.addURLs(ctx, candidates); err != nil {
			p.recordError("frontier.AddURLs", err)
		}
	}

	var contentPath string
	if writeErr == nil {
		contentPath = p.contentPathFor(record.URL)
	}
	if err := p.recordVisited(ctx, visited.Record{
		URL:          record.URL,
		StatusCode:   record.StatusCode,
		ContentType:  record.ContentType,
		ContentPath:  contentPath,
		CrawledAt:    time.Unix(record.FetchedAt, 0),
		RedirectedTo: redirectedTo(record),
	}); err != nil {
		p.recordError("visited.Record", err)
	}

	if writeErr == nil && p.metrics != nil {
		p.metrics.ArtifactsWritten.Inc()
	}
}

func redirectedTo(record fetchqueue.Record) string {
	if record.IsRedirect && record.URL != record.InitialURL {
		return record.URL
	}
	return ""
}

// contentPathFor mirrors storage.ContentStore.Path without requiring a
// *storage.ContentStore specifically, so ContentWriter can stay a narrow
// interface; the path is deterministic from the URL alone.
func (p *Pool) contentPathFor(sourceURL string) string {
	type pather interface{ Path(string) string }
	if cs, ok := p.contentStore.(pather); ok {
		return cs.Path(sourceURL)
	}
	return ""
}

func (p *Pool) onExtractionFailure(ctx context.Context, record fetchqueue.Record, cause error) {
	if p.metrics != nil {
		p.metrics.ParseErrors.Inc()
	}

	if record.RetryCount+1 >= p.cfg.MaxRetries {
		if p.metrics != nil {
			p.metrics.ParseDrops.Inc()
		}
		p.recordError("extractPage (dropped after retries)", cause)
		return
	}

	retried := record.IncrementRetry()
	if err := p.pushFetchQueue(ctx, retried); err != nil {
		p.recordError("fetchqueue.Push (retry)", err)
	}
}

func (p *Pool) writeContent(sourceURL string, text []byte) (storage.WriteResult, failure.ClassifiedError) {
	return p.contentStore.Write(sourceURL, text)
}

func (p *Pool) blockingPop(ctx context.Context) ([]byte, bool, error) {
	type popResult struct {
		raw []byte
		ok  bool
	}
	result := retry.Retry(p.retryParam, func() (popResult, failure.ClassifiedError) {
		raw, ok, err := p.fetchQueue.BlockingPop(ctx, p.cfg.PopTimeout)
		if err != nil {
			return popResult{}, &redisOpError{err}
		}
		return popResult{raw: raw, ok: ok}, nil
	})
	if result.Err() != nil {
		return nil, false, result.Err()
	}
	return result.Value().raw, result.Value().ok, nil
}

func (p *Pool) addURLs(ctx context.Context, batch []frontier.URLCandidate) (int, error) {
	result := retry.Retry(p.retryParam, func() (int, failure.ClassifiedError) {
		n, err := p.frontierDest.AddURLs(ctx, batch)
		if err != nil {
			return 0, &redisOpError{err}
		}
		return n, nil
	})
	if result.Err() != nil {
		return 0, result.Err()
	}
	return result.Value(), nil
}

func (p *Pool) recordVisited(ctx context.Context, record visited.Record) error {
	result := retry.Retry(p.retryParam, func() (struct{}, failure.ClassifiedError) {
		if err := p.visitedStore.Record(ctx, record); err != nil {
			return struct{}{}, &redisOpError{err}
		}
		return struct{}{}, nil
	})
	return result.Err()
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

func (p *Pool) recordError(action string, err error) {
	p.logger.Error().Str("action", action).Err(err).Msg("parser worker error")
	if p.metadataSink == nil {
		return
	}
	p.metadataSink.RecordError(
		time.Now(),
		"parserproc",
		action,
		metadata.CauseContentInvalid,
		err.Error(),
		nil,
	)
	if p.metrics != nil {
		p.metrics.ErrorsTotal.WithLabelValues(action).Inc()
	}
}
