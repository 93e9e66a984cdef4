package redisconn

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

/*
Two pools are kept deliberately separate:

  - Metadata: used for domain hashes, shard queues, the visited set,
    the schema-version string, and lock keys.
  - FetchQueue: used only for fetch:queue records, whose payload is a
    gob-encoded struct rather than UTF-8 text.

Both clients are built from the same options; they differ only in what
callers use them for.

This mirrors the split in spec.md §4.3 startup step 1. Keeping them as
distinct *redis.Client values (even though both usually point at the
same Redis instance) lets an operator route them to different
instances later without touching caller code.
*/

// Pools bundles the two Redis client pools the crawler needs.
type Pools struct {
	Metadata   *redis.Client
	FetchQueue *redis.Client
}

// Options configures both pools identically, DB selection included.
type Options struct {
	Addr     string
	Password string
	DB       int
}

func NewPools(opts Options) *Pools {
	base := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}

	metadataOpts := *base
	fetchQueueOpts := *base

	return &Pools{
		Metadata:   redis.NewClient(&metadataOpts),
		FetchQueue: redis.NewClient(&fetchQueueOpts),
	}
}

// Ping verifies both pools can reach Redis, used during orchestrator
// startup before any lock is taken.
func (p *Pools) Ping(ctx context.Context) error {
	if err := p.Metadata.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("metadata pool: %w", err)
	}
	if err := p.FetchQueue.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("fetch queue pool: %w", err)
	}
	return nil
}

// Close releases both pools; called during orchestrator shutdown.
func (p *Pools) Close() error {
	var firstErr error
	if err := p.Metadata.Close(); err != nil {
		firstErr = err
	}
	if err := p.FetchQueue.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Key namespace per spec.md §6's Redis key table, plus three orchestrator
// coordination keys the table doesn't name individually: a global fetched-page
// counter for the pages_crawled stopping condition, a schema version marker
// for init-time storage reconciliation, and the shutdown flag children poll.
const (
	KeyShardCount    = "crawler:shard_count"
	KeySeenBloom     = "seen:bloom"
	KeyFetchQueue    = "fetch:queue"
	KeyPagesFetched  = "crawler:pages_fetched"
	KeySchemaVersion = "crawler:schema_version"
	KeyShutdown      = "crawler:shutdown"
	domainHashFmt    = "domain:%s"
	shardQueueFmt    = "domains:queue:%d"
	visitedKeyFmt    = "visited:%s"
	lockKeyFmt       = "lock:%s"
)

func DomainHashKey(domain string) string { return fmt.Sprintf(domainHashFmt, domain) }
func ShardQueueKey(shard int) string     { return fmt.Sprintf(shardQueueFmt, shard) }
func VisitedKey(urlSHA256Hex string) string { return fmt.Sprintf(visitedKeyFmt, urlSHA256Hex) }
func LockKey(name string) string        { return fmt.Sprintf(lockKeyFmt, name) }

// Domain hash field names.
const (
	FieldFrontierOffset = "frontier_offset"
	FieldFrontierSize   = "frontier_size"
	FieldNextFetchTime  = "next_fetch_time"
	FieldRobotsExpires  = "robots_expires"
	FieldRobotsContent  = "robots_content"
	FieldIsExcluded     = "is_excluded"
	FieldIsSeeded       = "is_seeded"
)

// DefaultDialTimeout bounds how long a single connection attempt may take;
// used by callers constructing *redis.Options directly in tests.
const DefaultDialTimeout = 5 * time.Second
