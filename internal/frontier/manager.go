package frontier

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/bloomfilter"
	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/internal/redisconn"
	"github.com/swarmcrawl/crawler/internal/storage"
	"github.com/swarmcrawl/crawler/internal/urlnorm"
	"github.com/swarmcrawl/crawler/pkg/hashutil"
)

/*
Manager owns the data model of domains, frontier files, and shard
queues, and exposes exactly the two operations callers need:
AddURLs (from parsers) and GetNextURL (from fetchers). It knows
nothing about fetching, extraction, or content persistence.

Cross-process correctness comes from shard ownership: only the
fetcher owning shard i ever pops domains:queue:i. The per-domain
mutex below is purely process-local, guarding against the (rare)
case of a single fetcher process running more than one worker
goroutine against the same domain inside one GetNextURL call chain.
*/

// Politeness is the narrow dependency Manager needs from the politeness
// enforcer. Defined here (rather than imported as a concrete type) so the
// two packages don't depend on each other's internals.
type Politeness interface {
	IsURLAllowed(ctx context.Context, domain, url string) (bool, error)
	CanFetchDomainNow(ctx context.Context, domain string) (bool, error)
	RecordDomainFetchAttempt(ctx context.Context, domain string) error
}

// Bloom is the narrow seen:bloom dependency Manager needs; satisfied by
// bloomfilter.Filter in production and by a fake in tests (RedisBloom
// module commands are not reproducible against an in-memory Redis fake).
type Bloom interface {
	MightContain(ctx context.Context, url string) (bool, error)
	Add(ctx context.Context, url string) error
	Delete(ctx context.Context) error
}

var _ Bloom = bloomfilter.Filter{}

const domainMutexCount = 1024

type Manager struct {
	redisClient  *redis.Client
	frontier     storage.FrontierStore
	bloom        Bloom
	politeness   Politeness
	metadataSink metadata.MetadataSink

	seededOnly bool

	domainMutexes [domainMutexCount]sync.Mutex
}

func NewManager(
	redisClient *redis.Client,
	frontierStore storage.FrontierStore,
	bloom Bloom,
	politeness Politeness,
	metadataSink metadata.MetadataSink,
	seededOnly bool,
) *Manager {
	return &Manager{
		redisClient:  redisClient,
		frontier:     frontierStore,
		bloom:        bloom,
		politeness:   politeness,
		metadataSink: metadataSink,
		seededOnly:   seededOnly,
	}
}

func (m *Manager) domainMutex(domain string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(domain))
	return &m.domainMutexes[h.Sum32()%domainMutexCount]
}

// AddURLs normalizes and admits a batch of candidate URLs, appending
// accepted ones to their owning domain's frontier file and enqueuing
// newly non-empty domains. Returns the number of URLs actually appended.
func (m *Manager) AddURLs(ctx context.Context, batch []URLCandidate) (int, error) {
	accepted := make(map[string][]storage.FrontierEntry)

	for _, candidate := range batch {
		normalized, err := urlnorm.Normalize(candidate.RawURL)
		if err != nil {
			continue
		}
		domain := urlnorm.Domain(normalized)
		normalizedURL := normalized.String()

		allowed, err := m.domainAdmitted(ctx, domain)
		if err != nil || !allowed {
			continue
		}

		seen, err := m.bloom.MightContain(ctx, normalizedURL)
		if err != nil {
			continue
		}
		if seen {
			continue
		}

		permitted, err := m.politeness.IsURLAllowed(ctx, domain, normalizedURL)
		if err != nil {
			continue
		}
		if !permitted {
			_ = m.bloom.Add(ctx, normalizedURL)
			continue
		}

		_ = m.bloom.Add(ctx, normalizedURL)
		accepted[domain] = append(accepted[domain], storage.NewFrontierEntry(normalizedURL, candidate.Depth))
	}

	total := 0
	for domain, entries := range accepted {
		n, err := m.appendDomainBatch(ctx, domain, entries)
		if err != nil {
			m.recordError("AddURLs", domain, err)
			continue
		}
		total += n
	}
	return total, nil
}

func (m *Manager) domainAdmitted(ctx context.Context, domain string) (bool, error) {
	key := redisconn.DomainHashKey(domain)
	values, err := m.redisClient.HMGet(ctx, key, redisconn.FieldIsExcluded, redisconn.FieldIsSeeded).Result()
	if err != nil {
		return false, err
	}
	isExcluded := values[0] == "1"
	isSeeded := values[1] == "1"

	if isExcluded {
		return false, nil
	}
	if m.seededOnly && !isSeeded {
		return false, nil
	}
	return true, nil
}

// appendDomainBatch performs add_urls steps 6a/6b for one domain: a single
// append syscall, then the frontier_size bump and conditional enqueue.
func (m *Manager) appendDomainBatch(ctx context.Context, domain string, entries []storage.FrontierEntry) (int, error) {
	mu := m.domainMutex(domain)
	mu.Lock()
	defer mu.Unlock()

	key := redisconn.DomainHashKey(domain)
	values, err := m.redisClient.HMGet(ctx, key, redisconn.FieldFrontierOffset, redisconn.FieldFrontierSize).Result()
	if err != nil {
		return 0, err
	}
	priorOffset := parseIntOr(values[0], 0)
	priorSize := parseIntOr(values[1], 0)
	wasDrained := priorOffset == priorSize

	_, bytesWritten, classifiedErr := m.frontier.Append(domain, entries)
	if classifiedErr != nil {
		return 0, classifiedErr
	}

	if err := m.redisClient.HIncrBy(ctx, key, redisconn.FieldFrontierSize, bytesWritten).Err(); err != nil {
		return 0, err
	}

	if wasDrained {
		shard, err := m.shardFor(ctx, domain)
		if err != nil {
			return len(entries), err
		}
		if err := m.redisClient.RPush(ctx, redisconn.ShardQueueKey(shard), domain).Err(); err != nil {
			return len(entries), err
		}
	}

	return len(entries), nil
}

func (m *Manager) shardFor(ctx context.Context, domain string) (int, error) {
	shardCount, err := m.ShardCount(ctx)
	if err != nil {
		return 0, err
	}
	return hashutil.DomainShard(domain, shardCount)
}

// ShardCount reads crawler:shard_count, defaulting to 1 if absent.
func (m *Manager) ShardCount(ctx context.Context) (int, error) {
	val, err := m.redisClient.Get(ctx, redisconn.KeyShardCount).Result()
	if err == redis.Nil {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// GetNextURL implements the get_next_url contract of spec.md §4.1.
func (m *Manager) GetNextURL(ctx context.Context, fetcherID int) (CrawlToken, bool, error) {
	shardCount, err := m.ShardCount(ctx)
	if err != nil {
		return CrawlToken{}, false, err
	}
	if fetcherID >= shardCount {
		return CrawlToken{}, false, nil
	}

	queueKey := redisconn.ShardQueueKey(fetcherID)
	domain, err := m.redisClient.LPop(ctx, queueKey).Result()
	if err == redis.Nil {
		return CrawlToken{}, false, nil
	}
	if err != nil {
		return CrawlToken{}, false, err
	}

	mu := m.domainMutex(domain)
	mu.Lock()
	defer mu.Unlock()

	canFetch, err := m.politeness.CanFetchDomainNow(ctx, domain)
	if err != nil {
		return CrawlToken{}, false, err
	}
	if !canFetch {
		if err := m.redisClient.RPush(ctx, queueKey, domain).Err(); err != nil {
			return CrawlToken{}, false, err
		}
		return CrawlToken{}, false, nil
	}

	key := redisconn.DomainHashKey(domain)
	for {
		values, err := m.redisClient.HMGet(ctx, key, redisconn.FieldFrontierOffset, redisconn.FieldFrontierSize).Result()
		if err != nil {
			return CrawlToken{}, false, err
		}
		offset := int64(parseIntOr(values[0], 0))
		size := int64(parseIntOr(values[1], 0))
		if offset == size {
			return CrawlToken{}, false, nil
		}

		entry, nextOffset, classifiedErr := m.frontier.ReadNext(domain, offset)
		if classifiedErr != nil {
			return CrawlToken{}, false, classifiedErr
		}
		if err := m.redisClient.HSet(ctx, key, redisconn.FieldFrontierOffset, nextOffset).Err(); err != nil {
			return CrawlToken{}, false, err
		}

		allowed, err := m.politeness.IsURLAllowed(ctx, domain, entry.URL)
		if err != nil {
			return CrawlToken{}, false, err
		}
		if !allowed {
			continue
		}

		if err := m.politeness.RecordDomainFetchAttempt(ctx, domain); err != nil {
			return CrawlToken{}, false, err
		}
		if err := m.redisClient.RPush(ctx, queueKey, domain).Err(); err != nil {
			return CrawlToken{}, false, err
		}

		return NewCrawlToken(entry.URL, domain, entry.Depth), true, nil
	}
}

func (m *Manager) recordError(action, domain string, err error) {
	if m.metadataSink == nil {
		return
	}
	m.metadataSink.RecordError(
		time.Now(),
		"frontier",
		action,
		metadata.CauseStorageFailure,
		err.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrHost, domain)},
	)
}

func parseIntOr(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
