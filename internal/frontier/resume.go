package frontier

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
Resume-mode reconciliation (spec.md §4.1 "add_urls contract", last
paragraph, and §3 Lifecycles). A crash between a frontier append and the
corresponding frontier_size bump leaves durable bytes that no queue entry
refers to. On resume, for every known domain where frontier_size is
behind the file's actual size, bump frontier_size to match and enqueue
the domain — before any fetcher starts, per spec.md §4.3 startup step 4.
*/

// ReconcileOnResume goes through the given domains (the orchestrator
// passes every domain that has a frontier file on disk), compares frontier_size
// against the frontier file's actual on-disk size, and for any domain
// where the file is ahead, bumps frontier_size and re-enqueues the
// domain onto its current shard queue.
func (m *Manager) ReconcileOnResume(ctx context.Context, domains []string) error {
	for _, domain := range domains {
		if err := m.reconcileDomain(ctx, domain); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) reconcileDomain(ctx context.Context, domain string) error {
	mu := m.domainMutex(domain)
	mu.Lock()
	defer mu.Unlock()

	key := redisconn.DomainHashKey(domain)
	recordedSize, err := m.redisClient.HGet(ctx, key, redisconn.FieldFrontierSize).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	recorded := parseIntOr(recordedSize, 0)

	actual, classifiedErr := m.frontier.Size(domain)
	if classifiedErr != nil {
		return classifiedErr
	}

	if actual <= recorded {
		return nil
	}

	if err := m.redisClient.HSet(ctx, key, redisconn.FieldFrontierSize, actual).Err(); err != nil {
		return err
	}

	shard, err := m.shardFor(ctx, domain)
	if err != nil {
		return err
	}
	return m.redisClient.RPush(ctx, redisconn.ShardQueueKey(shard), domain).Err()
}

// ClearFresh deletes every shard queue, every domain:* hash, and
// seen:bloom, for "fresh" mode start (spec.md §4.1 "Clearing & resume").
// The caller is responsible for recursively removing
// <data_dir>/frontiers/ on disk and for recreating the bloom filter.
func (m *Manager) ClearFresh(ctx context.Context, shardCount int, knownDomains []string) error {
	for i := 0; i < shardCount; i++ {
		if err := m.redisClient.Del(ctx, redisconn.ShardQueueKey(i)).Err(); err != nil {
			return err
		}
	}
	for _, domain := range knownDomains {
		if err := m.redisClient.Del(ctx, redisconn.DomainHashKey(domain)).Err(); err != nil {
			return err
		}
	}
	return m.bloom.Delete(ctx)
}
