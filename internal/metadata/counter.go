package metadata

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
PageCounter backs the orchestrator's pages_crawled stopping condition
(spec.md §4.3, "Evaluate global stopping conditions"). Recorder's own
PagesFetched is a per-process atomic counter, useless for a condition
that must see every fetcher process's output; this type keeps a single
Redis INCR counter all fetchers share instead.
*/
type PageCounter struct {
	client *redis.Client
}

func NewPageCounter(client *redis.Client) PageCounter {
	return PageCounter{client: client}
}

// IncrPagesFetched records one completed fetch (any outcome), called once
// per URL by the fetcher worker loop.
func (c PageCounter) IncrPagesFetched(ctx context.Context) error {
	return c.client.Incr(ctx, redisconn.KeyPagesFetched).Err()
}

// PagesFetched reads the current global count, sampled by the
// orchestrator's supervision loop.
func (c PageCounter) PagesFetched(ctx context.Context) (int64, error) {
	val, err := c.client.Get(ctx, redisconn.KeyPagesFetched).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
