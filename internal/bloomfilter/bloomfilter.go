package bloomfilter

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
seen:bloom is a RedisBloom filter sized for ~160M URLs at a 0.1%
false-positive rate (spec.md §3). go-redis has no typed RedisBloom
client, so commands are issued with the raw Do() call — the same
pattern the pack uses for module commands it has no typed wrapper for.

Capacity and error rate are fixed at creation time and never resized;
a crawl that would exceed 160M distinct URLs is out of scope.
*/

const (
	capacity  = 160_000_000
	errorRate = 0.001
)

// Filter wraps the seen:bloom key.
type Filter struct {
	client *redis.Client
}

func New(client *redis.Client) Filter {
	return Filter{client: client}
}

// EnsureExists creates seen:bloom with BF.RESERVE if absent. Called only
// during orchestrator init, while holding lock:init (spec.md §7,
// "Bloom filter missing").
func (f Filter) EnsureExists(ctx context.Context) error {
	err := f.client.Do(ctx, "BF.RESERVE", redisconn.KeySeenBloom, errorRate, capacity).Err()
	if err != nil && !isAlreadyExists(err) {
		return err
	}
	return nil
}

// MightContain reports whether url has probably already been seen. False
// positives are acceptable; false negatives are not.
func (f Filter) MightContain(ctx context.Context, url string) (bool, error) {
	res, err := f.client.Do(ctx, "BF.EXISTS", redisconn.KeySeenBloom, url).Result()
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

// Add marks url as seen.
func (f Filter) Add(ctx context.Context, url string) error {
	return f.client.Do(ctx, "BF.ADD", redisconn.KeySeenBloom, url).Err()
}

// Delete removes seen:bloom entirely — used by "fresh" mode clearing
// (spec.md §4.1 "Clearing & resume").
func (f Filter) Delete(ctx context.Context) error {
	return f.client.Del(ctx, redisconn.KeySeenBloom).Err()
}

func isAlreadyExists(err error) bool {
	return strings.Contains(err.Error(), "exists")
}

func toBool(res any) bool {
	switch v := res.(type) {
	case int64:
		return v == 1
	case bool:
		return v
	default:
		return false
	}
}
