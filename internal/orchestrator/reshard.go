package orchestrator

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/redisconn"
	"github.com/swarmcrawl/crawler/pkg/hashutil"
)

/*
reshard implements spec.md §4.3.1: crawler:shard_count only ever changes
between runs (an operator passing a different --shard-count), never
while fetchers are active. On a change, every domain queued against an
old shard index is drained and recomputed against the new shard count
before crawler:shard_count is updated — otherwise a fetcher watching
domains:queue:i would silently stop seeing domains that hashed there
under the old count.

Called while holding lock:init, before any fetcher or parser starts.
*/
func reshard(ctx context.Context, client *redis.Client, newShardCount int) error {
	current, err := currentShardCount(ctx, client)
	if err != nil {
		return err
	}
	if current == newShardCount {
		return nil
	}

	for oldShard := 0; oldShard < current; oldShard++ {
		oldKey := redisconn.ShardQueueKey(oldShard)
		for {
			domain, err := client.LPop(ctx, oldKey).Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return err
			}

			newShard, err := hashutil.DomainShard(domain, newShardCount)
			if err != nil {
				return err
			}
			if err := client.RPush(ctx, redisconn.ShardQueueKey(newShard), domain).Err(); err != nil {
				return err
			}
		}
	}

	return client.Set(ctx, redisconn.KeyShardCount, newShardCount, 0).Err()
}

func currentShardCount(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, redisconn.KeyShardCount).Result()
	if err == redis.Nil {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}
