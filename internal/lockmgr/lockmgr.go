package lockmgr

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
Ordinary per-URL work never takes a Redis lock (spec.md §3). Locks exist
only for the orchestrator's init-phase operations: schema bump,
resharding, bloom-filter creation. One lock, "init", is used throughout
this codebase; the name is kept generic so a future second lock can
reuse this package without changes.
*/

var ErrAlreadyHeld = errors.New("lock already held by another token")

// Lock is a Redis SETNX-based lock with a short TTL and a process-unique
// token (so a holder can tell its own lock apart from a stale one left
// behind by a crashed process).
type Lock struct {
	client *redis.Client
	name   string
	token  string
	ttl    time.Duration
}

func New(client *redis.Client, name string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		name:   name,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Token returns this lock's process-unique token, used by the abandoned-lock
// sweep to tell "my prior crashed process" apart from "another live host".
func (l *Lock) Token() string { return l.token }

// Acquire attempts SETNX immediately; if held, it retries on a short
// interval until waitFor elapses.
func (l *Lock) Acquire(ctx context.Context, waitFor time.Duration) error {
	deadline := time.Now().Add(waitFor)
	key := redisconn.LockKey(l.name)

	for {
		ok, err := l.client.SetNX(ctx, key, l.token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrAlreadyHeld
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Release deletes the lock key only if it still holds this lock's token,
// so a lock that expired and was re-acquired by someone else is never
// deleted out from under them.
func (l *Lock) Release(ctx context.Context) error {
	key := redisconn.LockKey(l.name)
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	return script.Run(ctx, l.client, []string{key}, l.token).Err()
}

// SweepAbandoned deletes the init lock if its value matches one of
// staleTokens — tokens known to belong to this host's prior, crashed
// processes. This is the best-effort sweep described in spec.md §4.3
// step 3.
func SweepAbandoned(ctx context.Context, client *redis.Client, name string, staleTokens []string) error {
	key := redisconn.LockKey(name)
	current, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, stale := range staleTokens {
		if current == stale {
			return client.Del(ctx, key).Err()
		}
	}
	return nil
}
