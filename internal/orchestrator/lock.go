package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/swarmcrawl/crawler/internal/lockmgr"
)

/*
A crashed orchestrator leaves lock:init held until its TTL expires
(spec.md §4.3 step 2's SETNX), and lockmgr.SweepAbandoned only deletes a
lock whose value is a token this host already knows to be stale — it has
no registry of its own to consult. staleTokenFile is that registry: one
token per data directory, written right after a successful Acquire and
removed on clean shutdown. Its presence at the next startup means the
prior run never got to remove it, so its token (if it's still the one
sitting in Redis) is safe to sweep.
*/

func staleTokenPath(dataDir string) string {
	return filepath.Join(dataDir, staleTokenFile)
}

func readStaleToken(dataDir string) string {
	data, err := os.ReadFile(staleTokenPath(dataDir))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeStaleToken(dataDir, token string) error {
	return os.WriteFile(staleTokenPath(dataDir), []byte(token), 0644)
}

func clearStaleToken(dataDir string) {
	_ = os.Remove(staleTokenPath(dataDir))
}

// acquireInitLock sweeps any lock abandoned by this data directory's prior,
// uncleanly-terminated process, then acquires lock:init for this run.
func acquireInitLock(ctx context.Context, client *redis.Client, dataDir string) (*lockmgr.Lock, error) {
	if stale := readStaleToken(dataDir); stale != "" {
		if err := lockmgr.SweepAbandoned(ctx, client, lockName, []string{stale}); err != nil {
			return nil, err
		}
	}

	lock := lockmgr.New(client, lockName, lockTTL)
	if err := lock.Acquire(ctx, lockWaitFor); err != nil {
		return nil, err
	}
	if err := writeStaleToken(dataDir, lock.Token()); err != nil {
		return nil, err
	}
	return lock, nil
}
