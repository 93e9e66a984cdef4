package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/swarmcrawl/crawler/internal/config"
	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
supervisor implements spec.md §4.3's 5-second supervision loop: check
child liveness, auto-restart dead parsers (they keep no state beyond
fetch:queue; an item a dead parser had already popped is not re-queued),
never auto-restart a dead fetcher (its in-flight frontier offset may or
may not have been durably recorded, so restarting it risks either a
duplicate fetch or a silent skip), sample backlog depth, and evaluate
the three global stopping conditions.
*/
type supervisor struct {
	cfg       config.Config
	pools     *redisconn.Pools
	d         *deps
	logger    zerolog.Logger

	fetchers []*childProc
	parsers  []*childProc

	startTime      time.Time
	emptyStreak    int
	localFetcherAlive func() bool
}

func newSupervisor(cfg config.Config, pools *redisconn.Pools, d *deps, fetchers, parsers []*childProc, localFetcherAlive func() bool, logger zerolog.Logger) *supervisor {
	return &supervisor{
		cfg:               cfg,
		pools:             pools,
		d:                 d,
		logger:            logger,
		fetchers:          fetchers,
		parsers:           parsers,
		startTime:         time.Now(),
		localFetcherAlive: localFetcherAlive,
	}
}

// tick runs one supervision cycle, returning (true, reason) the moment a
// stopping condition is met.
func (s *supervisor) tick(ctx context.Context) (bool, string) {
	s.reapFetchers()
	s.restartDeadParsers(ctx)

	if !s.localFetcherAlive() && len(s.liveFetchers()) == 0 {
		return true, "all fetcher processes have exited"
	}

	if s.cfg.MaxDuration() > 0 && time.Since(s.startTime) >= s.cfg.MaxDuration() {
		return true, "max_duration reached"
	}

	if s.cfg.MaxPages() > 0 {
		pages, err := s.d.pageCounter.PagesFetched(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to sample pages_fetched")
		} else if pages >= int64(s.cfg.MaxPages()) {
			return true, "max_pages reached"
		}
	}

	empty, err := s.queuesEmpty(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to sample queue depth")
		s.emptyStreak = 0
	} else if empty {
		s.emptyStreak++
		if s.emptyStreak >= 2 {
			return true, "frontier and fetch queue drained"
		}
	} else {
		s.emptyStreak = 0
	}

	return false, ""
}

func (s *supervisor) liveFetchers() []*childProc {
	var live []*childProc
	for _, f := range s.fetchers {
		if exited, _ := f.exited(); !exited {
			live = append(live, f)
		}
	}
	return live
}

// reapFetchers logs every fetcher child that has exited since the last
// tick. Fetchers are never restarted (spec.md §4.3): their shard's
// frontier offset bookkeeping may have been left mid-update.
func (s *supervisor) reapFetchers() {
	for _, f := range s.fetchers {
		if exited, err := f.exited(); exited {
			s.logger.Error().Int("shard", f.id).Err(err).Msg("fetcher child exited; not restarting")
		}
	}
}

// restartDeadParsers replaces any parser child that has exited with a
// freshly spawned one at the same parser id. Parsers keep no state of
// their own beyond fetch:queue (spec.md §4.5). BLPOP has already removed
// any item the dead parser was working on, so that item is not re-queued.
func (s *supervisor) restartDeadParsers(ctx context.Context) {
	for i, p := range s.parsers {
		exited, err := p.exited()
		if !exited {
			continue
		}
		s.logger.Warn().Int("parser_id", p.id).Err(err).Msg("parser child exited; restarting")
		replacement, spawnErr := spawnChild(s.cfg, RoleParser, p.id)
		if spawnErr != nil {
			s.logger.Error().Int("parser_id", p.id).Err(spawnErr).Msg("failed to restart parser child")
			continue
		}
		s.parsers[i] = replacement
	}
}

// queuesEmpty reports whether every shard queue and fetch:queue itself
// are empty, used for the "two consecutive empty checks" stopping
// condition (spec.md §4.3).
func (s *supervisor) queuesEmpty(ctx context.Context) (bool, error) {
	depth, err := s.d.fetchQueue.Depth(ctx)
	if err != nil {
		return false, err
	}
	if depth > 0 {
		return false, nil
	}

	for shard := 0; shard < s.cfg.ShardCount(); shard++ {
		n, err := s.pools.Metadata.LLen(ctx, redisconn.ShardQueueKey(shard)).Result()
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// stopAll sends every remaining child a termination signal and waits up
// to childStopGrace each, per spec.md §4.3/§6 shutdown.
func (s *supervisor) stopAll() {
	for _, f := range s.fetchers {
		f.stop()
	}
	for _, p := range s.parsers {
		p.stop()
	}
}
