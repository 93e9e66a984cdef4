package orchestrator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/swarmcrawl/crawler/internal/config"
	"github.com/swarmcrawl/crawler/internal/frontier"
	"github.com/swarmcrawl/crawler/internal/redisconn"
	"github.com/swarmcrawl/crawler/internal/storage"
	"github.com/swarmcrawl/crawler/internal/urlnorm"
)

/*
bootstrap runs once, under lock:init, before any fetcher or parser
starts (spec.md §4.3 startup sequence). Every step here is idempotent:
a second orchestrator run against the same Redis (after a clean or
unclean prior exit) must be safe to repeat.
*/
func bootstrap(ctx context.Context, cfg config.Config, pools *redisconn.Pools, d *deps, logger zerolog.Logger) error {
	lock, err := acquireInitLock(ctx, pools.Metadata, cfg.DataDir())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to release init lock")
		}
	}()

	if err := reshard(ctx, pools.Metadata, cfg.ShardCount()); err != nil {
		return err
	}
	logger.Info().Int("shard_count", cfg.ShardCount()).Msg("reshard reconciled")

	if err := clearOrReconcile(ctx, cfg, d, logger); err != nil {
		return err
	}

	if err := storage.EnsureDirLayout(cfg.DataDir()); err != nil {
		return err
	}
	matched, previous, err := storage.ReconcileSchemaVersion(ctx, pools.Metadata)
	if err != nil {
		return err
	}
	if !matched {
		logger.Warn().Str("previous_version", previous).Str("current_version", storage.SchemaVersion).
			Msg("schema version mismatch from a prior run; proceeding without migration")
	}

	if err := markExclusions(ctx, cfg, d, logger); err != nil {
		return err
	}
	if err := markSeeds(ctx, cfg, d); err != nil {
		return err
	}

	if err := d.bloom.EnsureExists(ctx); err != nil {
		return err
	}

	if err := seedFrontier(ctx, cfg, d); err != nil {
		return err
	}

	return nil
}

// clearOrReconcile implements spec.md §4.1's "Clearing & resume" step: in
// resume mode, bump frontier_size for any domain whose durable bytes got
// ahead of Redis's bookkeeping (a crash between append and the size bump)
// and re-enqueue it; in the default fresh mode, delete every shard queue,
// every domain:* hash, seen:bloom, and the frontiers/ tree itself, so a
// fresh run never inherits a prior run's crawl state.
func clearOrReconcile(ctx context.Context, cfg config.Config, d *deps, logger zerolog.Logger) error {
	domains, err := storage.ListFrontierDomains(cfg.DataDir())
	if err != nil {
		return err
	}

	if cfg.Resume() {
		if err := d.frontierMgr.ReconcileOnResume(ctx, domains); err != nil {
			return err
		}
		logger.Info().Int("domain_count", len(domains)).Msg("resume reconciliation complete")
		return nil
	}

	if err := d.frontierMgr.ClearFresh(ctx, cfg.ShardCount(), domains); err != nil {
		return err
	}
	if err := storage.RemoveFrontierTree(cfg.DataDir()); err != nil {
		return err
	}
	logger.Info().Int("domain_count", len(domains)).Msg("fresh start: cleared frontier and domain state")
	return nil
}

func markExclusions(ctx context.Context, cfg config.Config, d *deps, logger zerolog.Logger) error {
	domains, err := loadExclusions(cfg.ExcludeFile())
	if err != nil {
		return err
	}
	for _, domain := range domains {
		if err := d.enforcer.MarkExcluded(ctx, domain); err != nil {
			return err
		}
	}
	if len(domains) > 0 {
		logger.Info().Int("count", len(domains)).Msg("manual exclusions applied")
	}
	return nil
}

func markSeeds(ctx context.Context, cfg config.Config, d *deps) error {
	for _, domain := range seedDomains(cfg) {
		if err := d.enforcer.MarkSeeded(ctx, domain); err != nil {
			return err
		}
	}
	return nil
}

func seedDomains(cfg config.Config) []string {
	seen := make(map[string]struct{})
	var domains []string
	for _, u := range cfg.SeedURLs() {
		domain := u.Hostname()
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		domains = append(domains, domain)
	}
	return domains
}

func seedFrontier(ctx context.Context, cfg config.Config, d *deps) error {
	var candidates []frontier.URLCandidate
	for _, u := range cfg.SeedURLs() {
		normalized, err := urlnorm.Normalize(u.String())
		if err != nil {
			continue
		}
		candidates = append(candidates, frontier.NewURLCandidate(normalized.String(), 0))
	}
	if len(candidates) == 0 {
		return nil
	}
	_, err := d.frontierMgr.AddURLs(ctx, candidates)
	return err
}
