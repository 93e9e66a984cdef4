package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/swarmcrawl/crawler/internal/config"
	"github.com/swarmcrawl/crawler/internal/logging"
	"github.com/swarmcrawl/crawler/internal/metadata"
	"github.com/swarmcrawl/crawler/internal/metrics"
	"github.com/swarmcrawl/crawler/internal/redisconn"
)

/*
Run is the orchestrator entrypoint (spec.md §4.3): the leader process
that performs one-time init, spawns fetcher/parser children, hosts
fetcher shard 0 itself, and supervises everything until a stopping
condition or signal tells it to shut down.

Run never returns; it calls os.Exit with one of the codes spec.md §6
defines, since there is nothing left for a caller to do with a leader
process once its lifecycle ends.
*/
func Run(cfg config.Config) {
	logger := logging.New("orchestrator", 0, logging.ParseLevel(cfg.LogLevel()))
	recorder := metadata.NewRecorder(logger)
	collector := metrics.New("orchestrator", 0)

	pools := redisconn.NewPools(redisconn.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword(),
		DB:       cfg.RedisDB(),
	})
	defer pools.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	err := pools.Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Error().Err(err).Msg("cannot reach redis")
		os.Exit(ExitUnrecoverable)
	}

	d := buildDeps(cfg, pools, recorder)

	ctx, sigCancel := installSignalHandling(logger)
	defer sigCancel()

	if err := bootstrap(ctx, cfg, pools, d, logger); err != nil {
		logger.Error().Err(err).Msg("bootstrap failed")
		os.Exit(ExitUnrecoverable)
	}
	logger.Info().Msg("bootstrap complete")

	fetchers, err := spawnFetchers(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to spawn fetcher children")
		os.Exit(ExitUnrecoverable)
	}
	parsers, err := spawnParsers(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to spawn parser children")
		os.Exit(ExitUnrecoverable)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(runCtx)
	localPool := buildFetcherPool(cfg, 0, d, collector, logger)
	localDone := make(chan struct{})
	g.Go(func() error {
		defer close(localDone)
		return localPool.Run(gCtx)
	})

	localAlive := func() bool {
		select {
		case <-localDone:
			return false
		default:
			return true
		}
	}

	sup := newSupervisor(cfg, pools, d, fetchers, parsers, localAlive, logger)

	reason := superviseLoop(ctx, sup, logger)
	logger.Info().Str("reason", reason).Msg("shutting down")

	if err := pools.Metadata.Set(context.Background(), redisconn.KeyShutdown, "1", 0).Err(); err != nil {
		logger.Warn().Err(err).Msg("failed to set shutdown flag")
	}

	runCancel()
	<-localDone

	sup.stopAll()

	if collector.MultiprocessEnabled() {
		_ = collector.WriteMultiprocFile()
	}
	clearStaleToken(cfg.DataDir())

	exitCode := ExitOK
	if reason == signalExitReason {
		exitCode = ExitInterrupted
	}
	os.Exit(exitCode)
}

const signalExitReason = "interrupted"

// superviseLoop runs supervisor ticks on supervisionInterval until either
// a stopping condition fires or ctx is cancelled by a signal.
func superviseLoop(ctx context.Context, sup *supervisor, logger zerolog.Logger) string {
	ticker := time.NewTicker(supervisionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return signalExitReason
		case <-ticker.C:
			if stop, reason := sup.tick(ctx); stop {
				return reason
			}
		}
	}
}

// installSignalHandling returns a context cancelled on the first
// SIGINT/SIGTERM; a second signal within doubleSignalWindow exits the
// process immediately instead of waiting for a graceful drain (spec.md
// §6).
func installSignalHandling(logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		first := <-sigCh
		logger.Info().Str("signal", first.String()).Msg("received interrupt; shutting down gracefully")
		cancel()

		select {
		case second := <-sigCh:
			logger.Warn().Str("signal", second.String()).Msg("received second interrupt; exiting immediately")
			os.Exit(ExitInterrupted)
		case <-time.After(doubleSignalWindow):
		}
	}()

	return ctx, cancel
}

// RunWorker is the entrypoint for a re-exec'd fetcher or parser child
// (spec.md §4.3/§4.4/§4.5). Like Run, it never returns.
func RunWorker(role string, shard, parserID int, cfg config.Config) {
	id := shard
	if role == RoleParser {
		id = parserID
	}

	logger := logging.New(role, id, logging.ParseLevel(cfg.LogLevel()))
	recorder := metadata.NewRecorder(logger)
	collector := metrics.New(role, id)

	pools := redisconn.NewPools(redisconn.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword(),
		DB:       cfg.RedisDB(),
	})
	defer pools.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	err := pools.Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Error().Err(err).Msg("cannot reach redis")
		os.Exit(ExitUnrecoverable)
	}

	d := buildDeps(cfg, pools, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	go watchShutdownFlag(ctx, pools, cancel)

	var runErr error
	switch role {
	case RoleFetcher:
		pool := buildFetcherPool(cfg, shard, d, collector, logger)
		runErr = pool.Run(ctx)
	case RoleParser:
		pool := buildParserPool(cfg, d, collector, logger)
		runErr = pool.Run(ctx)
	default:
		logger.Error().Str("role", role).Msg("unknown internal role")
		os.Exit(ExitMisconfiguration)
	}

	if collector.MultiprocessEnabled() {
		_ = collector.WriteMultiprocFile()
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("worker exited with error")
		os.Exit(ExitUnrecoverable)
	}
	os.Exit(ExitOK)
}

// watchShutdownFlag polls the shared shutdown flag the orchestrator sets
// so a child started before a signal reaches it still drains and exits.
func watchShutdownFlag(ctx context.Context, pools *redisconn.Pools, cancel context.CancelFunc) {
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			val, err := pools.Metadata.Get(ctx, redisconn.KeyShutdown).Result()
			if err == nil && val == "1" {
				cancel()
				return
			}
		}
	}
}
