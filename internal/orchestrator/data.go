package orchestrator

import "time"

/*
Process roles a re-exec'd child is told to run as, matching the
--internal-role values internal/cli/root.go accepts.
*/
const (
	RoleFetcher = "fetcher"
	RoleParser  = "parser"
)

// Exit codes, spec.md §6.
const (
	ExitOK              = 0
	ExitMisconfiguration = 1
	ExitUnrecoverable    = 2
	ExitInterrupted      = 130
)

const (
	lockName   = "init"
	lockTTL    = 60 * time.Second
	lockWaitFor = 30 * time.Second

	// supervisionInterval is the orchestrator's tick period for liveness
	// checks, parser restarts, and stopping-condition evaluation (spec.md §4.3).
	supervisionInterval = 5 * time.Second

	// childStopGrace is how long a child gets to exit after SIGTERM before
	// the orchestrator force-kills it (spec.md §4.3, §6).
	childStopGrace = 10 * time.Second

	// doubleSignalWindow is how soon a second interrupt must follow the
	// first to trigger an immediate exit instead of a graceful drain.
	doubleSignalWindow = 5 * time.Second

	// shutdownPollInterval is how often a worker process (fetcher or
	// parser child) checks the shared shutdown flag in Redis.
	shutdownPollInterval = 2 * time.Second

	// staleTokenFile records the lock token this process last held while
	// running init, so a subsequent run can recognize and sweep its own
	// abandoned lock after an unclean shutdown.
	staleTokenFile = ".init_lock_token"
)
