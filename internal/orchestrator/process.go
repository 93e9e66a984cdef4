package orchestrator

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/swarmcrawl/crawler/internal/config"
)

/*
Children are spawned by re-execing this same binary (os.Args[0]) with
every flag root.go's InitConfigWithError reads, plus the hidden
--internal-role/--internal-shard/--internal-parser-id trio that routes
the child into runInternalRole instead of the orchestrator path
(spec.md §4.3: "leader model ... spawns N-1 additional fetcher
processes and M parser processes").
*/

type childProc struct {
	cmd  *exec.Cmd
	role string
	id   int

	done chan error
}

func spawnChild(cfg config.Config, role string, id int) (*childProc, error) {
	execPath, err := os.Executable()
	if err != nil {
		execPath = os.Args[0]
	}

	cmd := exec.Command(execPath, childArgs(cfg, role, id)...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s child: %w", role, err)
	}

	c := &childProc{cmd: cmd, role: role, id: id, done: make(chan error, 1)}
	go func() {
		c.done <- cmd.Wait()
	}()
	return c, nil
}

// exited reports whether the child has already terminated, without
// blocking, along with the error cmd.Wait() returned (nil for a clean
// exit).
func (c *childProc) exited() (bool, error) {
	select {
	case err := <-c.done:
		c.done <- err // put it back so a second check still sees it
		return true, err
	default:
		return false, nil
	}
}

// stop sends SIGTERM and waits up to childStopGrace for the child to
// exit on its own before force-killing it (spec.md §4.3/§6 shutdown).
func (c *childProc) stop() {
	if c.cmd.Process == nil {
		return
	}
	_ = c.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-c.done:
	case <-time.After(childStopGrace):
		_ = c.cmd.Process.Kill()
		<-c.done
	}
}

func childArgs(cfg config.Config, role string, id int) []string {
	args := []string{
		"--data-dir", cfg.DataDir(),
		"--user-agent", cfg.UserAgent(),
		"--timeout", cfg.Timeout().String(),
		"--base-delay", cfg.BaseDelay().String(),
		"--jitter", cfg.Jitter().String(),
		"--random-seed", strconv.FormatInt(cfg.RandomSeed(), 10),
		"--max-depth", strconv.Itoa(cfg.MaxDepth()),
		"--shard-count", strconv.Itoa(cfg.ShardCount()),
		"--fetcher-workers", strconv.Itoa(cfg.FetcherWorkersPerShard()),
		"--parser-workers", strconv.Itoa(cfg.ParserWorkers()),
		"--num-parser-processes", strconv.Itoa(cfg.NumParserProcesses()),
		"--log-level", cfg.LogLevel(),
		"--fetch-queue-soft-limit", strconv.Itoa(cfg.FetchQueueSoftLimit()),
		"--fetch-queue-hard-limit", strconv.Itoa(cfg.FetchQueueHardLimit()),
		"--redis-addr", cfg.RedisAddr(),
		"--redis-db", strconv.Itoa(cfg.RedisDB()),
	}
	if cfg.RedisPassword() != "" {
		args = append(args, "--redis-password", cfg.RedisPassword())
	}
	if cfg.ExcludeFile() != "" {
		args = append(args, "--exclude-file", cfg.ExcludeFile())
	}
	if cfg.MaxPages() > 0 {
		args = append(args, "--max-pages", strconv.Itoa(cfg.MaxPages()))
	}
	if cfg.MaxDuration() > 0 {
		args = append(args, "--max-duration", cfg.MaxDuration().String())
	}
	if cfg.DryRun() {
		args = append(args, "--dry-run")
	}
	if cfg.SeededOnly() {
		args = append(args, "--seeded-only")
	}
	if cfg.Resume() {
		args = append(args, "--resume")
	}
	for _, u := range cfg.SeedURLs() {
		args = append(args, "--seed-url", u.String())
	}
	for host := range cfg.AllowedHosts() {
		args = append(args, "--allowed-host", host)
	}
	for _, prefix := range cfg.AllowedPathPrefix() {
		args = append(args, "--allowed-path-prefix", prefix)
	}

	args = append(args, "--internal-role", role)
	switch role {
	case RoleFetcher:
		args = append(args, "--internal-shard", strconv.Itoa(id))
	case RoleParser:
		args = append(args, "--internal-parser-id", strconv.Itoa(id))
	}
	return args
}

// spawnFetchers starts one child process per shard beyond shard 0, which
// the orchestrator hosts in-process.
func spawnFetchers(cfg config.Config, logger zerolog.Logger) ([]*childProc, error) {
	var children []*childProc
	for shard := 1; shard < cfg.ShardCount(); shard++ {
		child, err := spawnChild(cfg, RoleFetcher, shard)
		if err != nil {
			return children, err
		}
		logger.Info().Int("shard", shard).Int("pid", child.cmd.Process.Pid).Msg("spawned fetcher child")
		children = append(children, child)
	}
	return children, nil
}

// spawnParsers starts NumParserProcesses parser child processes.
func spawnParsers(cfg config.Config, logger zerolog.Logger) ([]*childProc, error) {
	var children []*childProc
	for id := 0; id < cfg.NumParserProcesses(); id++ {
		child, err := spawnChild(cfg, RoleParser, id)
		if err != nil {
			return children, err
		}
		logger.Info().Int("parser_id", id).Int("pid", child.cmd.Process.Pid).Msg("spawned parser child")
		children = append(children, child)
	}
	return children, nil
}
