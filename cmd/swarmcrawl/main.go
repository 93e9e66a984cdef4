package main

import (
	"fmt"

	"go.uber.org/automaxprocs/maxprocs"

	cmd "github.com/swarmcrawl/crawler/internal/cli"
	"github.com/swarmcrawl/crawler/internal/orchestrator"
)

func main() {
	// A crawl is a single long-lived batch job, not a process that reacts
	// to a container quota changing underneath it; one-shot GOMAXPROCS at
	// startup is enough, unlike a long-running server that re-polls.
	if _, err := maxprocs.Set(maxprocs.Logger(logMaxProcs)); err != nil {
		fmt.Printf("failed to set GOMAXPROCS: %s\n", err)
	}

	cmd.OrchestratorRunner = orchestrator.Run
	cmd.WorkerRunner = orchestrator.RunWorker

	cmd.Execute()
}

func logMaxProcs(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
