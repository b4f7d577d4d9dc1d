// Package loop implements the iteration controller: it drives an external
// autonomous agent against a target repository, one commit per iteration,
// until the agent signals completion or the iteration budget runs out.
package loop

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/replayio/overseer/pkg/agent"
	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/repo"
	"github.com/replayio/overseer/pkg/runlog"
)

// Invoker abstracts the external agent process for testing.
type Invoker interface {
	Invoke(ctx context.Context, dir, prompt string) (*agent.Result, error)
}

// Config configures one controller run.
type Config struct {
	RepoDir       string
	StrategyPaths []string
	MaxIterations int // 0 means unlimited
	Runner        Invoker
	RunLog        *runlog.Log
}

// Controller runs the iteration loop. Strictly sequential: one agent
// invocation in flight at a time, one commit at a time.
type Controller struct {
	cfg Config
}

// New validates the configuration and creates a controller.
func New(cfg Config) (*Controller, error) {
	info, err := os.Stat(cfg.RepoDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("target repository %s does not exist or is not a directory", cfg.RepoDir)
	}
	if len(cfg.StrategyPaths) == 0 {
		return nil, fmt.Errorf("at least one strategy document is required")
	}
	for _, p := range cfg.StrategyPaths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("strategy document %s does not exist", p)
		}
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations must be positive")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.RunLog == nil {
		return nil, fmt.Errorf("run log is required")
	}
	return &Controller{cfg: cfg}, nil
}

// Run executes iterations until the agent signals completion, the budget is
// exhausted, or an invocation fails.
//
// Invocation failures are fail-fast regardless of remaining budget: they are
// near-always environmental (missing binary, bad credentials) and retrying
// burns budget without progress.
func (c *Controller) Run(ctx context.Context) error {
	c.cfg.RunLog.Printf("run started: repo=%s strategies=%d max_iterations=%d",
		c.cfg.RepoDir, len(c.cfg.StrategyPaths), c.cfg.MaxIterations)
	baseCommits, _ := repo.CommitCount(c.cfg.RepoDir)

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := c.runIteration(ctx, iteration)
		if err != nil {
			c.cfg.RunLog.Printf("run aborted at iteration %d: %v", iteration, err)
			return err
		}
		if done {
			c.cfg.RunLog.Printf("completion signal received at iteration %d, stopping", iteration)
			c.logCommitTotal(baseCommits)
			return nil
		}
		if c.cfg.MaxIterations > 0 && iteration >= c.cfg.MaxIterations {
			c.cfg.RunLog.Printf("iteration budget of %d exhausted, stopping", c.cfg.MaxIterations)
			c.logCommitTotal(baseCommits)
			return nil
		}
	}
}

// logCommitTotal records how many commits the run added. Count failures are
// ignored: the run log entry is a convenience, not part of the audit trail.
func (c *Controller) logCommitTotal(base int) {
	if n, err := repo.CommitCount(c.cfg.RepoDir); err == nil && n >= base {
		c.cfg.RunLog.Printf("run produced %d commits", n-base)
	}
}

func (c *Controller) runIteration(ctx context.Context, iteration int) (bool, error) {
	c.cfg.RunLog.Printf("iteration %d: gathering repository context", iteration)

	// Context is re-gathered from scratch every iteration so the agent sees
	// the tree as the previous iteration left it.
	repoContext, err := repo.GatherContext(c.cfg.RepoDir)
	if err != nil {
		return false, fmt.Errorf("failed to gather context: %w", err)
	}

	prompt, err := ComposePrompt(c.cfg.StrategyPaths, repoContext)
	if err != nil {
		return false, err
	}

	start := time.Now()
	res, err := c.cfg.Runner.Invoke(ctx, c.cfg.RepoDir, prompt)
	if err != nil {
		return false, err
	}
	elapsed := time.Since(start).Round(time.Second)

	c.cfg.RunLog.Printf("iteration %d: prompt=%d chars elapsed=%s cost=$%.4f turns=%d",
		iteration, len(prompt), elapsed, res.CostUSD, res.NumTurns)
	c.cfg.RunLog.Printf("iteration %d result: %s", iteration, res.Result)

	// The commit is never skipped; an empty commit keeps the history a
	// complete audit trail. Commit failure is a warning, not an abort.
	msg := fmt.Sprintf("iteration %d: automated agent pass", iteration)
	if err := repo.CommitAll(c.cfg.RepoDir, msg); err != nil {
		log.Warn("commit failed, continuing", "iteration", iteration, "error", err)
		c.cfg.RunLog.Printf("iteration %d: commit failed: %v", iteration, err)
	}

	return IsComplete(res.Done, res.Result), nil
}
