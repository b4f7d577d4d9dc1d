package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/replayio/overseer/pkg/agent"
	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/loop"
	"github.com/replayio/overseer/pkg/runlog"
)

var (
	loopLogPath       string
	loopMaxIterations int
	loopDetach        bool
	loopAgentBin      string
	loopAgentTimeout  time.Duration
	loopLogLevel      string
)

var loopCmd = &cobra.Command{
	Use:   "loop <repo-dir> <strategy-file>...",
	Short: "Run the iteration loop against a repository",
	Long: `Run the iteration loop: repeatedly invoke the external agent against the
target repository with fresh context, committing after every iteration, until
the agent signals completion or the iteration budget is exhausted.

With --detach the loop re-spawns itself as a background process writing to the
log file, so the invoking terminal can disconnect.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Init(log.Config{Level: log.Level(loopLogLevel)}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer log.Sync()

		if loopLogPath == "" {
			return fmt.Errorf("--log is required")
		}
		if cmd.Flags().Changed("max-iterations") && loopMaxIterations <= 0 {
			return fmt.Errorf("--max-iterations must be a positive integer")
		}

		// Detachment happens exactly once: the re-spawned child carries the
		// marker and falls through to the loop itself.
		if loopDetach && !loop.Detached() {
			pid, err := loop.Detach(loopLogPath)
			if err != nil {
				return fmt.Errorf("failed to detach: %w", err)
			}
			fmt.Printf("detached: pid %d, log %s\n", pid, loopLogPath)
			return nil
		}

		rl, err := runlog.Open(loopLogPath)
		if err != nil {
			return err
		}
		defer rl.Close()

		controller, err := loop.New(loop.Config{
			RepoDir:       args[0],
			StrategyPaths: args[1:],
			MaxIterations: loopMaxIterations,
			Runner:        agent.NewRunner(loopAgentBin, loopAgentTimeout),
			RunLog:        rl,
		})
		if err != nil {
			return err
		}

		return controller.Run(context.Background())
	},
}

func init() {
	loopCmd.Flags().StringVar(&loopLogPath, "log", "", "Path to the run log file (required)")
	loopCmd.Flags().IntVar(&loopMaxIterations, "max-iterations", 0, "Maximum number of iterations (unlimited if omitted)")
	loopCmd.Flags().BoolVar(&loopDetach, "detach", false, "Re-spawn as a detached background process")
	loopCmd.Flags().StringVar(&loopAgentBin, "agent-bin", "claude", "Agent executable to invoke")
	loopCmd.Flags().DurationVar(&loopAgentTimeout, "timeout", agent.DefaultTimeout, "Per-invocation agent timeout")
	loopCmd.Flags().StringVar(&loopLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	_ = loopCmd.MarkFlagRequired("log")
	rootCmd.AddCommand(loopCmd)
}
