// Package agent invokes the external autonomous agent process and parses its
// structured output.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds one synchronous agent invocation.
const DefaultTimeout = 30 * time.Minute

// ErrInvocation marks failures to run the agent at all: spawn errors and
// non-zero exits with no parseable result.
var ErrInvocation = errors.New("agent invocation failed")

// Result is the structured output of one agent invocation. Done is the
// primary completion signal; the free-text Result is also scanned for the
// completion marker as a fallback for agents that do not emit the field.
type Result struct {
	Result   string  `json:"result"`
	CostUSD  float64 `json:"total_cost_usd"`
	NumTurns int     `json:"num_turns"`
	Done     bool    `json:"is_done"`
}

// Runner executes the agent binary.
type Runner struct {
	Bin     string        // agent executable, e.g. "claude"
	Timeout time.Duration // per-invocation bound
}

// NewRunner creates a runner for the given binary. An empty bin defaults to
// "claude"; a zero timeout defaults to DefaultTimeout.
func NewRunner(bin string, timeout time.Duration) *Runner {
	if bin == "" {
		bin = "claude"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Bin: bin, Timeout: timeout}
}

// Invoke runs the agent synchronously in dir with the given prompt.
func (r *Runner) Invoke(ctx context.Context, dir, prompt string) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Bin,
		"-p", prompt,
		"--output-format", "json",
		"--dangerously-skip-permissions",
	)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: timed out after %s", ErrInvocation, r.Timeout)
	}

	res, parseErr := parseOutput(stdout.Bytes())
	if runErr != nil {
		// A non-zero exit with a parseable result still counts; agents exit
		// non-zero on partial failures while reporting what they did.
		if parseErr == nil {
			return res, nil
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrInvocation, runErr, firstLine(stderr.String()))
	}
	if parseErr != nil {
		// Exit 0 with unstructured stdout: treat the raw text as the result.
		return &Result{Result: stdout.String()}, nil
	}
	return res, nil
}

func parseOutput(data []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty agent output")
	}
	var res Result
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return nil, fmt.Errorf("unparseable agent output: %w", err)
	}
	return &res, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
