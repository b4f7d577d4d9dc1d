//go:build unix

package loop

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// detachedEnv distinguishes the top-level invocation from the re-spawned
// child so detachment happens exactly once.
const detachedEnv = "OVERSEER_DETACHED"

// Detached reports whether this process is the re-spawned background child.
func Detached() bool {
	return os.Getenv(detachedEnv) == "1"
}

// Detach re-executes the current binary with the same arguments as a fully
// detached background process: new session, stdout/stderr appended to the
// run log, parent exit does not terminate it. Returns the child pid.
func Detach(logPath string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file for detached child: %w", err)
	}
	defer logFile.Close()

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached child: %w", err)
	}

	// The child belongs to its own session now; do not wait on it.
	if err := cmd.Process.Release(); err != nil {
		return cmd.Process.Pid, fmt.Errorf("failed to release detached child: %w", err)
	}
	return cmd.Process.Pid, nil
}
