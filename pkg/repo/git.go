package repo

import (
	"fmt"
	"os/exec"
	"strings"
)

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitAll stages everything and commits. --allow-empty keeps the history a
// complete audit trail even when an iteration changed nothing.
func CommitAll(dir, message string) error {
	if _, err := runGit(dir, "add", "-A"); err != nil {
		return err
	}
	if _, err := runGit(dir, "commit", "--allow-empty", "-m", message); err != nil {
		return err
	}
	return nil
}

// RecentCommits returns up to n one-line commit summaries, newest first.
func RecentCommits(dir string, n int) ([]string, error) {
	out, err := runGit(dir, "log", "--oneline", fmt.Sprintf("-%d", n))
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitCount returns the number of commits on the current branch.
func CommitCount(dir string) (int, error) {
	out, err := runGit(dir, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(out, "%d", &n); err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", out, err)
	}
	return n, nil
}
