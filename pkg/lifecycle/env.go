package lifecycle

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// passthroughEnv is the allow-list of orchestrator environment variables
// copied into each unit. Never a blanket copy.
var passthroughEnv = []string{
	"ANTHROPIC_API_KEY",
	"ANTHROPIC_AUTH_TOKEN",
	"ANTHROPIC_BASE_URL",
	"GITHUB_TOKEN",
	"GH_TOKEN",
}

// buildUnitEnv assembles the environment for one unit: allow-listed secrets
// plus repository coordinates and callback configuration.
func buildUnitEnv(job LaunchJob, unitName, webhookURL, webhookSecret string) map[string]string {
	env := make(map[string]string)
	for _, key := range passthroughEnv {
		if v := os.Getenv(key); v != "" {
			env[key] = v
		}
	}

	env["CONTAINER_NAME"] = unitName
	env["REPO_URL"] = job.RepoURL
	if job.CloneBranch != "" {
		env["CLONE_BRANCH"] = job.CloneBranch
	}
	if job.PushBranch != "" {
		env["PUSH_BRANCH"] = job.PushBranch
	}
	env["WEBHOOK_URL"] = webhookURL
	if webhookSecret != "" {
		env["WEBHOOK_SECRET"] = webhookSecret
	}

	return env
}

var nameAdjectives = []string{
	"bold", "calm", "deft", "eager", "fond", "glad", "keen", "lively",
	"merry", "nimble", "quick", "spry", "steady", "swift", "warm", "wise",
}

var nameNouns = []string{
	"otter", "heron", "lynx", "finch", "badger", "crane", "marten", "plover",
	"raven", "stoat", "swift", "tern", "vole", "wren", "ibis", "kite",
}

// generateUnitName produces a human-readable unit name with a short random
// suffix, e.g. "agent-bold-otter-3f2a".
func generateUnitName() string {
	id := uuid.New()
	adj := nameAdjectives[int(id[0])%len(nameAdjectives)]
	noun := nameNouns[int(id[1])%len(nameNouns)]
	return fmt.Sprintf("agent-%s-%s-%x", adj, noun, id[2:4])
}
