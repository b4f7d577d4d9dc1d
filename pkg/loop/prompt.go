package loop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CompletionMarker is the token the agent is instructed to emit in its result
// text when all strategy-described work is complete. Kept as a fallback
// signal; the structured is_done field is checked first.
const CompletionMarker = "<DONE/>"

var instructionBlock = strings.TrimSpace(fmt.Sprintf(`
## Instructions

Work on the goals described in the strategy documents above. Make real
progress this session: edit files, run what you need, and leave the tree in a
working state. Do not ask questions; decide and proceed.

When and only when ALL work described by the strategy documents is complete,
include the exact token %s in your final summary. If work remains, do not
emit the token.
`, CompletionMarker))

// ComposePrompt assembles the full per-iteration prompt: strategy documents
// (each labeled with its source name), the freshly gathered repository
// context, and the fixed instruction block.
func ComposePrompt(strategyPaths []string, repoContext string) (string, error) {
	var sb strings.Builder

	for _, path := range strategyPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read strategy document %s: %w", path, err)
		}
		sb.WriteString(fmt.Sprintf("## Strategy: %s\n\n", filepath.Base(path)))
		sb.Write(data)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Repository context\n\n")
	sb.WriteString(repoContext)
	sb.WriteString("\n\n")
	sb.WriteString(instructionBlock)
	sb.WriteString("\n")

	return sb.String(), nil
}

// IsComplete reports whether an invocation signals completion: the structured
// field wins, the literal marker in the result text is the fallback. Exact
// containment only; near-misses do not count.
func IsComplete(done bool, result string) bool {
	if done {
		return true
	}
	return strings.Contains(result, CompletionMarker)
}
