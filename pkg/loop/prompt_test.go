package loop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsComplete(t *testing.T) {
	cases := []struct {
		name   string
		done   bool
		result string
		want   bool
	}{
		{"structured field", true, "no marker here", true},
		{"marker alone", false, "<DONE/>", true},
		{"marker at start", false, "<DONE/> all finished", true},
		{"marker in middle", false, "work complete <DONE/> see summary", true},
		{"marker at end", false, "everything is built <DONE/>", true},
		{"near miss missing slash", false, "<DONE>", false},
		{"near miss lowercase", false, "<done/>", false},
		{"plain text", false, "still working on the tests", false},
		{"empty", false, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsComplete(tc.done, tc.result); got != tc.want {
				t.Errorf("IsComplete(%v, %q) = %v, want %v", tc.done, tc.result, got, tc.want)
			}
		})
	}
}

func TestComposePromptLabelsStrategies(t *testing.T) {
	td := t.TempDir()
	s1 := filepath.Join(td, "healthcheck.md")
	s2 := filepath.Join(td, "cleanup.md")
	os.WriteFile(s1, []byte("add a health endpoint"), 0644)
	os.WriteFile(s2, []byte("remove dead code"), 0644)

	prompt, err := ComposePrompt([]string{s1, s2}, "tree listing here")
	if err != nil {
		t.Fatalf("ComposePrompt failed: %v", err)
	}

	if !strings.Contains(prompt, "## Strategy: healthcheck.md") {
		t.Error("first strategy not labeled with source name")
	}
	if !strings.Contains(prompt, "## Strategy: cleanup.md") {
		t.Error("second strategy not labeled with source name")
	}
	if !strings.Contains(prompt, "tree listing here") {
		t.Error("repository context missing")
	}
	if !strings.Contains(prompt, CompletionMarker) {
		t.Error("instruction block must name the completion marker")
	}
	// Strategies come before context, context before instructions
	si := strings.Index(prompt, "healthcheck.md")
	ci := strings.Index(prompt, "tree listing here")
	ii := strings.Index(prompt, "## Instructions")
	if !(si < ci && ci < ii) {
		t.Errorf("section order wrong: strategy=%d context=%d instructions=%d", si, ci, ii)
	}
}

func TestComposePromptMissingStrategy(t *testing.T) {
	_, err := ComposePrompt([]string{filepath.Join(t.TempDir(), "missing.md")}, "ctx")
	if err == nil {
		t.Fatal("expected error for missing strategy document")
	}
}
