// Package repo gathers fresh repository context for each controller
// iteration and wraps the git operations the controller needs.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	commitHistoryDepth = 15
	fileTreeMaxDepth   = 3
)

// Directories that never carry useful agent context.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

// GatherContext collects the repository context for one iteration. It reads
// everything from scratch on every call so each iteration sees the current
// tree, including changes made by the previous iteration.
func GatherContext(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("repository path %s is not a directory", dir)
	}

	var sb strings.Builder

	// Optional top-level specification
	if data, err := os.ReadFile(filepath.Join(dir, "spec.md")); err == nil {
		sb.WriteString("## Specification (spec.md)\n\n")
		sb.Write(data)
		sb.WriteString("\n\n")
	}

	// Optional docs/ folder, text and markdown only
	if docs := gatherDocs(filepath.Join(dir, "docs")); docs != "" {
		sb.WriteString("## Documentation (docs/)\n\n")
		sb.WriteString(docs)
		sb.WriteString("\n")
	}

	// Recent history; absent or commitless repos are not fatal
	if commits, err := RecentCommits(dir, commitHistoryDepth); err == nil && len(commits) > 0 {
		sb.WriteString("## Recent commits\n\n")
		for _, c := range commits {
			sb.WriteString(c)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## File tree\n\n")
	sb.WriteString(fileTree(dir))

	return sb.String(), nil
}

func gatherDocs(docsDir string) string {
	var sb strings.Builder
	filepath.WalkDir(docsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // docs/ is optional
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != docsDir {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(filepath.Dir(docsDir), path)
		sb.WriteString(fmt.Sprintf("### %s\n\n", rel))
		sb.Write(data)
		sb.WriteString("\n\n")
		return nil
	})
	return sb.String()
}

// fileTree lists entries down to a bounded depth, excluding hidden entries
// and build/dependency directories.
func fileTree(root string) string {
	var sb strings.Builder
	walkTree(&sb, root, "", 0)
	return sb.String()
}

func walkTree(sb *strings.Builder, dir, prefix string, depth int) {
	if depth >= fileTreeMaxDepth {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || excludedDirs[name] {
			continue
		}
		if e.IsDir() {
			sb.WriteString(prefix + name + "/\n")
			walkTree(sb, filepath.Join(dir, name), prefix+"  ", depth+1)
		} else {
			sb.WriteString(prefix + name + "\n")
		}
	}
}
