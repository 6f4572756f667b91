package npm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// workspaceFile is the shape of a pnpm-workspace.yaml, parsed the same
// way bennypowers-cem/workspace.LoadWorkspaceConfig reads its own
// cem.yaml directly with yaml.v3 rather than through viper: this file is
// discovered ahead of any single project's config, so there is no
// project root yet to bind a viper instance to.
type workspaceFile struct {
	Packages []string `yaml:"packages"`
}

// DiscoverLockfiles reads a pnpm-workspace.yaml at workspaceFilePath and
// returns the package-lock.json path for every package directory its
// glob patterns match, so `resolve --workspace` can regenerate BUILD
// files for an entire monorepo in one invocation instead of one lockfile
// at a time.
func DiscoverLockfiles(workspaceFilePath string) ([]string, error) {
	data, err := os.ReadFile(workspaceFilePath)
	if err != nil {
		return nil, fmt.Errorf("npm: reading workspace file: %w", err)
	}
	var wf workspaceFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("npm: parsing workspace file: %w", err)
	}

	root := filepath.Dir(workspaceFilePath)
	seen := make(map[string]bool)
	var lockfiles []string
	for _, pattern := range wf.Packages {
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return nil, fmt.Errorf("npm: invalid workspace pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			candidate := filepath.Join(root, m, "package-lock.json")
			if seen[candidate] {
				continue
			}
			if _, err := os.Stat(candidate); err == nil {
				seen[candidate] = true
				lockfiles = append(lockfiles, candidate)
			}
		}
	}
	return lockfiles, nil
}
