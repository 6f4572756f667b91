package common

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// exportsNode is one node of a package.json "exports" tree. It is either a
// leaf path string or a map keyed by subpath ("./foo") or condition
// ("import", "require", "default", ...) — package.json doesn't distinguish
// the two syntactically, so resolution has to sniff the key shapes.
type exportsNode struct {
	path     string
	children map[string]*exportsNode
}

func (n *exportsNode) UnmarshalJSON(data []byte) error {
	var leaf string
	if err := json.Unmarshal(data, &leaf); err == nil {
		n.path = leaf
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.children = make(map[string]*exportsNode, len(raw))
	for k, v := range raw {
		child := &exportsNode{}
		if err := json.Unmarshal(v, child); err != nil {
			return err
		}
		n.children[k] = child
	}
	return nil
}

// pkgManifest is the subset of package.json ModuleResolvePlugin needs to
// resolve a bare specifier's subpath down to a concrete file.
type pkgManifest struct {
	Exports *exportsNode `json:"exports"`
	Module  string       `json:"module"`
	Main    string       `json:"main"`
}

// resolvePackageEntry resolves subpath ("." for the package root, "./foo"
// for a deep import) against pkgDir/package.json, trying the exports field
// before falling back to module/main for the root subpath. Returns "" if
// nothing in the manifest resolves to a file that actually exists, letting
// the caller fall through to esbuild's own resolver.
func resolvePackageEntry(pkgDir, subpath, platform string) string {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg pkgManifest
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}

	if pkg.Exports != nil {
		if rel := matchExports(pkg.Exports, subpath, platform); rel != "" {
			if resolved := filepath.Join(pkgDir, rel); fileExists(resolved) {
				return resolved
			}
		}
	}

	if subpath == "." {
		for _, candidate := range []string{pkg.Module, pkg.Main} {
			if candidate == "" {
				continue
			}
			if resolved := filepath.Join(pkgDir, candidate); fileExists(resolved) {
				return resolved
			}
		}
	}

	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// matchExports walks a package's exports tree for subpath, which is either
// the literal string exports entry, a subpath map ("." / "./foo" keys), or
// a bare condition object applying to the root subpath only.
func matchExports(node *exportsNode, subpath, platform string) string {
	if node.path != "" {
		if subpath == "." {
			return node.path
		}
		return ""
	}
	if node.children == nil {
		return ""
	}

	isSubpathMap := false
	for key := range node.children {
		if strings.HasPrefix(key, ".") {
			isSubpathMap = true
			break
		}
	}

	if isSubpathMap {
		if entry, ok := node.children[subpath]; ok {
			return resolveCondition(entry, platform)
		}
		return ""
	}

	if subpath == "." {
		return resolveCondition(node, platform)
	}
	return ""
}

// resolveCondition resolves a condition object down to a leaf path,
// preferring platform-specific conditions in the order Node/bundlers
// conventionally check them.
func resolveCondition(node *exportsNode, platform string) string {
	if node.path != "" {
		return node.path
	}
	if node.children == nil {
		return ""
	}

	var order []string
	if platform == "node" {
		order = []string{"node", "module", "import", "require", "default"}
	} else {
		order = []string{"browser", "module", "import", "default"}
	}

	for _, key := range order {
		if entry, ok := node.children[key]; ok {
			if resolved := resolveCondition(entry, platform); resolved != "" {
				return resolved
			}
		}
	}
	return ""
}
