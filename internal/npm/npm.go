// Package npm generates Please `npm_module` BUILD files from a
// `package-lock.json`, using the buildtools AST builder rather than
// hand-built BUILD-file strings. It is independent of, but lives
// alongside, the bundler core.
package npm

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// packageLock is the top-level shape of package-lock.json (v2 or v3).
type packageLock struct {
	LockfileVersion int                    `json:"lockfileVersion"`
	Packages        map[string]packageInfo `json:"packages"`
}

type peerDepMeta struct {
	Optional bool `json:"optional"`
}

type packageInfo struct {
	Version              string                 `json:"version"`
	Resolved             string                 `json:"resolved"`
	Integrity            string                 `json:"integrity"`
	Dependencies         map[string]string      `json:"dependencies"`
	PeerDependencies     map[string]string      `json:"peerDependencies"`
	PeerDependenciesMeta map[string]peerDepMeta `json:"peerDependenciesMeta"`
	Dev                  bool                   `json:"dev"`
	Optional             bool                   `json:"optional"`
	OS                   []string               `json:"os"`
	CPU                  []string               `json:"cpu"`
}

// parseLockfile reads and validates a package-lock.json file.
func parseLockfile(path string) (*packageLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("npm: reading lockfile: %w", err)
	}
	var lock packageLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("npm: parsing lockfile: %w", err)
	}
	if lock.LockfileVersion != 2 && lock.LockfileVersion != 3 {
		return nil, fmt.Errorf("npm: unsupported lockfile version %d (expected 2 or 3)", lock.LockfileVersion)
	}
	return &lock, nil
}

// ResolvedPackage is the processed form used for BUILD file generation.
type ResolvedPackage struct {
	Name       string
	RealName   string
	Version    string
	Resolved   string
	Deps       []string
	Dev        bool
	NestedDeps map[string]string
}

// TargetName returns the Please target name for this package: the last
// path component for scoped packages (@scope/pkg -> pkg).
func (p ResolvedPackage) TargetName() string { return lastPathComponent(p.Name) }

// EffectivePkgName returns the real npm package name when aliased,
// otherwise Name.
func (p ResolvedPackage) EffectivePkgName() string {
	if p.RealName != "" {
		return p.RealName
	}
	return p.Name
}

// ConflictTarget is an additional npm_module target for a package version
// that conflicts with the top-level version resolved elsewhere in the
// graph.
type ConflictTarget struct {
	Dir        string
	TargetName string
	PkgName    string
	Version    string
	Deps       []string
}

type parentConflict struct {
	ParentName string
	DepName    string
	Version    string
}

const nodeModulesPrefix = "node_modules/"

func extractPackageName(path string) string {
	if !strings.HasPrefix(path, nodeModulesPrefix) {
		return ""
	}
	idx := strings.LastIndex(path, nodeModulesPrefix)
	return path[idx+len(nodeModulesPrefix):]
}

func isNestedPackage(path string) bool {
	return strings.Count(path, nodeModulesPrefix) > 1
}

func extractParentPackagePath(path string) string {
	idx := strings.LastIndex(path, "/"+nodeModulesPrefix)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func extractRealPackageName(resolved string) string {
	const prefix = "https://registry.npmjs.org/"
	if !strings.HasPrefix(resolved, prefix) {
		return ""
	}
	rest := resolved[len(prefix):]
	sepIdx := strings.Index(rest, "/-/")
	if sepIdx < 0 {
		return ""
	}
	return rest[:sepIdx]
}

func lastPathComponent(name string) string {
	if strings.Contains(name, "/") {
		parts := strings.Split(name, "/")
		return parts[len(parts)-1]
	}
	return name
}

// versionedTargetName builds a version-qualified target name, e.g.
// "zod", "4.3.6" -> "zod_v4_3_6".
func versionedTargetName(name, version string) string {
	base := lastPathComponent(name)
	v := strings.NewReplacer(".", "_", "-", "_").Replace(version)
	return fmt.Sprintf("%s_v%s", base, v)
}

// depTarget converts a package name into a subrepo target reference,
// e.g. "react" -> "//react", "@types/react" -> "//@types/react:react".
func depTarget(name string) string {
	if strings.Contains(name, "/") {
		return fmt.Sprintf("//%s:%s", name, lastPathComponent(name))
	}
	return fmt.Sprintf("//%s", name)
}

// collectPackages extracts top-level packages from the lockfile and
// detects version conflicts, promoting nested-only packages to top-level
// and pointing conflicting parents at version-qualified nested_deps
// targets instead.
func collectPackages(pkgs map[string]packageInfo, noDev bool) ([]ResolvedPackage, []ConflictTarget) {
	topLevel := make(map[string]bool)
	topLevelVersions := make(map[string]string)
	for path, info := range pkgs {
		if path == "" || isNestedPackage(path) {
			continue
		}
		name := extractPackageName(path)
		if name == "" {
			continue
		}
		topLevel[name] = true
		topLevelVersions[name] = info.Version
	}

	promoted := make(map[string]string)
	for path := range pkgs {
		if path == "" || !isNestedPackage(path) {
			continue
		}
		name := extractPackageName(path)
		if name == "" || topLevel[name] {
			continue
		}
		if _, already := promoted[name]; already {
			continue
		}
		promoted[name] = path
		topLevel[name] = true
	}

	var conflicts []parentConflict
	conflictVersionInfos := make(map[string]map[string]packageInfo)
	for path, info := range pkgs {
		if path == "" || !isNestedPackage(path) {
			continue
		}
		name := extractPackageName(path)
		if name == "" || promoted[name] == path {
			continue
		}
		topVer, exists := topLevelVersions[name]
		if !exists || info.Version == topVer || info.Resolved == "" {
			continue
		}
		parentName := extractPackageName(extractParentPackagePath(path))
		if parentName == "" {
			continue
		}
		conflicts = append(conflicts, parentConflict{ParentName: parentName, DepName: name, Version: info.Version})
		if conflictVersionInfos[name] == nil {
			conflictVersionInfos[name] = make(map[string]packageInfo)
		}
		conflictVersionInfos[name][info.Version] = info
	}

	parentNestedDeps := make(map[string]map[string]string)
	for _, c := range conflicts {
		if parentNestedDeps[c.ParentName] == nil {
			parentNestedDeps[c.ParentName] = make(map[string]string)
		}
		target := versionedTargetName(c.DepName, c.Version)
		parentNestedDeps[c.ParentName][c.DepName] = fmt.Sprintf("//%s:%s", c.DepName, target)
	}

	var result []ResolvedPackage
	for path, info := range pkgs {
		if path == "" {
			continue
		}
		name := extractPackageName(path)
		if name == "" {
			continue
		}
		if isNestedPackage(path) && promoted[name] != path {
			continue
		}
		if noDev && info.Dev {
			continue
		}
		if info.Resolved == "" {
			continue
		}

		var deps []string
		for dep := range info.Dependencies {
			if topLevel[dep] {
				deps = append(deps, dep)
			}
		}
		for dep := range info.PeerDependencies {
			if meta, ok := info.PeerDependenciesMeta[dep]; ok && meta.Optional {
				continue
			}
			if topLevel[dep] {
				deps = append(deps, dep)
			}
		}
		sort.Strings(deps)

		var realName string
		if rn := extractRealPackageName(info.Resolved); rn != "" && rn != name {
			realName = rn
		}

		pkg := ResolvedPackage{Name: name, RealName: realName, Version: info.Version, Resolved: info.Resolved, Deps: deps, Dev: info.Dev}
		if nd, ok := parentNestedDeps[name]; ok {
			pkg.NestedDeps = nd
		}
		result = append(result, pkg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	var ctargets []ConflictTarget
	seen := make(map[string]bool)
	for _, c := range conflicts {
		key := c.DepName + "@" + c.Version
		if seen[key] {
			continue
		}
		seen[key] = true
		info := conflictVersionInfos[c.DepName][c.Version]
		var deps []string
		for dep := range info.Dependencies {
			if topLevel[dep] {
				deps = append(deps, dep)
			}
		}
		sort.Strings(deps)
		ctargets = append(ctargets, ConflictTarget{
			Dir: c.DepName, TargetName: versionedTargetName(c.DepName, c.Version),
			PkgName: c.DepName, Version: c.Version, Deps: deps,
		})
	}
	sort.Slice(ctargets, func(i, j int) bool {
		if ctargets[i].Dir != ctargets[j].Dir {
			return ctargets[i].Dir < ctargets[j].Dir
		}
		return ctargets[i].TargetName < ctargets[j].TargetName
	})

	return result, ctargets
}

func extractTargetName(label string) string {
	if idx := strings.LastIndex(label, ":"); idx >= 0 {
		return label[idx+1:]
	}
	return lastPathComponent(strings.TrimPrefix(label, "//"))
}

// breakCycles detects and removes back-edges in the combined
// package+conflict-target dependency graph via DFS, so the resulting
// deps are a DAG (Please's npm_module graph cannot have cycles).
func breakCycles(packages []ResolvedPackage, ctargets []ConflictTarget) {
	adj := make(map[string][]string)
	nestedEdgeKey := make(map[string]map[string]string)

	for _, pkg := range packages {
		var edges []string
		edges = append(edges, pkg.Deps...)
		for importName, label := range pkg.NestedDeps {
			target := extractTargetName(label)
			edges = append(edges, target)
			if nestedEdgeKey[pkg.Name] == nil {
				nestedEdgeKey[pkg.Name] = make(map[string]string)
			}
			nestedEdgeKey[pkg.Name][target] = importName
		}
		adj[pkg.Name] = edges
	}
	for _, ct := range ctargets {
		adj[ct.TargetName] = append([]string(nil), ct.Deps...)
	}

	allNodes := make([]string, 0, len(adj))
	for key := range adj {
		allNodes = append(allNodes, key)
	}
	sort.Strings(allNodes)

	color := make(map[string]int, len(allNodes))
	var dfs func(name string)
	dfs = func(name string) {
		color[name] = 1
		var kept []string
		for _, dep := range adj[name] {
			if _, inGraph := adj[dep]; !inGraph {
				kept = append(kept, dep)
				continue
			}
			if color[dep] == 1 {
				log.Printf("npm: breaking circular dependency: %s -> %s", name, dep)
				continue
			}
			kept = append(kept, dep)
			if color[dep] == 0 {
				dfs(dep)
			}
		}
		adj[name] = kept
		color[name] = 2
	}
	for _, node := range allNodes {
		if color[node] == 0 {
			dfs(node)
		}
	}

	for i, pkg := range packages {
		var deps []string
		var nestedDeps map[string]string
		for _, edge := range adj[pkg.Name] {
			if importName, ok := nestedEdgeKey[pkg.Name][edge]; ok {
				if nestedDeps == nil {
					nestedDeps = make(map[string]string)
				}
				nestedDeps[importName] = pkg.NestedDeps[importName]
			} else {
				deps = append(deps, edge)
			}
		}
		packages[i].Deps = deps
		packages[i].NestedDeps = nestedDeps
	}
	for i := range ctargets {
		ctargets[i].Deps = append([]string(nil), adj[ctargets[i].TargetName]...)
	}
}

// Options configures one Resolve run.
type Options struct {
	Lockfile       string
	Out            string
	NoDev          bool
	SubincludePath string
}

// Result summarizes what Resolve wrote.
type Result struct {
	Packages        int
	ConflictTargets int
}

// Resolve reads Options.Lockfile and writes one BUILD file per top-level
// npm package (plus version-qualified conflict targets appended to the
// owning package's BUILD file) under Options.Out, mirroring please_js's
// `resolve` command.
func Resolve(opts Options) (Result, error) {
	lock, err := parseLockfile(opts.Lockfile)
	if err != nil {
		return Result{}, err
	}

	packages, ctargets := collectPackages(lock.Packages, opts.NoDev)
	breakCycles(packages, ctargets)

	if err := os.MkdirAll(opts.Out, 0o755); err != nil {
		return Result{}, fmt.Errorf("npm: creating output dir: %w", err)
	}
	if err := writePlzConfig(opts.Out); err != nil {
		return Result{}, err
	}
	for _, pkg := range packages {
		if err := writeBuildFile(opts.Out, pkg, opts.SubincludePath); err != nil {
			return Result{}, fmt.Errorf("npm: writing BUILD for %s: %w", pkg.Name, err)
		}
	}
	for _, ct := range ctargets {
		if err := appendConflictTarget(opts.Out, ct); err != nil {
			return Result{}, fmt.Errorf("npm: writing conflict target %s: %w", ct.TargetName, err)
		}
	}

	return Result{Packages: len(packages), ConflictTargets: len(ctargets)}, nil
}
