package npm

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/please-build/buildtools/build"
)

// writePlzConfig writes the .plzconfig declaring the JS plugin for the
// generated subrepo, matching please_js/resolve's own fixed content.
func writePlzConfig(outDir string) error {
	content := "[Plugin \"js\"]\nTarget=@//plugins:js\n"
	return os.WriteFile(filepath.Join(outDir, ".plzconfig"), []byte(content), 0o644)
}

// writeBuildFile generates one BUILD file for a top-level npm package
// using the buildtools AST, so formatting matches `plz fmt` exactly
// (ported from please_js/resolve/write.go).
func writeBuildFile(outDir string, pkg ResolvedPackage, subincludePath string) error {
	pkgDir := filepath.Join(outDir, pkg.Name)
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return err
	}

	f := &build.File{Path: filepath.Join(pkgDir, "BUILD"), Type: build.TypeBuild}
	f.Stmt = append(f.Stmt, &build.CallExpr{
		X:    &build.Ident{Name: "subinclude"},
		List: []build.Expr{&build.StringExpr{Value: subincludePath}},
	})

	call := &build.CallExpr{X: &build.Ident{Name: "npm_module"}, ForceMultiLine: true}
	targetName := pkg.TargetName()
	addStringArg(call, "name", targetName)

	pkgName := pkg.EffectivePkgName()
	if targetName != pkgName || pkg.RealName != "" {
		addStringArg(call, "pkg_name", pkgName)
	}
	addStringArg(call, "version", pkg.Version)

	if len(pkg.Deps) > 0 {
		depTargets := make([]string, len(pkg.Deps))
		for i, dep := range pkg.Deps {
			depTargets[i] = depTarget(dep)
		}
		addListArg(call, "deps", depTargets)
	}
	if len(pkg.NestedDeps) > 0 {
		addDictArg(call, "nested_deps", pkg.NestedDeps)
	}
	if pkg.Dev {
		addListArg(call, "labels", []string{"npm:dev"})
	}
	addListArg(call, "visibility", []string{"PUBLIC"})

	f.Stmt = append(f.Stmt, call)
	return os.WriteFile(f.Path, build.Format(f), 0o644)
}

// appendConflictTarget appends a version-qualified npm_module target to
// an existing BUILD file: a dependency resolved at two different versions
// gets a second, nested_deps-referenced target alongside the top-level
// one.
func appendConflictTarget(outDir string, ct ConflictTarget) error {
	buildPath := filepath.Join(outDir, ct.Dir, "BUILD")
	data, err := os.ReadFile(buildPath)
	if err != nil {
		return err
	}
	f, err := build.ParseBuild(buildPath, data)
	if err != nil {
		return err
	}

	call := &build.CallExpr{X: &build.Ident{Name: "npm_module"}, ForceMultiLine: true}
	addStringArg(call, "name", ct.TargetName)
	addStringArg(call, "pkg_name", ct.PkgName)
	addStringArg(call, "version", ct.Version)
	if len(ct.Deps) > 0 {
		depTargets := make([]string, len(ct.Deps))
		for i, dep := range ct.Deps {
			depTargets[i] = depTarget(dep)
		}
		addListArg(call, "deps", depTargets)
	}
	addListArg(call, "visibility", []string{"PUBLIC"})

	f.Stmt = append(f.Stmt, call)
	return os.WriteFile(buildPath, build.Format(f), 0o644)
}

func addStringArg(call *build.CallExpr, name, value string) {
	call.List = append(call.List, &build.AssignExpr{
		LHS: &build.Ident{Name: name}, Op: "=", RHS: &build.StringExpr{Value: value},
	})
}

func addListArg(call *build.CallExpr, name string, values []string) {
	if len(values) == 0 {
		return
	}
	exprs := make([]build.Expr, len(values))
	for i, v := range values {
		exprs[i] = &build.StringExpr{Value: v}
	}
	call.List = append(call.List, &build.AssignExpr{
		LHS: &build.Ident{Name: name}, Op: "=",
		RHS: &build.ListExpr{List: exprs, ForceMultiLine: len(values) > 1},
	})
}

func addDictArg(call *build.CallExpr, name string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]*build.KeyValueExpr, len(keys))
	for i, k := range keys {
		entries[i] = &build.KeyValueExpr{Key: &build.StringExpr{Value: k}, Value: &build.StringExpr{Value: m[k]}}
	}
	call.List = append(call.List, &build.AssignExpr{
		LHS: &build.Ident{Name: name}, Op: "=",
		RHS: &build.DictExpr{List: entries, ForceMultiLine: len(entries) > 1},
	})
}
