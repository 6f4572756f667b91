package npm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testLockfile = `{
  "lockfileVersion": 3,
  "packages": {
    "": {"name": "root"},
    "node_modules/react": {
      "version": "18.2.0",
      "resolved": "https://registry.npmjs.org/react/-/react-18.2.0.tgz",
      "dependencies": {"loose-envify": "^1.1.0"}
    },
    "node_modules/loose-envify": {
      "version": "1.4.0",
      "resolved": "https://registry.npmjs.org/loose-envify/-/loose-envify-1.4.0.tgz",
      "dependencies": {"js-tokens": "^4.0.0"}
    },
    "node_modules/js-tokens": {
      "version": "4.0.0",
      "resolved": "https://registry.npmjs.org/js-tokens/-/js-tokens-4.0.0.tgz"
    },
    "node_modules/typescript": {
      "version": "5.3.3",
      "resolved": "https://registry.npmjs.org/typescript/-/typescript-5.3.3.tgz",
      "dev": true
    }
  }
}`

func writeLockfile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "package-lock.json")
	if err := os.WriteFile(path, []byte(testLockfile), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestResolveGeneratesBuildFilePerPackage(t *testing.T) {
	dir := t.TempDir()
	lockfile := writeLockfile(t, dir)
	out := filepath.Join(dir, "npm_modules")

	result, err := Resolve(Options{Lockfile: lockfile, Out: out, SubincludePath: "//build_defs:npm.build_defs"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Packages != 4 {
		t.Fatalf("Packages = %d, want 4", result.Packages)
	}

	data, err := os.ReadFile(filepath.Join(out, "react", "BUILD"))
	if err != nil {
		t.Fatalf("reading react BUILD: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `name = "react"`) {
		t.Errorf("BUILD missing name = react: %s", content)
	}
	if !strings.Contains(content, `version = "18.2.0"`) {
		t.Errorf("BUILD missing version: %s", content)
	}
	if !strings.Contains(content, "//loose-envify") {
		t.Errorf("BUILD missing dep on loose-envify: %s", content)
	}
}

func TestResolveMarksDevPackage(t *testing.T) {
	dir := t.TempDir()
	lockfile := writeLockfile(t, dir)
	out := filepath.Join(dir, "npm_modules")

	if _, err := Resolve(Options{Lockfile: lockfile, Out: out, SubincludePath: "//x"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "typescript", "BUILD"))
	if err != nil {
		t.Fatalf("reading typescript BUILD: %v", err)
	}
	if !strings.Contains(string(data), `"npm:dev"`) {
		t.Errorf("expected npm:dev label, got %s", data)
	}
}

func TestResolveNoDevExcludesDevPackages(t *testing.T) {
	dir := t.TempDir()
	lockfile := writeLockfile(t, dir)
	out := filepath.Join(dir, "npm_modules")

	result, err := Resolve(Options{Lockfile: lockfile, Out: out, NoDev: true, SubincludePath: "//x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Packages != 3 {
		t.Fatalf("Packages = %d, want 3 (typescript excluded)", result.Packages)
	}
	if _, err := os.Stat(filepath.Join(out, "typescript", "BUILD")); !os.IsNotExist(err) {
		t.Errorf("expected no typescript BUILD file, stat err = %v", err)
	}
}

func TestResolveRejectsUnsupportedLockfileVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package-lock.json")
	if err := os.WriteFile(path, []byte(`{"lockfileVersion": 1, "packages": {}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Resolve(Options{Lockfile: path, Out: filepath.Join(dir, "out")})
	if err == nil {
		t.Fatal("expected error for unsupported lockfile version")
	}
}

func TestVersionedTargetNameSanitizesVersion(t *testing.T) {
	if got := versionedTargetName("zod", "4.3.6"); got != "zod_v4_3_6" {
		t.Errorf("got %q, want zod_v4_3_6", got)
	}
	if got := versionedTargetName("@types/react", "17.0.0-beta"); got != "react_v17_0_0_beta" {
		t.Errorf("got %q, want react_v17_0_0_beta", got)
	}
}

func TestDepTargetHandlesScopedPackages(t *testing.T) {
	if got := depTarget("react"); got != "//react" {
		t.Errorf("got %q, want //react", got)
	}
	if got := depTarget("@types/react"); got != "//@types/react:react" {
		t.Errorf("got %q, want //@types/react:react", got)
	}
}

func TestBreakCyclesRemovesBackEdge(t *testing.T) {
	packages := []ResolvedPackage{
		{Name: "a", Deps: []string{"b"}},
		{Name: "b", Deps: []string{"a"}},
	}
	breakCycles(packages, nil)

	total := len(packages[0].Deps) + len(packages[1].Deps)
	if total != 1 {
		t.Fatalf("expected exactly one edge to survive cycle-breaking, got %d", total)
	}
}
