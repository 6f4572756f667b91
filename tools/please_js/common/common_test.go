package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
)

func TestLoadersCoversCommonExtensions(t *testing.T) {
	cases := map[string]api.Loader{
		".ts":  api.LoaderTS,
		".tsx": api.LoaderTSX,
		".jsx": api.LoaderJSX,
		".css": api.LoaderCSS,
		".svg": api.LoaderFile,
	}
	for ext, want := range cases {
		if got := Loaders[ext]; got != want {
			t.Errorf("Loaders[%q] = %v, want %v", ext, got, want)
		}
	}
}

func TestParseDefinesSplitsOnFirstEquals(t *testing.T) {
	got := ParseDefines([]string{"FOO=bar", "BAZ=a=b", "malformed"})
	if got["FOO"] != "bar" {
		t.Errorf("FOO = %q, want bar", got["FOO"])
	}
	if got["BAZ"] != "a=b" {
		t.Errorf("BAZ = %q, want a=b", got["BAZ"])
	}
	if _, ok := got["malformed"]; ok {
		t.Error("expected entries without '=' to be skipped")
	}
}

func TestParseModuleConfigMissingFileIsEmptyNotError(t *testing.T) {
	got, err := ParseModuleConfig(filepath.Join(t.TempDir(), "nope.txt"))
	if err != nil {
		t.Fatalf("ParseModuleConfig: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestParseModuleConfigParsesAssignments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moduleconfig.txt")
	content := "# comment\nreact=/abs/react\n\nloose-envify=/abs/loose-envify\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ParseModuleConfig(path)
	if err != nil {
		t.Fatalf("ParseModuleConfig: %v", err)
	}
	if got["react"] != "/abs/react" || got["loose-envify"] != "/abs/loose-envify" {
		t.Errorf("got %v", got)
	}
}

func TestMergeEnvDefinesDoesNotOverwriteUserKeys(t *testing.T) {
	define := map[string]string{"process.env.NODE_ENV": `"custom"`}
	MergeEnvDefines(define, "production")
	if define["process.env.NODE_ENV"] != `"custom"` {
		t.Errorf("user-provided define was overwritten: %v", define)
	}
	if define["import.meta.env.DEV"] != "false" {
		t.Errorf("expected import.meta.env.DEV = false for production mode, got %v", define["import.meta.env.DEV"])
	}
}

func TestParseFormatAndPlatformDefaults(t *testing.T) {
	if ParseFormat("cjs") != api.FormatCommonJS {
		t.Error("expected cjs to map to FormatCommonJS")
	}
	if ParseFormat("unknown") != api.FormatESModule {
		t.Error("expected unrecognised format to default to ESModule")
	}
	if ParsePlatform("node") != api.PlatformNode {
		t.Error("expected node platform")
	}
	if ParsePlatform("") != api.PlatformBrowser {
		t.Error("expected default platform to be browser")
	}
}
