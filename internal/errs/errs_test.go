package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildErrorMessageWrapsUnderlyingErr(t *testing.T) {
	underlying := errors.New("disk full")
	e := NewIOError("cannot write dist/main.js", "", "", underlying)
	if got := e.Error(); !strings.Contains(got, "disk full") {
		t.Fatalf("Error() = %q, want it to mention the underlying error", got)
	}
	if !errors.Is(e, underlying) {
		t.Fatalf("errors.Is(e, underlying) = false, want true via Unwrap")
	}
}

func TestFormatOmitsEmptyCauseAndFix(t *testing.T) {
	e := NewConfigError("missing jspack.yaml", "", "", nil)
	out := e.Format(true)
	if strings.Contains(out, "Cause:") || strings.Contains(out, "Fix:") {
		t.Fatalf("Format() = %q, want no Cause/Fix lines for empty fields", out)
	}
	if !strings.Contains(out, "missing jspack.yaml") {
		t.Fatalf("Format() = %q, want message present", out)
	}
}

func TestToJSONExitCodes(t *testing.T) {
	cases := []struct {
		err  *BuildError
		want int
	}{
		{NewConfigError("x", "", "", nil), ExitConfig},
		{NewBuildError("x", "", "", nil), ExitBuild},
		{NewWatchError("x", "", "", nil), ExitWatch},
		{NewPluginError("x", "", "", nil), ExitPlugin},
		{NewIOError("x", "", "", nil), ExitIO},
	}
	for _, c := range cases {
		if got := c.err.ToJSON().ExitCode; got != c.want {
			t.Errorf("ExitCode = %d, want %d", got, c.want)
		}
	}
}
