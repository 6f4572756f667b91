// Package errs provides structured build errors for the CLI layer. A
// BuildError carries what went wrong, why, and how to fix it, plus the
// process exit code that should be used when it reaches main() with
// bail=true.
//
// Per-module recoverable errors never go through this package: they stay
// as module.LogEntry values attached to the offending Module. BuildError
// is only for failures that abort the whole process (bad config, fatal
// I/O, a bail-triggered build error reaching the CLI).
package errs

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for jspack's CLI.
const (
	ExitSuccess = 0
	ExitConfig  = 1
	ExitBuild   = 2
	ExitWatch   = 3
	ExitPlugin  = 4
	ExitIO      = 5
	ExitInternal = 10
)

// BuildError is a structured, user-facing error.
type BuildError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int
	Err      error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BuildError) Unwrap() error { return e.Err }

// NewConfigError reports a bad or missing jspack.yaml/jspack.json.
func NewConfigError(msg, cause, fix string, err error) *BuildError {
	return &BuildError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitConfig, Err: err}
}

// NewBuildError reports a bail-triggered build failure reaching the CLI
// from Driver.Build.
func NewBuildError(msg, cause, fix string, err error) *BuildError {
	return &BuildError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitBuild, Err: err}
}

// NewWatchError reports a watcher setup failure (e.g. fsnotify couldn't
// register a directory).
func NewWatchError(msg, cause, fix string, err error) *BuildError {
	return &BuildError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitWatch, Err: err}
}

// NewPluginError reports a plugin install/resolve failure that the CLI
// decided to treat as fatal rather than degrading to a skip warning.
func NewPluginError(msg, cause, fix string, err error) *BuildError {
	return &BuildError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitPlugin, Err: err}
}

// NewIOError reports a filesystem failure outside the module graph (e.g.
// cannot create outDir).
func NewIOError(msg, cause, fix string, err error) *BuildError {
	return &BuildError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitIO, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for terminal display, honoring NO_COLOR.
func (e *BuildError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// JSON is the machine-readable form of a BuildError.
type JSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e *BuildError) ToJSON() JSON {
	return JSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// Fatal prints err and exits with its exit code, or ExitInternal for any
// other error type. Never returns.
func Fatal(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	if be, ok := err.(*BuildError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(be.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, be.Format(false))
		}
		os.Exit(be.ExitCode)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
