// Package pipeline implements the processor chain:
// an ordered linked list of match-conditioned transform stages applied to a
// Module. Lazy plugin resolution, the outPath template language, and
// opt-in parallel execution on a worker pool all live here.
package pipeline

import (
	"context"
	"fmt"

	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/module"
)

// ReadMode controls whether a node populates Module.Data from disk before
// invoking its Processor.
type ReadMode int

const (
	ReadNone ReadMode = iota
	ReadText
	ReadBinary
)

// Processor transforms a module in place. Options is the rule's
// user-supplied options object; Builder gives access to the few
// driver-owned services a processor may need (file reads, plugin
// resolution, the build hash).
type Processor interface {
	Process(ctx context.Context, m *module.Module, options map[string]any, b Builder) error
}

// ProcessorFunc adapts a plain function to a Processor.
type ProcessorFunc func(ctx context.Context, m *module.Module, options map[string]any, b Builder) error

func (f ProcessorFunc) Process(ctx context.Context, m *module.Module, options map[string]any, b Builder) error {
	return f(ctx, m, options, b)
}

// ParallelCapable is implemented by processors that declare themselves safe
// to run on the worker pool. The options object shipped across the
// boundary must be structured-cloneable; this port represents that
// constraint by requiring Options to return a plain map[string]any (no
// closures, channels, or Builder references).
type ParallelCapable interface {
	Processor
	Parallel() bool
}

// Builder is the subset of driver services a processor or its lazy loader
// may call back into.
type Builder interface {
	ReadFile(path string) ([]byte, error)
	BuildHash() uint64
	Version() string
	ResolvePlugin(ref string) (Processor, error)
}

// Node is one link in the processor chain.
type Node struct {
	Name     string
	Match    match.Matcher
	OutPath  string
	Read     ReadMode
	Break    bool
	Parallel bool

	// Ref, if set, is a lazy plugin reference resolved through
	// Builder.ResolvePlugin on first match. Processor, if set, is used
	// directly.
	Ref       string
	Processor Processor
	Options   map[string]any

	NextTrue  *Node
	NextFalse *Node

	resolveErr error
}

// Chain is a processor chain rooted at Root. A nil Root is a no-op chain.
type Chain struct {
	Root *Node
}

// Run walks the chain starting at Root, matching against the module's
// current path (not OriginalPath) at each node. It returns early, without
// error, if the chain aborts because the module's state diverged from
// the state observed when Run started (another phase took over).
func (c *Chain) Run(ctx context.Context, m *module.Module, b Builder) error {
	if c == nil || c.Root == nil {
		return nil
	}
	startState := m.GetState()
	node := c.Root
	for node != nil {
		if m.GetState() != startState {
			return nil // aborted: another phase took over
		}
		if !node.Match.Match(m.Path) {
			node = node.NextFalse
			continue
		}

		proc, err := resolveProcessor(node, b)
		if err != nil {
			m.AddLog(module.LogEntry{
				Severity: module.SeverityError,
				Source:   nodeName(node),
				Message:  fmt.Sprintf("processor unavailable, skipped: %v", err),
			})
			node = node.NextTrue
			continue
		}

		if node.Read != ReadNone {
			if err := readModuleData(m, node.Read, b); err != nil {
				m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: nodeName(node), Message: err.Error()})
				return err
			}
		}

		if err := proc.Process(ctx, m, node.Options, b); err != nil {
			m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: nodeName(node), Message: err.Error()})
			return err
		}

		if node.OutPath != "" {
			out, err := ExpandOutPath(node.OutPath, m, b)
			if err != nil {
				m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: nodeName(node), Message: err.Error()})
				return err
			}
			m.Path = out
		}

		if node.Break {
			return nil
		}
		node = node.NextTrue
	}
	return nil
}

func nodeName(n *Node) string {
	if n.Name != "" {
		return n.Name
	}
	if n.Ref != "" {
		return n.Ref
	}
	return "processor"
}

// resolveProcessor returns the node's bound processor, resolving a lazy
// Ref exactly once and remembering a failure so every subsequent module
// that would have used it gets the same "skipped" treatment instead of
// retrying a construction that is known to fail.
func resolveProcessor(n *Node, b Builder) (Processor, error) {
	if n.Processor != nil {
		return n.Processor, nil
	}
	if n.resolveErr != nil {
		return nil, n.resolveErr
	}
	if n.Ref == "" {
		n.resolveErr = fmt.Errorf("processor node has neither Processor nor Ref")
		return nil, n.resolveErr
	}
	proc, err := b.ResolvePlugin(n.Ref)
	if err != nil {
		n.resolveErr = err
		return nil, err
	}
	n.Processor = proc
	return proc, nil
}

func readModuleData(m *module.Module, mode ReadMode, b Builder) error {
	if m.HasData() {
		return nil
	}
	bytes, err := b.ReadFile(m.Path)
	if err != nil {
		return err
	}
	if mode == ReadText {
		m.SetData(module.Data{Kind: module.DataText, Text: string(bytes)}, nil, nil)
	} else {
		m.SetData(module.Data{Kind: module.DataBinary, Bytes: bytes}, nil, nil)
	}
	return nil
}
