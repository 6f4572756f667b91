// Package external implements external-module extraction: on emit, a
// module that matches a configured rule is written to its own output path
// rather than inlined; anything that doesn't match any rule is inlined as
// a data URI at the call site.
package external

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/gosimple/slug"

	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/module"
)

// Rule is one external-module extraction rule.
type Rule struct {
	Match   match.Matcher
	Exclude match.Matcher
	Type    match.Matcher // MIME-type glob
	MinSize int
	OutPath string
	OutFunc func(m *module.Module) (string, error)
}

func (r Rule) matches(m *module.Module) bool {
	if r.Match != nil && !r.Match.Match(m.Path) {
		return false
	}
	if r.Exclude != nil && r.Exclude.Match(m.Path) {
		return false
	}
	if r.Type != nil && !r.Type.Match(m.Type) {
		return false
	}
	if r.MinSize > 0 && m.Size < r.MinSize {
		return false
	}
	return true
}

// Registry holds an ordered list of rules and the emittedFiles collision
// index: on collision the output path gets -2, -3, ... appended until
// one is free.
type Registry struct {
	rules []Rule

	mu      sync.Mutex
	emitted map[string]*module.Module
}

func NewRegistry(rules []Rule) *Registry {
	return &Registry{rules: rules, emitted: make(map[string]*module.Module)}
}

// Apply runs the extraction policy for m: on the first matching rule, it
// computes a collision-free output path and marks m as externally written;
// if nothing matches, it marks m for inlining via a data URI.
func (r *Registry) Apply(m *module.Module) error {
	for _, rule := range r.rules {
		if !rule.matches(m) {
			continue
		}
		path, err := r.resolveOutPath(rule, m)
		if err != nil {
			return err
		}
		r.mu.Lock()
		path = r.dedupe(path, m)
		r.emitted[path] = m
		r.mu.Unlock()
		m.Path = path
		m.NoWrite = false
		return nil
	}
	m.NoWrite = true
	return nil
}

func (r *Registry) resolveOutPath(rule Rule, m *module.Module) (string, error) {
	if rule.OutFunc != nil {
		return rule.OutFunc(m)
	}
	if rule.OutPath != "" {
		return rule.OutPath, nil
	}
	return slug.Make(m.OriginalPath), nil
}

// dedupe appends -2, -3, ... to path until it either matches m's own prior
// claim or is free.
func (r *Registry) dedupe(path string, m *module.Module) string {
	candidate := path
	for n := 2; ; n++ {
		existing, taken := r.emitted[candidate]
		if !taken || existing == m {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", path, n)
	}
}

// EncodeDataURI inlines content as a data: URI for a module that didn't
// match any extraction rule.
func EncodeDataURI(mimeType string, content []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(content))
}
