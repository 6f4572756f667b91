// Package module implements the build's central value object: the
// Module, its dependency edges, and the table that owns them for the
// lifetime of a builder.
package module

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// DataKind tags the dynamic type carried by Module.Data: a string, raw
// bytes, or a lazy generator.
type DataKind int

const (
	DataNone DataKind = iota
	DataText
	DataBinary
	DataLazy
)

// Generator lazily produces a module's content and source map. It is called
// at most once per module per build; the result is cached on the Module.
type Generator func() (data []byte, sourceMap *SourceMap, err error)

// Data is the tagged variant backing Module.Data.
type Data struct {
	Kind      DataKind
	Text      string
	Bytes     []byte
	Generator Generator
}

// Bytes returns the content as a byte slice regardless of how it was
// populated, forcing the lazy generator if necessary. It does not mutate the
// Data in place; callers that want caching should go through Module.Content.
func (d Data) bytes() ([]byte, error) {
	switch d.Kind {
	case DataText:
		return []byte(d.Text), nil
	case DataBinary:
		return d.Bytes, nil
	case DataLazy:
		b, _, err := d.Generator()
		return b, err
	default:
		return nil, nil
	}
}

// SourceMap is the in-memory source-map v3 representation a Bundler or
// Processor attaches to a Module.
type SourceMap struct {
	File           string
	SourceRoot     string
	Sources        []string
	SourcesContent []string
	Names          []string
	Mappings       string
}

// ReplaceRange is a pending text substitution registered during
// Bundler.Parse and applied during Bundler.Generate.
type ReplaceRange struct {
	Start, End int
	Dep        *Dependency
	Rewrite    func(dep *Dependency) (string, error)
}

// Dependency is a directed edge recorded by a Bundler during Parse.
type Dependency struct {
	URL        string
	Pathname   string
	Search     string
	Query      url.Values
	Index      int
	EndIndex   int
	Type       string // "import", "url", "include", ...
	Dynamic    bool
	Inline     bool
	SkipResolve bool // set when the noCheckQuery reserved param was present

	ResolvedPath string
	ResolvedFile *Module
	Circular     bool
}

// LogEntry is one diagnostic attached to a Module.
type LogEntry struct {
	Severity   Severity
	Source     string
	Message    string
	FileName   string
	Index      int
	EndIndex   int
	Line       int
	Column     int
	EndLine    int
	EndColumn  int
	Content    string
	CodeFrame  string

	// OriginalLocation is populated when this log's offsets were rebased
	// through a sub-file/transform chain back to the original source
	// file.
	OriginalLocation *Location
}

// Location identifies a position in a specific file.
type Location struct {
	File   string
	Line   int
	Column int
}

// Severity classifies a LogEntry.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Module is the mutable value object the build driver tracks one of per
// OriginalPath.
type Module struct {
	mu sync.Mutex

	OriginalPath string
	IsExternal   bool

	Path  string
	State State

	data    Data
	hasData bool

	Type string // MIME type
	ext  string

	SourceMapEnabled bool
	sourceMap        *SourceMap

	Bundler any // the bundle.Bundler the driver bound to this module's extension at load; typed loosely to avoid an import cycle

	Dependencies  []*Dependency
	ReplaceRanges []ReplaceRange
	Siblings      []*Module

	// Sub-file back-pointer and parent snapshot.
	SourceFile              *Module
	SourceFileData           []byte
	SourceFileIndex          int
	SourceFileSourceMapData  *SourceMap
	SourceFileRevision       uint64

	Logs  []LogEntry
	Props map[string]any

	Hash string // per-build opaque id, regenerated on reset

	MD5  string
	SHA1 string
	Size int

	// NoWrite marks a generated module that should be inlined rather than
	// written.
	NoWrite bool

	revision uint64
}

// Table owns every Module for one builder instance, keyed by OriginalPath
//. It also owns the per-builder hash counter (design note:
// "port as a per-builder counter so multiple builders can coexist").
type Table struct {
	mu      sync.Mutex
	modules map[string]*Module
	counter uint64
	buildID uint64
}

// NewTable creates an empty module table for one builder.
func NewTable() *Table {
	return &Table{modules: make(map[string]*Module)}
}

// nextHash returns a process-unique, per-table identifier. It is not a
// content hash.
func (t *Table) nextHash() string {
	n := atomic.AddUint64(&t.counter, 1)
	return fmt.Sprintf("%x-%x", t.buildID, n)
}

// NewBuild bumps the table's build identifier, used to seed fresh Hash
// values on the next GetModule/reset so hashes don't collide across builds
// sharing a Table (incremental mode).
func (t *Table) NewBuild(buildHash uint64) {
	t.mu.Lock()
	t.buildID = buildHash
	t.mu.Unlock()
}

// GetModule returns the Module for path, creating it lazily if absent.
func (t *Table) GetModule(path string) *Module {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.modules[path]; ok {
		return m
	}
	m := &Module{
		OriginalPath: path,
		Path:         path,
		State:        Initial,
		ext:          filepath.Ext(path),
		Props:        make(map[string]any),
	}
	m.Hash = t.nextHash()
	t.modules[path] = m
	return m
}

// Lookup returns the Module for path without creating it.
func (t *Table) Lookup(path string) (*Module, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.modules[path]
	return m, ok
}

// Delete removes a module from the table entirely (used when a watcher
// reports a file deletion and no sibling depends on keeping its slot).
func (t *Table) Delete(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.modules, path)
}

// All returns a snapshot of every module currently in the table.
func (t *Table) All() []*Module {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Module, 0, len(t.modules))
	for _, m := range t.modules {
		out = append(out, m)
	}
	return out
}

// Ext returns the module's current extension, derived from Path.
func (m *Module) Ext() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filepath.Ext(m.Path)
}

// SetState transitions the module's state. Callers that need to detect
// aborts should snapshot State before a suspension point and compare after.
func (m *Module) SetState(s State) {
	m.mu.Lock()
	m.State = s
	m.mu.Unlock()
}

// GetState returns the current state.
func (m *Module) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State
}

// SetData replaces the module's content. If a source map was already
// present, the new map is chain-composed with the old one before being
// stored, via the supplied compose function so this package does not
// need to depend on internal/sourcemap.
func (m *Module) SetData(d Data, newMap *SourceMap, compose func(old, new *SourceMap) *SourceMap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SourceMapEnabled && m.sourceMap != nil && newMap != nil && compose != nil {
		newMap = compose(m.sourceMap, newMap)
	}
	m.data = d
	m.hasData = true
	if newMap != nil {
		m.sourceMap = newMap
	}
	m.revision++
}

// HasData reports whether content has been populated yet.
func (m *Module) HasData() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasData
}

// Content forces and returns the module's content as bytes, caching a lazy
// generator's result on first read.
func (m *Module) Content() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data.Kind == DataLazy {
		b, sm, err := m.data.Generator()
		if err != nil {
			return nil, err
		}
		m.data = Data{Kind: DataBinary, Bytes: b}
		if sm != nil {
			m.sourceMap = sm
		}
	}
	return m.data.bytes()
}

// SourceMapData returns the module's current in-memory source map, or nil.
func (m *Module) SourceMapData() *SourceMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sourceMap
}

// SetSourceMapData stores a source map without touching content (used by
// a Bundler.Generate implementation that produces both in one step).
func (m *Module) SetSourceMapData(sm *SourceMap) {
	m.mu.Lock()
	m.sourceMap = sm
	m.mu.Unlock()
}

// AddDependency appends a dependency edge recorded during Bundler.Parse.
func (m *Module) AddDependency(dep *Dependency) {
	m.mu.Lock()
	m.Dependencies = append(m.Dependencies, dep)
	m.mu.Unlock()
}

// AddReplaceRange registers a pending substitution, evaluated in
// registration order during Bundler.Generate.
func (m *Module) AddReplaceRange(r ReplaceRange) {
	m.mu.Lock()
	m.ReplaceRanges = append(m.ReplaceRanges, r)
	m.mu.Unlock()
}

// AddSibling registers a generated module whose lifecycle is yoked to this
// one.
func (m *Module) AddSibling(s *Module) {
	m.mu.Lock()
	m.Siblings = append(m.Siblings, s)
	m.mu.Unlock()
}

// AddLog appends a diagnostic to the module.
func (m *Module) AddLog(l LogEntry) {
	m.mu.Lock()
	m.Logs = append(m.Logs, l)
	m.mu.Unlock()
}

// Revision returns a monotonically increasing counter bumped on every
// SetData call, used by sub-file snapshotting (SourceFileRevision).
func (m *Module) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// Reset clears load-phase state and returns the module to Initial or
// Deleted, as the watcher requires.
func (m *Module) Reset(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
	m.Dependencies = nil
	m.ReplaceRanges = nil
	m.Siblings = nil
	m.Props = make(map[string]any)
	m.data = Data{}
	m.hasData = false
	m.sourceMap = nil
	m.Path = m.OriginalPath
	m.State = next
	m.revision = 0
}

// Clone returns an independent copy used by the emit phase so the loaded
// module stays pristine for incremental rebuilds. Dependencies and
// ReplaceRanges are copied into fresh slices that still point at the
// original *Dependency values; Logs, Siblings and the sub-file fields are
// not copied, so the clone starts with none of them.
func (m *Module) Clone() *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Module{
		OriginalPath:     m.OriginalPath,
		IsExternal:       m.IsExternal,
		Path:             m.Path,
		State:            m.State,
		data:             m.data,
		hasData:          m.hasData,
		Type:             m.Type,
		ext:              m.ext,
		SourceMapEnabled: m.SourceMapEnabled,
		sourceMap:        m.sourceMap,
		Bundler:          m.Bundler,
		Dependencies:     append([]*Dependency(nil), m.Dependencies...),
		ReplaceRanges:    append([]ReplaceRange(nil), m.ReplaceRanges...),
		Hash:             m.Hash,
		MD5:              m.MD5,
		SHA1:             m.SHA1,
		Size:             m.Size,
		Props:            make(map[string]any, len(m.Props)),
	}
	for k, v := range m.Props {
		c.Props[k] = v
	}
	return c
}

// CreateSubfile builds a Module for a byte range carved out of parent (e.g.
// a <style> block inside an HTML document), snapshotting enough of the
// parent to let log positions be rebased later.
func (t *Table) CreateSubfile(parent *Module, path string, content []byte, index int, sm *SourceMap) *Module {
	sub := t.GetModule(path)
	sub.mu.Lock()
	sub.SourceFile = parent
	sub.SourceFileIndex = index
	sub.SourceFileSourceMapData = sm
	parent.mu.Lock()
	sub.SourceFileData = parent.data.Bytes
	sub.SourceFileRevision = parent.revision
	parent.mu.Unlock()
	sub.data = Data{Kind: DataBinary, Bytes: content}
	sub.hasData = true
	sub.mu.Unlock()
	return sub
}

// ComputeDigests fills MD5/SHA1/Size from the module's current content.
func (m *Module) ComputeDigests() error {
	b, err := m.Content()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sum1 := md5.Sum(b)
	sum2 := sha1.Sum(b)
	m.MD5 = hex.EncodeToString(sum1[:])
	m.SHA1 = hex.EncodeToString(sum2[:])
	m.Size = len(b)
	return nil
}
