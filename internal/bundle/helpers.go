package bundle

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/pleasebuild/jspack/internal/module"
)

// Reserved query parameters every bundler strips from a dependency's URL
// before resolution, recording their effect on the module.Dependency
// instead of leaving them in the specifier.
const (
	ParamNoCheckQuery = "noCheckQuery"
	ParamInlineQuery  = "inlineQuery"
)

// ParseDependencyURL splits a raw import/reference specifier into
// pathname/search/hash and consumes the noCheckQuery/inlineQuery reserved
// parameters, shared by every Bundler so "?noCheckQuery"/"?inlineQuery"
// behave identically whether the reference came from a JS import, a CSS
// @import/url(...), or an HTML <script src>/<link href>.
func ParseDependencyURL(spec, depType string, dynamic bool, start, end int) *module.Dependency {
	dep := &module.Dependency{
		URL:      spec,
		Index:    start,
		EndIndex: end,
		Type:     depType,
		Dynamic:  dynamic,
	}
	u, err := url.Parse(spec)
	if err != nil {
		dep.Pathname = spec
		return dep
	}
	dep.Pathname = u.Path
	dep.Search = u.RawQuery
	dep.Hash = u.Fragment

	q := u.Query()
	if q.Has(ParamNoCheckQuery) {
		dep.SkipResolve = true
		q.Del(ParamNoCheckQuery)
	}
	if q.Has(ParamInlineQuery) {
		dep.Inline = true
		q.Del(ParamInlineQuery)
	}
	dep.Query = q
	return dep
}

// ResolveRelative joins a relative dependency spec against the directory of
// the importing module's current path, the common case for every concrete
// Bundler's Resolve. If the joined path doesn't exist on disk, it returns
// ok=true with an empty path so the caller logs "cannot find" against the
// referencing module rather than letting the miss surface later as a bare
// read failure on the target.
func ResolveRelative(spec, fromPath string) (string, bool, error) {
	if spec == "" {
		return "", false, nil
	}
	dir := filepath.Dir(fromPath)
	abs := filepath.Clean(filepath.Join(dir, spec))
	if _, err := os.Stat(abs); err != nil {
		return "", true, nil
	}
	return abs, true, nil
}

// ApplyReplaceRanges rewrites content by substituting every registered
// ReplaceRange's output, evaluated in registration order. Ranges must be
// non-overlapping and sorted by Start; this function sorts defensively
// since registration order and byte order usually, but need not,
// coincide.
func ApplyReplaceRanges(content []byte, ranges []module.ReplaceRange, _ []*module.Dependency) ([]byte, error) {
	if len(ranges) == 0 {
		return content, nil
	}
	replacements := make([]string, len(ranges))
	order := make([]int, len(ranges))
	for i, r := range ranges {
		replacement, err := r.Rewrite(r.Dep)
		if err != nil {
			return nil, err
		}
		replacements[i] = replacement
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ranges[order[a]].Start < ranges[order[b]].Start })

	out := make([]byte, 0, len(content))
	cursor := 0
	for _, i := range order {
		r := ranges[i]
		if r.Start < cursor {
			// Overlapping range from a malformed parse; skip rather than
			// corrupt already-emitted content.
			continue
		}
		if r.Start > len(content) || r.End > len(content) || r.End < r.Start {
			return nil, fmt.Errorf("replace range [%d:%d] out of bounds for %d-byte content", r.Start, r.End, len(content))
		}
		out = append(out, content[cursor:r.Start]...)
		out = append(out, []byte(replacements[i])...)
		cursor = r.End
	}
	out = append(out, content[cursor:]...)
	return out, nil
}
