package pipeline

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pleasebuild/jspack/internal/module"
)

// outPathVar matches one "<name>" or "<name:arg>" template variable, per
// outPath variable list.
var outPathVar = regexp.MustCompile(`<(path|dir|name|ext|hash|md5|sha1|random|date|buildhash|version)(?::([^>]*))?>`)

// ExpandOutPath renders a node's outPath template against the module's
// current path and content.
func ExpandOutPath(tmpl string, m *module.Module, b Builder) (string, error) {
	var rendErr error
	out := outPathVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := outPathVar.FindStringSubmatch(match)
		name, arg := sub[1], sub[2]
		val, err := renderVar(name, arg, m, b)
		if err != nil {
			rendErr = err
			return match
		}
		return val
	})
	if rendErr != nil {
		return "", rendErr
	}
	return out, nil
}

func renderVar(name, arg string, m *module.Module, b Builder) (string, error) {
	switch name {
	case "path":
		return m.Path, nil
	case "dir":
		return filepath.Dir(m.Path), nil
	case "name":
		base := filepath.Base(m.Path)
		return strings.TrimSuffix(base, filepath.Ext(base)), nil
	case "ext":
		return strings.TrimPrefix(filepath.Ext(m.Path), "."), nil
	case "hash":
		return truncate(m.Hash, arg), nil
	case "md5":
		if m.MD5 == "" {
			if err := m.ComputeDigests(); err != nil {
				return "", err
			}
		}
		return truncate(m.MD5, arg), nil
	case "sha1":
		if m.SHA1 == "" {
			if err := m.ComputeDigests(); err != nil {
				return "", err
			}
		}
		return truncate(m.SHA1, arg), nil
	case "random":
		n := 8
		if arg != "" {
			if v, err := strconv.Atoi(arg); err == nil {
				n = v
			}
		}
		return randomHex(n), nil
	case "date":
		format := "20060102150405"
		if arg != "" {
			format = arg
		}
		return time.Now().Format(format), nil
	case "buildhash":
		h := fmt.Sprintf("%x", b.BuildHash())
		return truncate(h, arg), nil
	case "version":
		return b.Version(), nil
	default:
		return "", fmt.Errorf("unknown outPath variable <%s>", name)
	}
}

func truncate(s, arg string) string {
	if arg == "" {
		return s
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 || n >= len(s) {
		return s
	}
	return s[:n]
}

func randomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	_, _ = rand.Read(buf)
	sum := hex.EncodeToString(buf)
	if len(sum) > n {
		sum = sum[:n]
	}
	return sum
}

// staticDigest is a small helper used by tests to compute an md5/sha1 pair
// without going through a Module, kept here because it shares the package's
// truncate semantics.
func staticDigest(data []byte) (md5hex, sha1hex string) {
	a := md5.Sum(data)
	s := sha1.Sum(data)
	return hex.EncodeToString(a[:]), hex.EncodeToString(s[:])
}
