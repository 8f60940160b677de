package naming

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Candidate pairs a source GeoTIFF with the layer name derived from it.
type Candidate struct {
	Name   string
	Source string
}

// NormalizeLayerName turns a file stem into a name that is safe as a single
// URL path segment and directory name. Runs of anything outside
// [A-Za-z0-9._-] collapse to one underscore.
func NormalizeLayerName(rawName string) (string, bool) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return "", false
	}

	var sb strings.Builder
	sb.Grow(len(name))
	pendingSep := false
	for _, r := range name {
		if looksNameRune(r) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := strings.Trim(sb.String(), "._-")
	if looksGarbage(out) {
		return "", false
	}
	return out, true
}

// LayerNameFromPath strips directory and extension before normalizing.
func LayerNameFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	return NormalizeLayerName(strings.TrimSuffix(base, filepath.Ext(base)))
}

// AssignLayerNames derives a unique layer name for every source path. Paths
// are processed in lexical order; when two files normalize to the same name
// the later one gets a numeric suffix ("-2", "-3", ...). Paths that yield no
// usable name are returned in skipped.
func AssignLayerNames(paths []string) (assigned []Candidate, skipped []string) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	taken := make(map[string]struct{}, len(sorted))
	for _, p := range sorted {
		name, ok := LayerNameFromPath(p)
		if !ok {
			skipped = append(skipped, p)
			continue
		}
		unique := name
		for i := 2; ; i++ {
			if _, dup := taken[strings.ToLower(unique)]; !dup {
				break
			}
			unique = name + "-" + strconv.Itoa(i)
		}
		taken[strings.ToLower(unique)] = struct{}{}
		assigned = append(assigned, Candidate{Name: unique, Source: p})
	}
	return assigned, skipped
}

func looksNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
	case r >= 'A' && r <= 'Z':
	case r >= '0' && r <= '9':
	case r == '-' || r == '_' || r == '.':
	default:
		return false
	}
	return true
}

func looksGarbage(normalized string) bool {
	switch normalized {
	case "", ".", "..":
		return true
	}
	return false
}
