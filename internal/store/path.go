package store

import (
	"fmt"
	"sort"
	"strings"
)

// Clean normalises a path to the form "/a/b/c". The root is "/".
func Clean(path string) string {
	parts := Split(path)
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}

// Split returns the non-empty segments of path
func Split(path string) []string {
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Join builds a clean path from segments
func Join(parts ...string) string {
	return Clean(strings.Join(parts, "/"))
}

// Parent returns the parent path of path, "/" for top-level paths
func Parent(path string) string {
	parts := Split(path)
	if len(parts) <= 1 {
		return "/"
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/")
}

// IsAncestor reports whether a is a strict ancestor of b
func IsAncestor(a, b string) bool {
	a, b = Clean(a), Clean(b)
	if a == b {
		return false
	}
	if a == "/" {
		return true
	}
	return strings.HasPrefix(b, a+"/")
}

// Overlaps reports whether a and b are equal or one contains the other
func Overlaps(a, b string) bool {
	return Clean(a) == Clean(b) || IsAncestor(a, b) || IsAncestor(b, a)
}

// ValidKey reports whether a single segment can be stored
func ValidKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, "/.#$[]") {
		return fmt.Errorf("key %q contains a forbidden character", key)
	}
	return nil
}

// CheckBatch rejects overlapping paths in one batch update
func CheckBatch(values map[string]any) error {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, Clean(p))
	}
	SortPaths(paths)
	for i := 1; i < len(paths); i++ {
		if Overlaps(paths[i-1], paths[i]) {
			return fmt.Errorf("batch paths %s and %s overlap", paths[i-1], paths[i])
		}
	}
	return nil
}

// SortPaths orders paths so that every path is directly followed by its
// descendants.
func SortPaths(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		return sortKey(paths[i]) < sortKey(paths[j])
	})
}

func sortKey(path string) string {
	return strings.ReplaceAll(path, "/", "\x00")
}
