// Package hashtags extracts hashtags from post text and keeps the
// /hashtags/{tag}/{postId} index in step with post writes.
package hashtags

import (
	"regexp"
	"strings"
)

var wordSeparator = regexp.MustCompile(`(?i)[^a-z0-9#_-]+`)

// Extract returns the lower-cased hashtags of text in order of first
// appearance, without the leading '#'.
func Extract(text string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, word := range wordSeparator.Split(strings.ReplaceAll(text, "#", " #"), -1) {
		if !strings.HasPrefix(word, "#") {
			continue
		}
		tag := strings.ToLower(strings.TrimPrefix(word, "#"))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
