// Package moderation sanitizes user text and decides whether uploaded
// images must be blurred.
package moderation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/models"
)

// Config is the immutable filter configuration
type Config struct {
	BlockList []string
	// ShoutThreshold is the uppercase/letters ratio above which text is
	// treated as shouting.
	ShoutThreshold float64
	// MinShoutLetters keeps "OK" or "A" from counting as shouting.
	MinShoutLetters int
	Mask            string
}

// DefaultConfig returns the stock thresholds with an empty block-list
func DefaultConfig() Config {
	return Config{
		ShoutThreshold:  0.5,
		MinShoutLetters: 3,
		Mask:            "****",
	}
}

// Filter is a compiled, read-only text moderator. It is safe for
// concurrent use.
type Filter struct {
	cfg     Config
	blocked *regexp.Regexp
}

// NewFilter validates cfg and compiles the block-list
func NewFilter(cfg Config) (*Filter, error) {
	if cfg.ShoutThreshold <= 0 || cfg.ShoutThreshold >= 1 {
		return nil, apperrors.Configuration("moderation", "shout threshold must be in (0, 1), got %v", cfg.ShoutThreshold)
	}
	if cfg.MinShoutLetters < 1 {
		return nil, apperrors.Configuration("moderation", "min shout letters must be positive")
	}
	if cfg.Mask == "" || strings.IndexFunc(cfg.Mask, unicode.IsLetter) >= 0 {
		return nil, apperrors.Configuration("moderation", "mask %q must be non-empty and contain no letters", cfg.Mask)
	}

	f := &Filter{cfg: cfg}
	words := make([]string, 0, len(cfg.BlockList))
	for _, w := range cfg.BlockList {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		words = append(words, regexp.QuoteMeta(strings.ToLower(w)))
	}
	if len(words) > 0 {
		// longest first so that overlapping entries mask the whole token
		sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
		f.blocked = regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`)
		if f.blocked.MatchString(cfg.Mask) {
			return nil, apperrors.Configuration("moderation", "mask %q matches the block-list", cfg.Mask)
		}
	}
	return f, nil
}

// Moderate lower-cases shouted text, masks block-listed words and reports
// whether anything changed. Moderate(Moderate(t).Text) leaves text as is.
func (f *Filter) Moderate(text string) models.ModerationVerdict {
	out := text
	var reasons []models.ModerationReason

	if f.isShouting(out) {
		if lowered := strings.ToLower(out); lowered != out {
			out = lowered
			reasons = append(reasons, models.ReasonShouting)
		}
	}
	if f.blocked != nil {
		if masked := f.blocked.ReplaceAllLiteralString(out, f.cfg.Mask); masked != out {
			out = masked
			reasons = append(reasons, models.ReasonProfanity)
		}
	}

	v := models.ModerationVerdict{Text: out, WasModified: out != text, Reasons: reasons}
	metrics.RecordModeration(v.WasModified)
	return v
}

// isShouting counts letters outside block-listed words, so masking a word
// never changes the verdict on a second pass.
func (f *Filter) isShouting(text string) bool {
	if f.blocked != nil {
		text = f.blocked.ReplaceAllLiteralString(text, " ")
	}
	letters, upper := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters < f.cfg.MinShoutLetters {
		return false
	}
	return float64(upper)/float64(letters) > f.cfg.ShoutThreshold
}
