package moderation

import (
	"strings"

	"github.com/zfogg/friendlypix/internal/models"
)

// Likelihood is the classifier's coarse confidence for one category
type Likelihood int

const (
	Unknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

var likelihoodNames = []string{"UNKNOWN", "VERY_UNLIKELY", "UNLIKELY", "POSSIBLE", "LIKELY", "VERY_LIKELY"}

func (l Likelihood) String() string {
	if l < Unknown || l > VeryLikely {
		return likelihoodNames[Unknown]
	}
	return likelihoodNames[l]
}

// ParseLikelihood maps a classifier label to a Likelihood. Unrecognised
// labels are Unknown.
func ParseLikelihood(s string) Likelihood {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range likelihoodNames {
		if name == s {
			return Likelihood(i)
		}
	}
	return Unknown
}

// MarshalText writes the label form
func (l Likelihood) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText reads the label form
func (l *Likelihood) UnmarshalText(b []byte) error {
	*l = ParseLikelihood(string(b))
	return nil
}

// SafeSearch is a classification of one image
type SafeSearch struct {
	Adult    Likelihood `json:"adult"`
	Violence Likelihood `json:"violence"`
}

// Classified reports whether the classifier rated at least one category
func (s SafeSearch) Classified() bool {
	return s.Adult != Unknown || s.Violence != Unknown
}

// SafetyPolicy decides when an image is blurred
type SafetyPolicy struct {
	Threshold Likelihood
}

// DefaultPolicy blurs images rated LIKELY or worse in either category
func DefaultPolicy() SafetyPolicy {
	return SafetyPolicy{Threshold: Likely}
}

// ShouldBlur reports whether either category meets the threshold
func (p SafetyPolicy) ShouldBlur(s SafeSearch) bool {
	return len(p.Reasons(s)) > 0
}

// Reasons lists the categories that meet the threshold
func (p SafetyPolicy) Reasons(s SafeSearch) []models.ModerationReason {
	var out []models.ModerationReason
	if s.Adult >= p.Threshold {
		out = append(out, models.ReasonAdult)
	}
	if s.Violence >= p.Threshold {
		out = append(out, models.ReasonViolence)
	}
	return out
}
