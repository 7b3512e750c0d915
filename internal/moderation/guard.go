package moderation

import (
	"context"
	"fmt"

	apperrors "github.com/zfogg/friendlypix/internal/errors"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/models"
	"go.uber.org/zap"
)

// Classifier rates an image for adult and violent content
type Classifier interface {
	Classify(ctx context.Context, imageRef string) (SafeSearch, error)
}

// OnFlagged is run for images the policy says must be blurred
type OnFlagged func(ctx context.Context, imageRef string, scores SafeSearch) error

// Outcome of one image check
type Outcome string

const (
	OutcomeSafe       Outcome = "safe"
	OutcomeFlagged    Outcome = "flagged"
	OutcomeUnverified Outcome = "unverified"
)

// BlurResult describes one image check
type BlurResult struct {
	ImageRef string                    `json:"image_ref"`
	Outcome  Outcome                   `json:"outcome"`
	Scores   SafeSearch                `json:"scores"`
	Reasons  []models.ModerationReason `json:"reasons,omitempty"`
	Blurred  bool                      `json:"blurred"`
}

// Guard runs the classifier and applies the safety policy
type Guard struct {
	classifier Classifier
	policy     SafetyPolicy
	failOpen   bool
	log        *zap.Logger
}

// NewGuard creates a Guard. failOpen decides what happens when an image
// cannot be classified: true lets it through as Unverified, false returns
// the classifier error so the caller can retry.
func NewGuard(c Classifier, policy SafetyPolicy, failOpen bool, log *zap.Logger) *Guard {
	return &Guard{classifier: c, policy: policy, failOpen: failOpen, log: logger.OrDefault(log)}
}

// FailOpen reports the guard's unverified-image behaviour
func (g *Guard) FailOpen() bool {
	return g.failOpen
}

// WithFailOpen returns a copy of the guard with a different fail-open flag
func (g *Guard) WithFailOpen(failOpen bool) *Guard {
	cp := *g
	cp.failOpen = failOpen
	return &cp
}

// BlurCheck classifies imageRef and calls onFlagged when the policy says
// it must be blurred. An image that could not be classified is logged as
// "could not verify", never as safe.
func (g *Guard) BlurCheck(ctx context.Context, imageRef string, onFlagged OnFlagged) (*BlurResult, error) {
	res := &BlurResult{ImageRef: imageRef}

	scores, err := g.classifier.Classify(ctx, imageRef)
	if err == nil && !scores.Classified() {
		err = fmt.Errorf("classifier returned no ratings")
	}
	if err != nil {
		res.Outcome = OutcomeUnverified
		metrics.RecordBlurCheck(string(res.Outcome))
		g.log.Warn("Could not verify image", zap.String("image", imageRef), zap.Bool("fail_open", g.failOpen), zap.Error(err))
		if g.failOpen {
			return res, nil
		}
		return res, apperrors.External("classifier", "classify", err)
	}

	res.Scores = scores
	res.Reasons = g.policy.Reasons(scores)
	if len(res.Reasons) == 0 {
		res.Outcome = OutcomeSafe
		metrics.RecordBlurCheck(string(res.Outcome))
		g.log.Debug("Image verified safe", zap.String("image", imageRef))
		return res, nil
	}

	res.Outcome = OutcomeFlagged
	metrics.RecordBlurCheck(string(res.Outcome))
	g.log.Info("Image flagged",
		zap.String("image", imageRef),
		zap.Stringer("adult", scores.Adult),
		zap.Stringer("violence", scores.Violence))
	if onFlagged == nil {
		return res, nil
	}
	if err := onFlagged(ctx, imageRef, scores); err != nil {
		return res, fmt.Errorf("blur %s: %w", imageRef, err)
	}
	res.Blurred = true
	return res, nil
}
