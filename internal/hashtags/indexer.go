package hashtags

import (
	"context"
	"fmt"

	"github.com/zfogg/friendlypix/internal/fanout"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

// Indexer maintains /hashtags/{tag}/{postId} for post text writes
type Indexer struct {
	store store.Store
	log   *zap.Logger
}

// NewIndexer creates an Indexer writing to st
func NewIndexer(st store.Store, log *zap.Logger) *Indexer {
	return &Indexer{store: st, log: logger.OrDefault(log)}
}

// OnPostTextWritten brings the index in line with a post's text change.
// before is empty for a new post and after is empty for a deleted one.
// Tags present in both are left untouched.
func (ix *Indexer) OnPostTextWritten(ctx context.Context, postID, before, after string) error {
	if err := store.ValidKey(postID); err != nil {
		return fmt.Errorf("hashtag index: %w", err)
	}
	old, cur := Extract(before), Extract(after)
	keep := make(map[string]bool, len(cur))
	for _, t := range cur {
		keep[t] = true
	}

	var added, removed []string
	for _, t := range cur {
		added = append(added, store.Join("hashtags", t, postID))
	}
	for _, t := range old {
		if !keep[t] {
			removed = append(removed, store.Join("hashtags", t, postID))
		}
	}

	adds, err := fanout.Plan(added, models.OpSet, true)
	if err != nil {
		return err
	}
	removes, err := fanout.Plan(removed, models.OpDelete, nil)
	if err != nil {
		return err
	}
	set, err := fanout.Merge(adds, removes)
	if err != nil {
		return err
	}
	set, err = fanout.Pending(ctx, ix.store, set)
	if err != nil {
		ix.log.Warn("Could not check hashtag index entries, writing them anyway", logger.WithPostID(postID), zap.Error(err))
	}
	if err := fanout.Commit(ctx, ix.store, set); err != nil {
		return fmt.Errorf("hashtag index for %s: %w", postID, err)
	}
	if len(set) > 0 {
		ix.log.Debug("Hashtag index updated", logger.WithPostID(postID), zap.Strings("paths", set.Paths()))
	}
	return nil
}

// OnPostCreated indexes the tags of a new post
func (ix *Indexer) OnPostCreated(ctx context.Context, postID, text string) error {
	return ix.OnPostTextWritten(ctx, postID, "", text)
}

// OnPostDeleted removes the post from every tag it was indexed under
func (ix *Indexer) OnPostDeleted(ctx context.Context, postID, text string) error {
	return ix.OnPostTextWritten(ctx, postID, text, "")
}
