package search

import (
	"time"

	"github.com/zfogg/friendlypix/internal/hashtags"
	"github.com/zfogg/friendlypix/internal/models"
)

var postsMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":          map[string]any{"type": "keyword"},
			"author_uid":  map[string]any{"type": "keyword"},
			"author_name": map[string]any{"type": "text", "analyzer": "standard"},
			"text":        map[string]any{"type": "text", "analyzer": "standard"},
			"hashtags":    map[string]any{"type": "keyword"},
			"thumb_url":   map[string]any{"type": "keyword", "index": false},
			"created_at":  map[string]any{"type": "date"},
		},
	},
}

var peopleMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"uid": map[string]any{"type": "keyword"},
			"full_name": map[string]any{
				"type":     "text",
				"analyzer": "standard",
				"fields": map[string]any{
					"suggest": map[string]any{"type": "completion", "analyzer": "simple"},
				},
			},
		},
	},
}

// PostToSearchDoc converts a post record to its search document
func PostToSearchDoc(postID string, post *models.Post) map[string]any {
	doc := map[string]any{
		"id":          postID,
		"author_uid":  post.Author.UID,
		"author_name": post.Author.FullName,
		"text":        post.Text,
		"hashtags":    hashtags.Extract(post.Text),
		"thumb_url":   post.ThumbURL,
	}
	if post.Timestamp > 0 {
		doc["created_at"] = time.UnixMilli(int64(post.Timestamp)).UTC().Format(time.RFC3339)
	}
	return doc
}
