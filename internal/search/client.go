// Package search keeps the Elasticsearch post and profile indices in step
// with deletions made by the fan-out service.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/zfogg/friendlypix/internal/metrics"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/telemetry"
)

// Index names
const (
	IndexPosts  = "posts"
	IndexPeople = "people"
)

// Indexer is the search collaborator used by cascades
type Indexer interface {
	IndexPost(ctx context.Context, postID string, post *models.Post) error
	DeletePost(ctx context.Context, postID string) error
	DeletePostsByAuthor(ctx context.Context, uid string) (int, error)
	DeleteProfile(ctx context.Context, uid string) error
}

// Client wraps the Elasticsearch client
type Client struct {
	es *elasticsearch.Client
}

// NewClient connects to the cluster at url and verifies it answers
func NewClient(url string, transport http.RoundTripper) (*Client, error) {
	if url == "" {
		url = "http://localhost:9200"
	}

	cfg := elasticsearch.Config{
		Addresses: []string{url},
		Transport: transport,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	res.Body.Close()

	return &Client{es: es}, nil
}

// Ping checks that the cluster answers
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch returned error status: %s", res.Status())
	}
	return nil
}

// InitializeIndices creates the search indices with their mappings
func (c *Client) InitializeIndices(ctx context.Context) error {
	if err := c.createIndex(ctx, IndexPosts, postsMapping); err != nil {
		return fmt.Errorf("failed to create posts index: %w", err)
	}
	if err := c.createIndex(ctx, IndexPeople, peopleMapping); err != nil {
		return fmt.Errorf("failed to create people index: %w", err)
	}
	return nil
}

// createIndex creates an index unless it already exists
func (c *Client) createIndex(ctx context.Context, indexName string, mapping map[string]any) error {
	res, err := c.es.Indices.Exists([]string{indexName}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(indexName,
		c.es.Indices.Create.WithBody(bytes.NewReader(mappingJSON)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "creating index", false)
}

// IndexPost indexes a post document
func (c *Client) IndexPost(ctx context.Context, postID string, post *models.Post) (err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "elasticsearch", "index_post")
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("elasticsearch", "index_post", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	body, err := json.Marshal(PostToSearchDoc(postID, post))
	if err != nil {
		return fmt.Errorf("failed to marshal post document: %w", err)
	}

	res, err := c.es.Index(IndexPosts, bytes.NewReader(body),
		c.es.Index.WithDocumentID(postID),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index post: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "indexing post", false)
}

// DeletePost deletes a post document. A missing document is not an error.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.deleteDoc(ctx, IndexPosts, postID, "delete_post")
}

// DeleteProfile deletes a profile document. A missing document is not an
// error.
func (c *Client) DeleteProfile(ctx context.Context, uid string) error {
	return c.deleteDoc(ctx, IndexPeople, uid, "delete_profile")
}

func (c *Client) deleteDoc(ctx context.Context, index, id, op string) (err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "elasticsearch", op)
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("elasticsearch", op, time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	res, err := c.es.Delete(index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()
	return responseError(res, "deleting "+index+" document", true)
}

// DeletePostsByAuthor removes every post document written by uid and
// returns how many were deleted.
func (c *Client) DeletePostsByAuthor(ctx context.Context, uid string) (n int, err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "elasticsearch", "delete_by_author")
	start := time.Now()
	defer func() {
		metrics.RecordExternalCall("elasticsearch", "delete_by_author", time.Since(start), err)
		telemetry.EndSpan(span, err)
	}()

	query, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"term": map[string]any{"author_uid": uid},
		},
	})
	if err != nil {
		return 0, err
	}

	res, err := c.es.DeleteByQuery([]string{IndexPosts}, bytes.NewReader(query),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete posts by author: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res, "deleting posts by author", true); err != nil {
		return 0, err
	}
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}

	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to decode delete response: %w", err)
	}
	return out.Deleted, nil
}

// responseError turns an error response into an error. notFoundOK treats a
// 404 as success.
func responseError(res *esapi.Response, action string, notFoundOK bool) error {
	if !res.IsError() || (notFoundOK && res.StatusCode == http.StatusNotFound) {
		return nil
	}
	var errResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("error response [%s]", res.Status())
	}
	return fmt.Errorf("error %s: [%s] %v", action, res.Status(), errResp["error"])
}

var _ Indexer = (*Client)(nil)
