// Package profiles publishes the public part of each account under
// /people/{uid}, including the search keys used by the people search.
package profiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PageSize is how many accounts UpdateAll publishes per batch
const PageSize = 100

const anonymous = "Anonymous"

// Latinize strips diacritics: "Élodie Núñez" becomes "Elodie Nunez"
func Latinize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SearchIndex is stored at /people/{uid}/_search_index
type SearchIndex struct {
	FullName         string `json:"full_name"`
	ReversedFullName string `json:"reversed_full_name"`
}

// NewSearchIndex lower-cases and latinizes displayName in both word orders
func NewSearchIndex(displayName string) SearchIndex {
	full := strings.ToLower(displayName)
	words := strings.Split(full, " ")
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return SearchIndex{
		FullName:         Latinize(full),
		ReversedFullName: Latinize(strings.Join(words, " ")),
	}
}

// Update returns the batch that publishes u's public profile
func Update(u *models.User) map[string]any {
	name := u.DisplayName
	if name == "" {
		name = anonymous
	}
	idx := NewSearchIndex(name)
	person := store.Join("people", u.ID)
	out := map[string]any{
		person + "/full_name": name,
		person + "/_search_index": map[string]any{
			"full_name":          idx.FullName,
			"reversed_full_name": idx.ReversedFullName,
		},
	}
	if u.PhotoURL != "" {
		out[person+"/profile_picture"] = u.PhotoURL
	}
	return out
}

// Publisher writes public profiles to the tree
type Publisher struct {
	store   store.Store
	users   repository.UserRepository
	objects storage.ObjectStore
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewPublisher creates a Publisher. objects may be nil, which disables
// profile picture caching.
func NewPublisher(st store.Store, users repository.UserRepository, objects storage.ObjectStore, baseURL string, log *zap.Logger) *Publisher {
	return &Publisher{
		store:   st,
		users:   users,
		objects: objects,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     logger.OrDefault(log),
	}
}

// WithHTTPClient sets the client used to fetch remote profile pictures
func (p *Publisher) WithHTTPClient(c *http.Client) *Publisher {
	p.client = c
	return p
}

// OnUserCreate publishes the profile of a new account
func (p *Publisher) OnUserCreate(ctx context.Context, u *models.User) error {
	if err := p.store.Update(ctx, Update(u)); err != nil {
		return fmt.Errorf("publish profile of %s: %w", u.ID, err)
	}
	p.log.Debug("Public profile created", logger.WithUserID(u.ID))
	return nil
}

// UpdateAll republishes every account, one batch per page. It returns how
// many profiles were written.
func (p *Publisher) UpdateAll(ctx context.Context) (int, error) {
	n, token := 0, ""
	for {
		page, err := p.users.ListUsers(ctx, PageSize, token)
		if err != nil {
			return n, fmt.Errorf("list users: %w", err)
		}
		batch := make(map[string]any, 3*len(page.Users))
		for _, u := range page.Users {
			for k, v := range Update(u) {
				batch[k] = v
			}
		}
		if len(batch) > 0 {
			if err := p.store.Update(ctx, batch); err != nil {
				return n, fmt.Errorf("publish profiles: %w", err)
			}
		}
		n += len(page.Users)
		p.log.Info("Profiles published", zap.Int("page", len(page.Users)), zap.Int("total", n))
		if page.NextPageToken == "" {
			return n, nil
		}
		token = page.NextPageToken
	}
}

// CacheProfilePicture copies a Facebook hosted profile picture into object
// storage, since those URLs expire. Other URLs are left alone. It reports
// whether a copy was made.
func (p *Publisher) CacheProfilePicture(ctx context.Context, uid string, pictureURL string) (bool, error) {
	if p.objects == nil || !strings.Contains(pictureURL, "facebook.com") {
		return false, nil
	}
	data, contentType, err := p.fetch(ctx, pictureURL)
	if err != nil {
		return false, err
	}
	name := uid + "/profilePic.jpg"
	if err := p.objects.Upload(ctx, name, &storage.Object{Data: data, ContentType: contentType}); err != nil {
		return false, fmt.Errorf("upload %s: %w", name, err)
	}
	cached := p.baseURL + "/" + name

	if err := p.store.Write(ctx, store.Join("people", uid, "profile_picture"), cached); err != nil {
		return false, fmt.Errorf("save cached picture url: %w", err)
	}
	if u, err := p.users.GetUser(ctx, uid); err == nil {
		u.PhotoURL = cached
		if err := p.users.CreateUser(ctx, u); err != nil {
			p.log.Warn("Failed to update account photo", logger.WithUserID(uid), zap.Error(err))
		}
	}
	p.log.Info("Profile picture cached", logger.WithUserID(uid), zap.String("object", name))
	return true, nil
}

func (p *Publisher) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch profile picture: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch profile picture: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read profile picture: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
