// Package seed fills a tree store and identity directory with fake
// FriendlyPix data for development.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/profiles"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

// Counts sizes one seeding run
type Counts struct {
	Users    int
	Posts    int
	Comments int
	Likes    int
	Follows  int
	// MaxAge spreads post timestamps and sign-ins up to this far back
	MaxAge time.Duration
}

// DevCounts is a mid-sized data set
var DevCounts = Counts{Users: 50, Posts: 200, Comments: 400, Likes: 800, Follows: 300, MaxAge: 60 * 24 * time.Hour}

// TestCounts is a small data set
var TestCounts = Counts{Users: 5, Posts: 10, Comments: 10, Likes: 20, Follows: 8, MaxAge: 45 * 24 * time.Hour}

// Roots lists the top-level nodes the seeder writes
var Roots = []string{"people", "posts", "comments", "likes", "followers", "feed", "hashtags"}

var tags = []string{
	"sunset", "cat", "dog", "food", "travel", "beach", "city", "nofilter",
	"friends", "coffee", "nature", "art",
}

// Seeder handles seeding operations
type Seeder struct {
	store store.Store
	users repository.UserRepository
	faker *gofakeit.Faker
	now   time.Time
	log   *zap.Logger
}

// NewSeeder creates a seeder. A zero seed picks a random one.
func NewSeeder(st store.Store, users repository.UserRepository, seed uint64, log *zap.Logger) *Seeder {
	return &Seeder{
		store: st,
		users: users,
		faker: gofakeit.New(seed),
		now:   time.Now(),
		log:   logger.OrDefault(log),
	}
}

// Result lists what a seeding run created
type Result struct {
	Users []string
	Posts []string
}

// Seed creates n.Users accounts and the records that hang off them
func (s *Seeder) Seed(ctx context.Context, n Counts) (*Result, error) {
	if n.Users == 0 {
		return &Result{}, nil
	}
	res := &Result{}

	s.log.Info("Creating users...", zap.Int("count", n.Users))
	for range n.Users {
		uid, err := s.seedUser(ctx, n.MaxAge)
		if err != nil {
			return res, fmt.Errorf("failed to seed users: %w", err)
		}
		res.Users = append(res.Users, uid)
	}

	s.log.Info("Creating posts...", zap.Int("count", n.Posts))
	for range n.Posts {
		id, err := s.seedPost(ctx, s.pick(res.Users), n.MaxAge)
		if err != nil {
			return res, fmt.Errorf("failed to seed posts: %w", err)
		}
		res.Posts = append(res.Posts, id)
	}
	if len(res.Posts) == 0 {
		return res, nil
	}

	s.log.Info("Creating comments...", zap.Int("count", n.Comments))
	batch := map[string]any{}
	for range n.Comments {
		post, author := s.pick(res.Posts), s.pick(res.Users)
		batch[store.Join("comments", post, s.faker.UUID())] = map[string]any{
			"text":      s.faker.Sentence(6),
			"timestamp": s.timestamp(n.MaxAge),
			"author":    s.author(ctx, author),
		}
	}
	if err := s.store.Update(ctx, batch); err != nil {
		return res, fmt.Errorf("failed to seed comments: %w", err)
	}

	s.log.Info("Creating likes...", zap.Int("count", n.Likes))
	batch = map[string]any{}
	for range n.Likes {
		batch[store.Join("likes", s.pick(res.Posts), s.pick(res.Users))] = s.timestamp(n.MaxAge)
	}
	if err := s.store.Update(ctx, batch); err != nil {
		return res, fmt.Errorf("failed to seed likes: %w", err)
	}

	s.log.Info("Creating follows...", zap.Int("count", n.Follows))
	if err := s.seedFollows(ctx, res, n.Follows); err != nil {
		return res, fmt.Errorf("failed to seed follows: %w", err)
	}
	return res, nil
}

func (s *Seeder) seedUser(ctx context.Context, maxAge time.Duration) (string, error) {
	signIn := s.faker.DateRange(s.now.Add(-maxAge), s.now)
	u := &models.User{
		ID:          s.faker.UUID(),
		Email:       strings.ToLower(s.faker.Email()),
		DisplayName: s.faker.Name(),
		PhotoURL:    s.faker.URL() + "/avatar.jpg",
		LastSignIn:  &signIn,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return "", err
	}
	batch := profiles.Update(u)
	batch[store.Join("people", u.ID, "notificationEnabled")] = s.faker.Bool()
	return u.ID, s.store.Update(ctx, batch)
}

func (s *Seeder) seedPost(ctx context.Context, uid string, maxAge time.Duration) (string, error) {
	id := s.faker.UUID()
	tag := tags[s.faker.Number(0, len(tags)-1)]
	text := fmt.Sprintf("%s #%s", s.faker.Sentence(5), tag)
	full := store.Join(uid, "full", id, "image.jpg")[1:]
	thumb := store.Join(uid, "thumb", id, "image.jpg")[1:]

	return id, s.store.Update(ctx, map[string]any{
		store.Join("posts", id): map[string]any{
			"text":              text,
			"timestamp":         s.timestamp(maxAge),
			"author":            s.author(ctx, uid),
			"full_url":          "https://storage.example.com/" + full,
			"thumb_url":         "https://storage.example.com/" + thumb,
			"full_storage_uri":  "gs://friendlypix/" + full,
			"thumb_storage_uri": "gs://friendlypix/" + thumb,
			"sanitized":         true,
		},
		store.Join("people", uid, "posts", id): true,
		store.Join("feed", uid, id):            true,
		store.Join("hashtags", tag, id):        true,
	})
}

func (s *Seeder) seedFollows(ctx context.Context, res *Result, n int) error {
	if len(res.Users) < 2 {
		return nil
	}
	batch := map[string]any{}
	for range n {
		follower, followed := s.pick(res.Users), s.pick(res.Users)
		if follower == followed {
			continue
		}
		batch[store.Join("followers", followed, follower)] = true
		batch[store.Join("people", follower, "following", followed)] = true
	}
	return s.store.Update(ctx, batch)
}

func (s *Seeder) author(ctx context.Context, uid string) map[string]any {
	out := map[string]any{"uid": uid}
	if name, err := s.store.Read(ctx, store.Join("people", uid, "full_name")); err == nil && name != nil {
		out["full_name"] = name
	}
	return out
}

func (s *Seeder) pick(ids []string) string {
	return ids[s.faker.Number(0, len(ids)-1)]
}

// timestamp returns a millisecond timestamp at most maxAge in the past
func (s *Seeder) timestamp(maxAge time.Duration) float64 {
	return float64(s.faker.DateRange(s.now.Add(-maxAge), s.now).UnixMilli())
}

// Clean removes every top-level node the seeder writes. Identity accounts
// are left alone.
func (s *Seeder) Clean(ctx context.Context) error {
	batch := make(map[string]any, len(Roots))
	for _, root := range Roots {
		batch[store.Join(root)] = nil
	}
	if err := s.store.Update(ctx, batch); err != nil {
		return fmt.Errorf("failed to clean tree: %w", err)
	}
	return nil
}
