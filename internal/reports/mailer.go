// Package reports emails the moderation team when a user flags a post or
// a comment.
package reports

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/zfogg/friendlypix/internal/email"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store"
	"go.uber.org/zap"
)

// textFallback is the plain text part for clients without HTML
const textFallback = "Please Enable HTML Email viewing."

// Deduper remembers keys that were already handled
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Flag identifies one report. CommentID is empty for a flagged post.
type Flag struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id,omitempty"`
	Reporter  string `json:"reporter"`
}

// Kind is "comment" or "post"
func (f Flag) Kind() string {
	if f.CommentID != "" {
		return "comment"
	}
	return "post"
}

// ID is the flagged record's own id
func (f Flag) ID() string {
	if f.CommentID != "" {
		return f.CommentID
	}
	return f.PostID
}

// RecordPath is where the flagged record lives in the tree
func (f Flag) RecordPath() string {
	if f.CommentID != "" {
		return store.Join("comments", f.PostID, f.CommentID)
	}
	return store.Join("posts", f.PostID)
}

// FlagFromPath parses /postFlags/{postId}/{uid} or
// /commentFlags/{postId}/{commentId}/{uid}.
func FlagFromPath(path string) (Flag, bool) {
	parts := store.Split(path)
	switch {
	case len(parts) == 3 && parts[0] == "postFlags":
		return Flag{PostID: parts[1], Reporter: parts[2]}, true
	case len(parts) == 4 && parts[0] == "commentFlags":
		return Flag{PostID: parts[1], CommentID: parts[2], Reporter: parts[3]}, true
	}
	return Flag{}, false
}

var bodyTemplate = template.Must(template.New("report").Parse(`Hey FriendlyPix Team,<br><br>

The user <a href="{{.ReporterURL}}">{{.ReporterName}}{{if .ReporterEmail}} ({{.ReporterEmail}}){{end}}</a>
has flagged a {{.Kind}} on FriendlyPix.
Make sure to review it asap:<br><br>

Post URL on the Web (admin page): {{.PostURL}}<br>
Flagged record: {{.RecordPath}}<br>
{{if .ThumbURL}}Post image thumbnail: <br>
<a href="{{.ThumbURL}}"><img style="max-width: 400px" src="{{.ThumbURL}}"></a><br>
{{end}}Text of the {{.Kind}} reported: <b>{{.Text}}</b>`))

type bodyData struct {
	Kind          string
	ReporterURL   string
	ReporterName  string
	ReporterEmail string
	PostURL       string
	RecordPath    string
	ThumbURL      string
	Text          string
}

// Mailer sends one email per flag to the moderation address
type Mailer struct {
	store   store.Reader
	users   repository.UserRepository
	mailer  email.Mailer
	to      string
	webBase string
	dedupe  Deduper
	log     *zap.Logger
}

// NewMailer creates a report Mailer. dedupe may be nil.
func NewMailer(st store.Reader, users repository.UserRepository, m email.Mailer, to, webBase string, dedupe Deduper, log *zap.Logger) *Mailer {
	return &Mailer{
		store:   st,
		users:   users,
		mailer:  m,
		to:      to,
		webBase: webBase,
		dedupe:  dedupe,
		log:     logger.OrDefault(log),
	}
}

// Compose builds the email for a flag
func (m *Mailer) Compose(ctx context.Context, f Flag) (email.Message, error) {
	raw, err := m.store.Read(ctx, f.RecordPath())
	if err != nil {
		return email.Message{}, fmt.Errorf("read %s: %w", f.RecordPath(), err)
	}
	data := bodyData{
		Kind:        f.Kind(),
		ReporterURL: m.webBase + "/user/" + f.Reporter,
		PostURL:     m.webBase + "/post/" + f.PostID,
		RecordPath:  f.RecordPath(),
	}
	if rec, ok := raw.(map[string]any); ok {
		data.Text, _ = rec["text"].(string)
		if f.CommentID == "" {
			data.ThumbURL, _ = rec["thumb_url"].(string)
		}
	}

	if u, err := m.users.GetUser(ctx, f.Reporter); err == nil {
		data.ReporterName, data.ReporterEmail = u.DisplayName, u.Email
	} else {
		m.log.Debug("Reporter account not found", logger.WithUserID(f.Reporter), zap.Error(err))
	}
	if data.ReporterName == "" {
		data.ReporterName = f.Reporter
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return email.Message{}, fmt.Errorf("render report email: %w", err)
	}
	return email.Message{
		To:      []string{m.to},
		Subject: fmt.Sprintf("A %s has been flagged for inappropriate content - %s", f.Kind(), f.ID()),
		HTML:    body.String(),
		Text:    textFallback,
	}, nil
}

// OnFlag emails the team about f. It reports whether an email went out;
// failures are logged, never returned.
func (m *Mailer) OnFlag(ctx context.Context, f Flag) bool {
	log := m.log.With(zap.String("kind", f.Kind()), zap.String("id", f.ID()), logger.WithUserID(f.Reporter))
	if m.to == "" {
		log.Error("Content was flagged but no moderator address is configured", zap.String("record", f.RecordPath()))
		return false
	}
	if m.dedupe != nil {
		first, err := m.dedupe.MarkOnce(ctx, "reports:"+f.RecordPath()+":"+f.Reporter, 7*24*time.Hour)
		if err != nil {
			log.Warn("Report dedupe unavailable", zap.Error(err))
		} else if !first {
			log.Debug("Report already mailed")
			return false
		}
	}

	msg, err := m.Compose(ctx, f)
	if err != nil {
		log.Error("Failed to compose report email", zap.Error(err))
		return false
	}
	if err := m.mailer.Send(ctx, msg); err != nil {
		log.Error("Failed to send report email", zap.Error(err))
		return false
	}
	log.Info("Report email sent")
	return true
}
