package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/push"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/store/memtree"
)

func setup(t *testing.T, people map[string]any) (*FollowerNotifier, *memtree.Tree, *push.MockSender) {
	t.Helper()
	tree := memtree.New(nil)
	require.NoError(t, tree.Load(map[string]any{"people": people}))
	users := repository.NewMockUserRepository(&models.User{ID: "bob", DisplayName: "Bob Smith", PhotoURL: "https://img/bob.jpg"})
	sender := &push.MockSender{Stale: map[string]bool{"dead": true}}
	n := NewFollowerNotifier(tree, users, sender, "", nil)
	n.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return n, tree, sender
}

func TestOnFollowSendsAndRemovesStaleTokens(t *testing.T) {
	ctx := context.Background()
	n, tree, sender := setup(t, map[string]any{
		"alice": map[string]any{
			"notificationEnabled": true,
			"notificationTokens":  map[string]any{"dead": true, "live": true},
		},
	})

	res, err := n.OnFollow(ctx, "alice", "bob", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.TokensRemoved)

	require.Len(t, sender.Sent, 1)
	assert.ElementsMatch(t, []string{"dead", "live"}, sender.Sent[0].Tokens)
	assert.Equal(t, push.Notification{
		Title:       "You have a new follower!",
		Body:        "Bob Smith is now following you.",
		Icon:        "https://img/bob.jpg",
		ClickAction: "https://friendly-pix.com/user/bob",
	}, sender.Sent[0].Notification)

	tokens, err := tree.Keys(ctx, "/people/alice/notificationTokens")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, tokens)

	marker, err := tree.Read(ctx, "/people/alice/notificationsSent/bob")
	require.NoError(t, err)
	assert.Equal(t, float64(1700000000000), marker)

	// a second write of the same follow is deduplicated
	res, err = n.OnFollow(ctx, "alice", "bob", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySent, res.Outcome)
	assert.Len(t, sender.Sent, 1)
}

func TestOnFollowSkips(t *testing.T) {
	ctx := context.Background()
	n, _, sender := setup(t, map[string]any{
		"quiet": map[string]any{"notificationTokens": map[string]any{"t1": true}},
		"empty": map[string]any{"notificationEnabled": true},
		"alice": map[string]any{"notificationEnabled": true, "notificationTokens": map[string]any{"t1": true}},
	})

	testCases := []struct {
		name     string
		followed string
		value    any
		want     Outcome
	}{
		{"unfollow", "alice", nil, OutcomeUnfollowed},
		{"disabled", "quiet", true, OutcomeDisabled},
		{"no tokens", "empty", true, OutcomeNoTokens},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := n.OnFollow(ctx, tc.followed, "bob", tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Outcome)
		})
	}
	assert.Empty(t, sender.Sent)
}

func TestOnFollowUsesProfileFallbackAndSwallowsSendErrors(t *testing.T) {
	ctx := context.Background()
	n, tree, sender := setup(t, map[string]any{
		"alice": map[string]any{"notificationEnabled": true, "notificationTokens": map[string]any{"t1": true}},
		"carol": map[string]any{"full_name": "Carol"},
	})
	var got push.Notification
	sender.SendEachFunc = func(_ context.Context, _ []string, n push.Notification) ([]push.Result, error) {
		got = n
		return nil, errors.New("fcm unavailable")
	}

	res, err := n.OnFollow(ctx, "alice", "carol", true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Zero(t, res.Delivered)
	assert.Equal(t, "Carol is now following you.", got.Body)
	assert.Equal(t, "/images/silhouette.jpg", got.Icon)

	tokens, err := tree.Keys(ctx, "/people/alice/notificationTokens")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, tokens)
}
