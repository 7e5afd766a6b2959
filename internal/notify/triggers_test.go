package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anonto42/flick/backend/internal/cache"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendRequestAndAcceptance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.putUser(t, "alice", "Alice", "ExponentPushToken[alice]")
	e.putUser(t, "bob", "Bob", "ExponentPushToken[bob]")

	pending := &models.Friendship{User1: "alice", User2: "bob", Status: models.FriendshipPending, RequestedBy: "alice"}
	sent, err := e.triggers.OnFriendshipWritten(ctx, nil, pending)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	accepted := *pending
	accepted.Status = models.FriendshipAccepted
	sent, err = e.triggers.OnFriendshipWritten(ctx, pending, &accepted)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	msgs := e.transport.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ExponentPushToken[bob]", msgs[0].To)
	assert.Equal(t, "Alice sent you a friend request", msgs[0].Body)
	assert.Equal(t, "ExponentPushToken[alice]", msgs[1].To)
	assert.Equal(t, "Bob accepted your friend request", msgs[1].Body)

	records := e.records.all()
	require.Len(t, records, 2)
	assert.Equal(t, models.NotificationFriendRequest, records[0].Type)
	assert.Equal(t, models.NotificationFriendAccepted, records[1].Type)

	sent, err = e.triggers.OnFriendshipWritten(ctx, &accepted, &accepted)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestFriendshipValidation(t *testing.T) {
	e := newEnv(t)
	_, err := e.triggers.OnFriendshipWritten(context.Background(), nil, &models.Friendship{User1: "a", User2: "b", RequestedBy: "c"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = e.triggers.OnFriendshipWritten(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestCommentNotifiesEachUserOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, id := range []string{"owner", "commenter", "parentAuthor", "m1"} {
		e.putUser(t, id, id, fmt.Sprintf("ExponentPushToken[%s]", id))
	}
	e.put(t, models.PhotosCollection, "photo1", models.Photo{UserID: "owner"})
	e.put(t, models.CommentsCollection, "parent", models.Comment{PhotoID: "photo1", UserID: "parentAuthor", Text: "first"})

	sent, err := e.triggers.OnCommentCreated(ctx, "c1", &models.Comment{
		PhotoID:          "photo1",
		UserID:           "commenter",
		Text:             "nice shot",
		ParentID:         "parent",
		MentionedUserIDs: []string{"owner", "m1", "commenter", "m1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	types := map[string]models.NotificationType{}
	for _, r := range e.records.all() {
		_, dup := types[r.RecipientID]
		assert.False(t, dup, "recipient %s notified twice", r.RecipientID)
		types[r.RecipientID] = r.Type
		assert.Equal(t, "c1", r.CommentID)
	}
	assert.Equal(t, map[string]models.NotificationType{
		"parentAuthor": models.NotificationReply,
		"owner":        models.NotificationComment,
		"m1":           models.NotificationMention,
	}, types)
}

func TestCommentMentionsAreCapped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.putUser(t, "owner", "Owner", "")
	e.put(t, models.PhotosCollection, "photo1", models.Photo{UserID: "owner"})

	var mentions []string
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("m%02d", i)
		mentions = append(mentions, id)
		e.putUser(t, id, id, fmt.Sprintf("ExponentPushToken[%s]", id))
	}

	sent, err := e.triggers.OnCommentCreated(ctx, "c1", &models.Comment{PhotoID: "photo1", UserID: "x", Text: "hey", MentionedUserIDs: mentions})
	require.NoError(t, err)
	assert.Equal(t, MaxMentionsPerComment, sent)
}

func TestPhotoUpdateFeedsAggregators(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	before := &models.Photo{UserID: "owner", Reactions: map[string]map[string]int{"r1": {"😂": 1}}}
	after := &models.Photo{
		UserID:        "owner",
		Reactions:     map[string]map[string]int{"r1": {"😂": 2}},
		TaggedUserIDs: []string{"t1", "t2"},
	}
	require.NoError(t, e.triggers.OnPhotoUpdated(ctx, "photo1", before, after))

	b := e.reactionBatch(t, "photo1_r1")
	assert.Equal(t, map[string]int{"😂": 1}, b.Reactions)
	assert.Equal(t, 1, e.store.Count(models.TagBatchesCollection))

	require.Len(t, e.sched.tasks, 2)
	assert.Equal(t, scheduler.ReactionBatchPath, e.sched.tasks[0].Path)
	assert.Equal(t, scheduler.TagBatchPath, e.sched.tasks[1].Path)
}

func TestPhotoUpdateIgnoresOwnerReactions(t *testing.T) {
	e := newEnv(t)
	after := &models.Photo{UserID: "owner", Reactions: map[string]map[string]int{"owner": {"❤️": 1}}}
	require.NoError(t, e.triggers.OnPhotoUpdated(context.Background(), "photo1", nil, after))
	assert.Equal(t, 0, e.store.Count(models.ReactionBatchesCollection))

	assert.ErrorIs(t, e.triggers.OnPhotoUpdated(context.Background(), "", nil, after), ErrInvalidEvent)
}

func TestRevealNotificationIsSentOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.putUser(t, "u1", "Ana", tokenA)
	revealed := time.Now().Add(-time.Minute)
	room := models.Darkroom{NextRevealAt: time.Now().Add(time.Hour), LastRevealedAt: &revealed, RevealedCount: 3}
	e.put(t, models.DarkroomsCollection, "u1", room)

	sent, err := e.triggers.OnDarkroomUpdated(ctx, "u1", &room)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = e.triggers.OnDarkroomUpdated(ctx, "u1", &room)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	msgs := e.transport.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "3 photos developed in your darkroom", msgs[0].Body)
}

func TestUserUpdateRefreshesCachedProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	profiles := NewProfileResolver(e.users, cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()})), time.Hour)
	triggers := NewTriggers(nil, nil, profiles, nil, nil, nil)

	e.putUser(t, "u1", "Rafa", tokenA)
	assert.Equal(t, "Rafa", profiles.Lookup(ctx, "u1").Name)

	before := e.user(t, "u1")
	e.putUser(t, "u1", "Rafael", tokenA)
	assert.Equal(t, "Rafa", profiles.Lookup(ctx, "u1").Name)

	after := e.user(t, "u1")
	invalidated, err := triggers.OnUserUpdated(ctx, "u1", &before, &after)
	require.NoError(t, err)
	assert.True(t, invalidated)
	assert.Equal(t, "Rafael", profiles.Lookup(ctx, "u1").Name)

	tokenOnly := after
	tokenOnly.PushToken = "ExponentPushToken[new]"
	invalidated, err = triggers.OnUserUpdated(ctx, "u1", &after, &tokenOnly)
	require.NoError(t, err)
	assert.False(t, invalidated)

	_, err = triggers.OnUserUpdated(ctx, "u1", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
