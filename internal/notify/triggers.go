package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/flick/backend/internal/batching"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

// MaxMentionsPerComment caps how many mentioned users one comment notifies.
const MaxMentionsPerComment = 10

const commentPreviewLength = 100

// ErrInvalidEvent marks a document event that does not have the expected
// shape. It is never worth retrying.
var ErrInvalidEvent = errors.New("invalid document event")

// Triggers react to document mutations with immediate notifications, or by
// feeding the batch aggregator.
type Triggers struct {
	aggregator *batching.Aggregator
	notifier   *Notifier
	profiles   *ProfileResolver
	photos     repositories.PhotoRepository
	comments   repositories.CommentRepository
	darkrooms  repositories.DarkroomRepository
	now        func() time.Time
}

func NewTriggers(
	aggregator *batching.Aggregator,
	notifier *Notifier,
	profiles *ProfileResolver,
	photos repositories.PhotoRepository,
	comments repositories.CommentRepository,
	darkrooms repositories.DarkroomRepository,
) *Triggers {
	return &Triggers{
		aggregator: aggregator,
		notifier:   notifier,
		profiles:   profiles,
		photos:     photos,
		comments:   comments,
		darkrooms:  darkrooms,
		now:        time.Now,
	}
}

// OnFriendshipWritten notifies the addressee of a new request, and the
// requester when a pending request is accepted.
func (t *Triggers) OnFriendshipWritten(ctx context.Context, before, after *models.Friendship) (int, error) {
	if after == nil || after.RequestedBy == "" || (after.RequestedBy != after.User1 && after.RequestedBy != after.User2) {
		return 0, ErrInvalidEvent
	}

	var note Note
	switch {
	case before == nil && after.Status == models.FriendshipPending:
		sender := t.profiles.Lookup(ctx, after.RequestedBy)
		note = Note{
			RecipientID: after.Other(after.RequestedBy),
			Type:        models.NotificationFriendRequest,
			SenderID:    after.RequestedBy,
			Sender:      sender,
			Title:       "New friend request",
			Body:        fmt.Sprintf("%s sent you a friend request", sender.Name),
		}
	case before != nil && before.Status == models.FriendshipPending && after.Status == models.FriendshipAccepted:
		accepter := after.Other(after.RequestedBy)
		sender := t.profiles.Lookup(ctx, accepter)
		note = Note{
			RecipientID: after.RequestedBy,
			Type:        models.NotificationFriendAccepted,
			SenderID:    accepter,
			Sender:      sender,
			Title:       "Friend request accepted",
			Body:        fmt.Sprintf("%s accepted your friend request", sender.Name),
		}
	default:
		return 0, nil
	}

	delivery, err := t.notifier.Notify(ctx, note)
	if err != nil {
		return 0, err
	}
	return sentCount(delivery), nil
}

// OnPhotoUpdated attributes new reactions to one reactor and feeds them to
// the reaction aggregator, and batches newly tagged users. Aggregator
// failures are logged so the photo write itself is never blocked.
func (t *Triggers) OnPhotoUpdated(ctx context.Context, photoID string, before, after *models.Photo) error {
	if photoID == "" || after == nil || after.UserID == "" {
		return ErrInvalidEvent
	}
	if before == nil {
		before = &models.Photo{}
	}
	log := logrus.WithField("photo_id", photoID)

	if reactorID, diff, ok := batching.DiffReactions(before.Reactions, after.Reactions); ok && reactorID != after.UserID {
		if err := t.aggregator.AddReactionToBatch(ctx, photoID, reactorID, diff); err != nil {
			log.WithError(err).WithField("reactor_id", reactorID).Error("failed to batch reaction")
		}
	}

	if added := batching.NewlyTagged(before.TaggedUserIDs, after.TaggedUserIDs); len(added) > 0 {
		if err := t.aggregator.AddTagsToBatch(ctx, photoID, after.UserID, added); err != nil {
			log.WithError(err).Error("failed to batch tags")
		}
	}
	return nil
}

// OnCommentCreated notifies the parent comment's author of a reply, the
// photo owner of a comment and each mentioned user, at most once each.
func (t *Triggers) OnCommentCreated(ctx context.Context, commentID string, comment *models.Comment) (int, error) {
	if commentID == "" || comment == nil || comment.PhotoID == "" || comment.UserID == "" {
		return 0, ErrInvalidEvent
	}
	log := logrus.WithFields(logrus.Fields{"comment_id": commentID, "photo_id": comment.PhotoID})

	sender := t.profiles.Lookup(ctx, comment.UserID)
	text := preview(comment.Text, commentPreviewLength)
	notified := map[string]bool{comment.UserID: true}
	var notes []Note

	add := func(recipientID string, typ models.NotificationType, title, body string) {
		if recipientID == "" || notified[recipientID] {
			return
		}
		notified[recipientID] = true
		notes = append(notes, Note{
			RecipientID: recipientID,
			Type:        typ,
			SenderID:    comment.UserID,
			Sender:      sender,
			PhotoID:     comment.PhotoID,
			CommentID:   commentID,
			Title:       title,
			Body:        body,
		})
	}

	if comment.ParentID != "" {
		parent, err := t.comments.GetComment(ctx, comment.ParentID)
		if err != nil {
			log.WithError(err).Warn("parent comment unavailable")
		} else {
			add(parent.UserID, models.NotificationReply, "New reply", fmt.Sprintf("%s replied: %s", sender.Name, text))
		}
	}

	photo, err := t.photos.GetPhoto(ctx, comment.PhotoID)
	if err != nil {
		log.WithError(err).Warn("photo unavailable")
	} else {
		add(photo.UserID, models.NotificationComment, "New comment", fmt.Sprintf("%s commented: %s", sender.Name, text))
	}

	mentions := comment.MentionedUserIDs
	if len(mentions) > MaxMentionsPerComment {
		mentions = mentions[:MaxMentionsPerComment]
	}
	for _, uid := range mentions {
		add(uid, models.NotificationMention, "You were mentioned", fmt.Sprintf("%s mentioned you: %s", sender.Name, text))
	}

	sent := 0
	for _, note := range notes {
		delivery, err := t.notifier.Notify(ctx, note)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"recipient_id": note.RecipientID,
				"type":         note.Type,
			}).Error("comment notification failed")
			continue
		}
		sent += sentCount(delivery)
	}
	return sent, nil
}

// OnUserUpdated evicts the cached sender profile when the fields shown in
// notification text change. It reports whether the cache was invalidated.
func (t *Triggers) OnUserUpdated(ctx context.Context, uid string, before, after *models.User) (bool, error) {
	if uid == "" || after == nil {
		return false, ErrInvalidEvent
	}
	if before != nil && before.Name() == after.Name() && before.ProfilePhotoURL == after.ProfilePhotoURL {
		return false, nil
	}
	if err := t.profiles.Invalidate(ctx, uid); err != nil {
		return false, fmt.Errorf("invalidate profile of %s: %w", uid, err)
	}
	return true, nil
}

// OnDarkroomUpdated announces a reveal that has not been announced yet.
func (t *Triggers) OnDarkroomUpdated(ctx context.Context, uid string, after *models.Darkroom) (int, error) {
	if uid == "" || after == nil {
		return 0, ErrInvalidEvent
	}
	if !after.NeedsRevealNotification() {
		return 0, nil
	}
	return t.NotifyReveal(ctx, uid)
}

// NotifyReveal claims the darkroom's reveal announcement and pushes it. The
// claim is taken before sending, so a reveal is announced at most once.
func (t *Triggers) NotifyReveal(ctx context.Context, uid string) (int, error) {
	claimed, room, err := t.darkrooms.ClaimRevealNotification(ctx, uid, t.now())
	if err != nil {
		return 0, fmt.Errorf("claim reveal notification for %s: %w", uid, err)
	}
	if !claimed {
		return 0, nil
	}

	body := "Your photos have developed"
	if room.RevealedCount > 0 {
		body = fmt.Sprintf("%s developed in your darkroom", plural(room.RevealedCount, "photo", "photos"))
	}
	delivery, err := t.notifier.Notify(ctx, Note{
		RecipientID: uid,
		Type:        models.NotificationPhotoReveal,
		Sender:      Profile{Name: "Flick"},
		Title:       "Your photos are ready 📸",
		Body:        body,
	})
	if err != nil {
		return 0, err
	}
	return sentCount(delivery), nil
}

func sentCount(d Delivery) int {
	if d.Sent {
		return 1
	}
	return 0
}
