package models

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
)

// Friendship links two users; RequestedBy is one of them.
type Friendship struct {
	User1       string           `json:"user1" firestore:"user1" bson:"user1" validate:"required"`
	User2       string           `json:"user2" firestore:"user2" bson:"user2" validate:"required"`
	Status      FriendshipStatus `json:"status" firestore:"status" bson:"status" validate:"required,oneof=pending accepted"`
	RequestedBy string           `json:"requestedBy" firestore:"requestedBy" bson:"requestedBy" validate:"required"`
}

// Other returns the participant that is not uid.
func (f *Friendship) Other(uid string) string {
	if f.User1 == uid {
		return f.User2
	}
	return f.User1
}

// Comment is a comment or reply on a photo.
type Comment struct {
	PhotoID          string    `json:"photoId" firestore:"photoId" bson:"photoId" validate:"required"`
	UserID           string    `json:"userId" firestore:"userId" bson:"userId" validate:"required"`
	Text             string    `json:"text" firestore:"text" bson:"text"`
	ParentID         string    `json:"parentId,omitempty" firestore:"parentId,omitempty" bson:"parentId,omitempty"`
	MentionedUserIDs []string  `json:"mentionedUserIds,omitempty" firestore:"mentionedUserIds,omitempty" bson:"mentionedUserIds,omitempty"`
	CreatedAt        time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}

// Darkroom holds a user's developing photos until the next reveal.
type Darkroom struct {
	NextRevealAt   time.Time  `json:"nextRevealAt" firestore:"nextRevealAt" bson:"nextRevealAt"`
	LastRevealedAt *time.Time `json:"lastRevealedAt,omitempty" firestore:"lastRevealedAt,omitempty" bson:"lastRevealedAt,omitempty"`
	LastNotifiedAt *time.Time `json:"lastNotifiedAt,omitempty" firestore:"lastNotifiedAt,omitempty" bson:"lastNotifiedAt,omitempty"`
	RevealedCount  int        `json:"revealedCount" firestore:"revealedCount" bson:"revealedCount"`
}

// NeedsRevealNotification reports whether the latest reveal has not been
// announced yet.
func (d *Darkroom) NeedsRevealNotification() bool {
	if d.LastRevealedAt == nil {
		return false
	}
	return d.LastNotifiedAt == nil || d.LastNotifiedAt.Before(*d.LastRevealedAt)
}
