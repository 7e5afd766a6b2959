package models

import "time"

// NotificationType identifies what an in-app notification is about.
type NotificationType string

const (
	NotificationReaction         NotificationType = "reaction"
	NotificationComment          NotificationType = "comment"
	NotificationMention          NotificationType = "mention"
	NotificationReply            NotificationType = "reply"
	NotificationTagged           NotificationType = "tagged"
	NotificationFriendRequest    NotificationType = "friend_request"
	NotificationFriendAccepted   NotificationType = "friend_accepted"
	NotificationPhotoReveal      NotificationType = "photo_reveal"
	NotificationDeletionReminder NotificationType = "deletion_reminder"
)

// Notification is the in-app record shown in a user's inbox (PostgreSQL).
type Notification struct {
	ID                    uint             `json:"id" gorm:"primaryKey"`
	RecipientID           string           `json:"recipientId" gorm:"size:128;index"`
	Type                  NotificationType `json:"type" gorm:"size:30;index"`
	SenderID              string           `json:"senderId" gorm:"size:128"`
	SenderName            string           `json:"senderName"`
	SenderProfilePhotoURL string           `json:"senderProfilePhotoURL"`
	PhotoID               string           `json:"photoId,omitempty" gorm:"size:128"`
	CommentID             string           `json:"commentId,omitempty" gorm:"size:128"`
	Reactions             map[string]int   `json:"reactions,omitempty" gorm:"serializer:json"`
	Message               string           `json:"message"`
	Read                  bool             `json:"read" gorm:"default:false;index"`
	CreatedAt             time.Time        `json:"createdAt" gorm:"index"`
}
