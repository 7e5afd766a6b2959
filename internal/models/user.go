package models

// NotificationPreferences are the per-user push switches. A nil flag means
// the user never changed it, which counts as enabled.
type NotificationPreferences struct {
	Enabled        *bool `json:"enabled,omitempty" firestore:"enabled,omitempty" bson:"enabled,omitempty"`
	Likes          *bool `json:"likes,omitempty" firestore:"likes,omitempty" bson:"likes,omitempty"`
	Comments       *bool `json:"comments,omitempty" firestore:"comments,omitempty" bson:"comments,omitempty"`
	Mentions       *bool `json:"mentions,omitempty" firestore:"mentions,omitempty" bson:"mentions,omitempty"`
	Tags           *bool `json:"tags,omitempty" firestore:"tags,omitempty" bson:"tags,omitempty"`
	FriendRequests *bool `json:"friendRequests,omitempty" firestore:"friendRequests,omitempty" bson:"friendRequests,omitempty"`
	PhotoReveals   *bool `json:"photoReveals,omitempty" firestore:"photoReveals,omitempty" bson:"photoReveals,omitempty"`
}

// User is the subset of users/{uid} the notification pipeline reads.
type User struct {
	DisplayName             string                  `json:"displayName" firestore:"displayName" bson:"displayName"`
	Username                string                  `json:"username" firestore:"username" bson:"username"`
	ProfilePhotoURL         string                  `json:"profilePhotoURL" firestore:"profilePhotoURL" bson:"profilePhotoURL"`
	PushToken               string                  `json:"pushToken" firestore:"pushToken" bson:"pushToken"`
	NotificationPreferences NotificationPreferences `json:"notificationPreferences" firestore:"notificationPreferences" bson:"notificationPreferences"`
}

// Allows reports whether the user accepts push notifications of type t.
// The master switch gates every type.
func (p NotificationPreferences) Allows(t NotificationType) bool {
	if !enabled(p.Enabled) {
		return false
	}
	switch t {
	case NotificationReaction:
		return enabled(p.Likes)
	case NotificationComment, NotificationReply:
		return enabled(p.Comments)
	case NotificationMention:
		return enabled(p.Mentions)
	case NotificationTagged:
		return enabled(p.Tags)
	case NotificationFriendRequest, NotificationFriendAccepted:
		return enabled(p.FriendRequests)
	case NotificationPhotoReveal:
		return enabled(p.PhotoReveals)
	}
	return true
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

// Name returns the label used in notification text.
func (u *User) Name() string {
	if u == nil {
		return "Someone"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Someone"
}
