package models

import "time"

type PhotoStatus string

const (
	PhotoDeveloping PhotoStatus = "developing"
	PhotoRevealed   PhotoStatus = "revealed"
)

// Photo is the subset of photos/{id} the pipeline reads. Reactions maps a
// reactor id to that reactor's per-emoji counts.
type Photo struct {
	UserID        string                    `json:"userId" firestore:"userId" bson:"userId"`
	ImageURL      string                    `json:"imageURL,omitempty" firestore:"imageURL,omitempty" bson:"imageURL,omitempty"`
	Status        PhotoStatus               `json:"status" firestore:"status" bson:"status"`
	Reactions     map[string]map[string]int `json:"reactions,omitempty" firestore:"reactions,omitempty" bson:"reactions,omitempty"`
	ReactionCount int                       `json:"reactionCount" firestore:"reactionCount" bson:"reactionCount"`
	TaggedUserIDs []string                  `json:"taggedUserIds,omitempty" firestore:"taggedUserIds,omitempty" bson:"taggedUserIds,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	RevealedAt    *time.Time                `json:"revealedAt,omitempty" firestore:"revealedAt,omitempty" bson:"revealedAt,omitempty"`
}
