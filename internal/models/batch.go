package models

import "time"

// BatchStatus is the dispatch state of a notification batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchSent       BatchStatus = "sent"
)

// ReactionBatch aggregates the reactions one user left on one photo during a
// debounce window. Stored at reactionBatches/{photoId}_{reactorId}.
type ReactionBatch struct {
	PhotoID       string         `json:"photoId" firestore:"photoId" bson:"photoId"`
	ReactorID     string         `json:"reactorId" firestore:"reactorId" bson:"reactorId"`
	Reactions     map[string]int `json:"reactions" firestore:"reactions" bson:"reactions"`
	Status        BatchStatus    `json:"status" firestore:"status" bson:"status"`
	TaskScheduled bool           `json:"taskScheduled" firestore:"taskScheduled" bson:"taskScheduled"`
	CycleID       string         `json:"cycleId" firestore:"cycleId" bson:"cycleId"`
	CreatedAt     time.Time      `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
	ClaimedAt     *time.Time     `json:"claimedAt,omitempty" firestore:"claimedAt,omitempty" bson:"claimedAt,omitempty"`
	SentAt        *time.Time     `json:"sentAt,omitempty" firestore:"sentAt,omitempty" bson:"sentAt,omitempty"`
	Error         string         `json:"error,omitempty" firestore:"error,omitempty" bson:"error,omitempty"`
}

// TagBatch aggregates the users a tagger added to one photo during a
// debounce window. Stored at tagBatches/{photoId}_{taggerId}.
type TagBatch struct {
	PhotoID       string      `json:"photoId" firestore:"photoId" bson:"photoId"`
	TaggerID      string      `json:"taggerId" firestore:"taggerId" bson:"taggerId"`
	TaggedUserIDs []string    `json:"taggedUserIds" firestore:"taggedUserIds" bson:"taggedUserIds"`
	Status        BatchStatus `json:"status" firestore:"status" bson:"status"`
	TaskScheduled bool        `json:"taskScheduled" firestore:"taskScheduled" bson:"taskScheduled"`
	CycleID       string      `json:"cycleId" firestore:"cycleId" bson:"cycleId"`
	CreatedAt     time.Time   `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
	ClaimedAt     *time.Time  `json:"claimedAt,omitempty" firestore:"claimedAt,omitempty" bson:"claimedAt,omitempty"`
	SentAt        *time.Time  `json:"sentAt,omitempty" firestore:"sentAt,omitempty" bson:"sentAt,omitempty"`
	Error         string      `json:"error,omitempty" firestore:"error,omitempty" bson:"error,omitempty"`
}

// BatchID builds the composite key shared by all batch collections.
func BatchID(photoID, actorID string) string {
	return photoID + "_" + actorID
}

// BatchHead is the lifecycle part shared by every batch document.
type BatchHead struct {
	Status        BatchStatus `json:"status" firestore:"status" bson:"status"`
	TaskScheduled bool        `json:"taskScheduled" firestore:"taskScheduled" bson:"taskScheduled"`
	CycleID       string      `json:"cycleId" firestore:"cycleId" bson:"cycleId"`
}

func (b *ReactionBatch) State() BatchStatus { return b.Status }

func (b *ReactionBatch) Cycle() string { return b.CycleID }

func (b *TagBatch) State() BatchStatus { return b.Status }

func (b *TagBatch) Cycle() string { return b.CycleID }
