package models

// Document store collection names.
const (
	UsersCollection           = "users"
	PhotosCollection          = "photos"
	DarkroomsCollection       = "darkrooms"
	CommentsCollection        = "comments"
	ReactionBatchesCollection = "reactionBatches"
	TagBatchesCollection      = "tagBatches"
	PendingReceiptsCollection = "pendingReceipts"
)
