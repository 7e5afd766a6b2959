package models

import "time"

// PendingReceipt tracks a push ticket whose delivery receipt has not been
// read yet. Stored at pendingReceipts/{ticketId}.
type PendingReceipt struct {
	UserID    string    `json:"userId" firestore:"userId" bson:"userId"`
	Token     string    `json:"token" firestore:"token" bson:"token"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}
