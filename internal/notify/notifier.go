package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

// Reasons a notification was not pushed. None of them is a failure.
const (
	ReasonSelf             = "recipient is the sender"
	ReasonRecipientMissing = "recipient not found"
	ReasonDisabled         = "notifications disabled"
	ReasonNoToken          = "no push token"
)

// Note is one notification for one recipient.
type Note struct {
	RecipientID string
	Type        models.NotificationType
	SenderID    string
	Sender      Profile
	PhotoID     string
	CommentID   string
	Reactions   map[string]int
	Title       string
	Body        string
}

// Delivery reports what Notify did. Reason is set when nothing was pushed or
// the transport refused the push.
type Delivery struct {
	Sent     bool
	TicketID string
	Reason   string
}

// Notifier resolves a recipient, honours their preferences, pushes and
// records the in-app notification.
type Notifier struct {
	users   repositories.UserRepository
	records repositories.NotificationRepository
	sender  *Sender
	now     func() time.Time
}

func NewNotifier(users repositories.UserRepository, records repositories.NotificationRepository, sender *Sender) *Notifier {
	return &Notifier{users: users, records: records, sender: sender, now: time.Now}
}

// Notify returns an error only for store or transport failures worth
// retrying.
func (n *Notifier) Notify(ctx context.Context, note Note) (Delivery, error) {
	token, reason, err := n.resolve(ctx, note)
	if err != nil || reason != "" {
		return Delivery{Reason: reason}, err
	}

	res, err := n.sender.SendPushNotification(ctx, n.request(note, token))
	if err != nil {
		return Delivery{}, err
	}

	n.record(ctx, note)
	return deliveryOf(res), nil
}

// Fanout is the outcome of one note sent through NotifyAll. Err is set for
// store or transport failures.
type Fanout struct {
	Delivery
	Err error
}

// NotifyAll delivers notes to many recipients through one chunked send. A
// failure for one recipient never affects the others.
func (n *Notifier) NotifyAll(ctx context.Context, notes []Note) []Fanout {
	out := make([]Fanout, len(notes))
	var (
		reqs  []PushRequest
		index []int
	)
	for i, note := range notes {
		token, reason, err := n.resolve(ctx, note)
		if err != nil || reason != "" {
			out[i] = Fanout{Delivery: Delivery{Reason: reason}, Err: err}
			continue
		}
		reqs = append(reqs, n.request(note, token))
		index = append(index, i)
	}

	for j, res := range n.sender.SendBatch(ctx, reqs) {
		i := index[j]
		if res.Retryable {
			out[i].Err = fmt.Errorf("push to %s: %s", notes[i].RecipientID, res.Error)
			continue
		}
		n.record(ctx, notes[i])
		out[i].Delivery = deliveryOf(res)
	}
	return out
}

// resolve returns the recipient's push token, or the reason nothing should
// be pushed.
func (n *Notifier) resolve(ctx context.Context, note Note) (string, string, error) {
	if note.RecipientID == "" {
		return "", ReasonRecipientMissing, nil
	}
	if note.RecipientID == note.SenderID {
		return "", ReasonSelf, nil
	}

	recipient, err := n.users.GetUser(ctx, note.RecipientID)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", ReasonRecipientMissing, nil
	}
	if err != nil {
		return "", "", fmt.Errorf("load recipient %s: %w", note.RecipientID, err)
	}
	if !recipient.NotificationPreferences.Allows(note.Type) {
		return "", ReasonDisabled, nil
	}
	if recipient.PushToken == "" {
		return "", ReasonNoToken, nil
	}
	return recipient.PushToken, "", nil
}

func (n *Notifier) request(note Note, token string) PushRequest {
	return PushRequest{
		UserID: note.RecipientID,
		Token:  token,
		Title:  note.Title,
		Body:   note.Body,
		Data:   pushData(note),
	}
}

func deliveryOf(res SendResult) Delivery {
	if !res.Success {
		return Delivery{Reason: res.Error}
	}
	return Delivery{Sent: true, TicketID: res.TicketID}
}

// record persists the inbox entry. It runs after the push, so a failure is
// logged rather than retried to avoid a duplicate push.
func (n *Notifier) record(ctx context.Context, note Note) {
	err := n.records.CreateNotification(ctx, &models.Notification{
		RecipientID:           note.RecipientID,
		Type:                  note.Type,
		SenderID:              note.SenderID,
		SenderName:            note.Sender.Name,
		SenderProfilePhotoURL: note.Sender.PhotoURL,
		PhotoID:               note.PhotoID,
		CommentID:             note.CommentID,
		Reactions:             note.Reactions,
		Message:               note.Body,
		CreatedAt:             n.now(),
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"recipient_id": note.RecipientID,
			"type":         note.Type,
		}).Error("failed to store in-app notification")
	}
}

func pushData(note Note) map[string]interface{} {
	data := map[string]interface{}{"type": string(note.Type)}
	if note.SenderID != "" {
		data["senderId"] = note.SenderID
	}
	if note.PhotoID != "" {
		data["photoId"] = note.PhotoID
	}
	if note.CommentID != "" {
		data["commentId"] = note.CommentID
	}
	return data
}
