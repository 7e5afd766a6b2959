// Package notify turns batches and document events into push notifications
// and in-app notification records, and reconciles delivery receipts.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/push"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

// ErrInvalidTokenFormat is the SendResult error for tokens the transport
// would reject outright.
const ErrInvalidTokenFormat = "Invalid token format"

// ErrChunkFailed is the SendResult error for pushes whose request chunk the
// transport failed to accept.
const ErrChunkFailed = "push chunk failed"

const (
	defaultChannel  = "default"
	defaultSound    = "default"
	defaultPriority = "high"
)

// PushRequest is one push addressed to a user's device token.
type PushRequest struct {
	UserID string
	Token  string
	Title  string
	Body   string
	Data   map[string]interface{}
}

// SendResult is the outcome of a single push. Error is set when the push was
// not accepted.
type SendResult struct {
	Success  bool   `json:"success"`
	TicketID string `json:"ticketId,omitempty"`
	Error    string `json:"error,omitempty"`
	// Retryable marks a transport failure, as opposed to a rejected push.
	Retryable bool `json:"-"`
}

type Sender struct {
	transport push.Transport
	receipts  repositories.ReceiptRepository
	users     repositories.UserRepository
	now       func() time.Time
}

func NewSender(transport push.Transport, receipts repositories.ReceiptRepository, users repositories.UserRepository) *Sender {
	return &Sender{transport: transport, receipts: receipts, users: users, now: time.Now}
}

func (s *Sender) message(req PushRequest) push.Message {
	return push.Message{
		To:        req.Token,
		Title:     req.Title,
		Body:      req.Body,
		Data:      req.Data,
		Sound:     defaultSound,
		Priority:  defaultPriority,
		ChannelID: defaultChannel,
	}
}

// SendPushNotification sends one push. A malformed token is reported in the
// result without touching the transport; a transport failure is returned as
// an error so callers can retry.
func (s *Sender) SendPushNotification(ctx context.Context, req PushRequest) (SendResult, error) {
	if !s.transport.IsValidToken(req.Token) {
		return SendResult{Error: ErrInvalidTokenFormat}, nil
	}

	tickets, err := s.transport.Send(ctx, []push.Message{s.message(req)})
	if err != nil {
		return SendResult{}, fmt.Errorf("send push to %s: %w", req.UserID, err)
	}
	if len(tickets) != 1 {
		return SendResult{}, fmt.Errorf("send push to %s: expected 1 ticket, got %d", req.UserID, len(tickets))
	}
	return s.handleTicket(ctx, req, tickets[0]), nil
}

// SendBatchNotifications sends messages in transport-sized chunks. A chunk
// that fails is logged and skipped; the tickets of the remaining chunks are
// returned in order.
func (s *Sender) SendBatchNotifications(ctx context.Context, messages []push.Message) []push.Ticket {
	var tickets []push.Ticket
	for i, chunk := range s.transport.Chunk(messages) {
		t, err := s.transport.Send(ctx, chunk)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"chunk":    i,
				"messages": len(chunk),
			}).Error("push chunk failed")
			continue
		}
		tickets = append(tickets, t...)
	}
	return tickets
}

// SendBatch sends one push per request and returns a result per request, in
// order. Requests in a chunk the transport failed report ErrChunkFailed.
func (s *Sender) SendBatch(ctx context.Context, reqs []PushRequest) []SendResult {
	results := make([]SendResult, len(reqs))
	var (
		messages []push.Message
		index    []int
	)
	for i, req := range reqs {
		if !s.transport.IsValidToken(req.Token) {
			results[i] = SendResult{Error: ErrInvalidTokenFormat}
			continue
		}
		messages = append(messages, s.message(req))
		index = append(index, i)
	}

	offset := 0
	for _, chunk := range s.transport.Chunk(messages) {
		tickets := s.SendBatchNotifications(ctx, chunk)
		for j := range chunk {
			i := index[offset+j]
			switch {
			case len(tickets) == 0:
				results[i] = SendResult{Error: ErrChunkFailed, Retryable: true}
			case j < len(tickets):
				results[i] = s.handleTicket(ctx, reqs[i], tickets[j])
			default:
				results[i] = SendResult{Error: "missing ticket"}
			}
		}
		offset += len(chunk)
	}
	return results
}

// handleTicket records accepted tickets for receipt reconciliation and
// clears tokens the transport already knows are dead.
func (s *Sender) handleTicket(ctx context.Context, req PushRequest, ticket push.Ticket) SendResult {
	log := logrus.WithField("user_id", req.UserID)

	if ticket.Status == push.StatusOK {
		if ticket.ID != "" && req.UserID != "" {
			err := s.receipts.Save(ctx, ticket.ID, models.PendingReceipt{
				UserID:    req.UserID,
				Token:     req.Token,
				CreatedAt: s.now(),
			})
			if err != nil {
				log.WithError(err).WithField("ticket_id", ticket.ID).Warn("failed to store pending receipt")
			}
		}
		return SendResult{Success: true, TicketID: ticket.ID}
	}

	code := ticket.ErrorCode()
	log.WithFields(logrus.Fields{"code": code, "message": ticket.Message}).Warn("push ticket rejected")
	if code == push.ErrDeviceNotRegistered && req.UserID != "" {
		if _, err := s.users.ClearPushToken(ctx, req.UserID, req.Token); err != nil {
			log.WithError(err).Error("failed to clear unregistered push token")
		}
	}
	msg := ticket.Message
	if code != "" {
		msg = code
	}
	if msg == "" {
		msg = "push rejected"
	}
	return SendResult{Error: msg}
}
