package push

import "context"

// Ticket and receipt statuses reported by the push service.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrDeviceNotRegistered is the receipt/ticket error code for a device token
// that will never accept deliveries again.
const ErrDeviceNotRegistered = "DeviceNotRegistered"

// Message is one push notification addressed to a single device token.
type Message struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Sound     string                 `json:"sound,omitempty"`
	Priority  string                 `json:"priority,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
}

// Details carries the machine readable error code of a ticket or receipt.
type Details struct {
	Error string `json:"error,omitempty"`
}

// Ticket is the immediate per-message answer to a send request. An ok ticket
// has an ID that can later be exchanged for a Receipt.
type Ticket struct {
	Status  string   `json:"status"`
	ID      string   `json:"id,omitempty"`
	Message string   `json:"message,omitempty"`
	Details *Details `json:"details,omitempty"`
}

// Receipt is the final delivery outcome of a ticket.
type Receipt struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Details *Details `json:"details,omitempty"`
}

// ErrorCode returns the details error code, or "".
func (t Ticket) ErrorCode() string {
	if t.Details == nil {
		return ""
	}
	return t.Details.Error
}

// ErrorCode returns the details error code, or "".
func (r Receipt) ErrorCode() string {
	if r.Details == nil {
		return ""
	}
	return r.Details.Error
}

// Transport is the push delivery capability the notification pipeline uses.
type Transport interface {
	IsValidToken(token string) bool
	Send(ctx context.Context, messages []Message) ([]Ticket, error)
	Chunk(messages []Message) [][]Message
	GetReceipts(ctx context.Context, ticketIDs []string) (map[string]Receipt, error)
	ChunkReceiptIDs(ids []string) [][]string
}
