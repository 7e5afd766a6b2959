package notify

import (
	"context"
	"time"

	"github.com/anonto42/flick/backend/internal/push"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

// SweepStats summarizes one receipt reconciliation run.
type SweepStats struct {
	Checked       int `json:"checked"`
	Delivered     int `json:"delivered"`
	Errored       int `json:"errored"`
	TokensCleared int `json:"tokensCleared"`
	FailedChunks  int `json:"failedChunks"`
	Pruned        int `json:"pruned"`
}

// ReceiptSweeper reconciles stored push tickets with their delivery
// receipts.
type ReceiptSweeper struct {
	transport push.Transport
	receipts  repositories.ReceiptRepository
	users     repositories.UserRepository
	retention time.Duration
	now       func() time.Time
}

func NewReceiptSweeper(transport push.Transport, receipts repositories.ReceiptRepository, users repositories.UserRepository, retention time.Duration) *ReceiptSweeper {
	return &ReceiptSweeper{
		transport: transport,
		receipts:  receipts,
		users:     users,
		retention: retention,
		now:       time.Now,
	}
}

// Sweep reads every pending receipt, deletes the ones whose ticket reached a
// terminal state and clears tokens of unregistered devices. A chunk whose
// lookup fails keeps its receipts for the next run. Receipts older than the
// retention window are dropped unread.
func (s *ReceiptSweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	pending, err := s.receipts.List(ctx)
	if err != nil {
		return stats, err
	}
	byTicket := make(map[string]repositories.StoredReceipt, len(pending))
	ids := make([]string, 0, len(pending))
	for _, r := range pending {
		byTicket[r.TicketID] = r
		ids = append(ids, r.TicketID)
	}

	for i, chunk := range s.transport.ChunkReceiptIDs(ids) {
		log := logrus.WithFields(logrus.Fields{"chunk": i, "tickets": len(chunk)})

		receipts, err := s.transport.GetReceipts(ctx, chunk)
		if err != nil {
			stats.FailedChunks++
			log.WithError(err).Error("failed to fetch push receipts")
			continue
		}
		stats.Checked += len(chunk)

		var done []string
		for _, ticketID := range chunk {
			receipt, ok := receipts[ticketID]
			if !ok {
				continue
			}
			switch receipt.Status {
			case push.StatusOK:
				stats.Delivered++
			case push.StatusError:
				stats.Errored++
				if s.handleError(ctx, ticketID, byTicket[ticketID], receipt) {
					stats.TokensCleared++
				}
			default:
				continue
			}
			done = append(done, ticketID)
		}

		if _, err := s.receipts.DeleteMany(ctx, done); err != nil {
			log.WithError(err).Error("failed to delete processed receipts")
		}
	}

	if s.retention > 0 {
		stale, err := s.receipts.ListOlderThan(ctx, s.now().Add(-s.retention))
		if err != nil {
			logrus.WithError(err).Error("failed to list stale receipts")
		} else if len(stale) > 0 {
			staleIDs := make([]string, len(stale))
			for i, r := range stale {
				staleIDs[i] = r.TicketID
			}
			n, err := s.receipts.DeleteMany(ctx, staleIDs)
			stats.Pruned = n
			if err != nil {
				logrus.WithError(err).Error("failed to prune stale receipts")
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"checked":        stats.Checked,
		"delivered":      stats.Delivered,
		"errored":        stats.Errored,
		"tokens_cleared": stats.TokensCleared,
		"failed_chunks":  stats.FailedChunks,
		"pruned":         stats.Pruned,
	}).Info("receipt sweep finished")
	return stats, nil
}

// handleError clears the recipient's token when the device is gone and
// reports whether it did.
func (s *ReceiptSweeper) handleError(ctx context.Context, ticketID string, pending repositories.StoredReceipt, receipt push.Receipt) bool {
	log := logrus.WithFields(logrus.Fields{
		"ticket_id": ticketID,
		"user_id":   pending.UserID,
		"code":      receipt.ErrorCode(),
	})
	log.WithField("message", receipt.Message).Warn("push delivery failed")

	if receipt.ErrorCode() != push.ErrDeviceNotRegistered || pending.UserID == "" {
		return false
	}
	cleared, err := s.users.ClearPushToken(ctx, pending.UserID, pending.Token)
	if err != nil {
		log.WithError(err).Error("failed to clear push token")
		return false
	}
	if cleared {
		log.Info("cleared push token of unregistered device")
	}
	return cleared
}
