package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/flick/backend/internal/batching"
	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/push"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/stretchr/testify/require"
)

var tokenRules = push.NewClient("")

type fakeTransport struct {
	mu           sync.Mutex
	sent         [][]push.Message
	chunkSize    int
	sendErr      func(messages []push.Message) error
	ticketFor    func(msg push.Message) push.Ticket
	receipts     map[string]push.Receipt
	receiptErr   func(ids []string) error
	receiptChunk int
	receiptCalls int
	ticketSeq    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{chunkSize: push.MaxMessagesPerRequest, receiptChunk: push.MaxReceiptIDsPerRequest}
}

func (f *fakeTransport) IsValidToken(token string) bool { return tokenRules.IsValidToken(token) }

func (f *fakeTransport) Send(_ context.Context, messages []push.Message) ([]push.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, messages)
	if f.sendErr != nil {
		if err := f.sendErr(messages); err != nil {
			return nil, err
		}
	}
	tickets := make([]push.Ticket, len(messages))
	for i, m := range messages {
		if f.ticketFor != nil {
			tickets[i] = f.ticketFor(m)
			continue
		}
		f.ticketSeq++
		tickets[i] = push.Ticket{Status: push.StatusOK, ID: fmt.Sprintf("ticket-%d", f.ticketSeq)}
	}
	return tickets, nil
}

func (f *fakeTransport) Chunk(messages []push.Message) [][]push.Message {
	var out [][]push.Message
	for start := 0; start < len(messages); start += f.chunkSize {
		end := start + f.chunkSize
		if end > len(messages) {
			end = len(messages)
		}
		out = append(out, messages[start:end])
	}
	return out
}

func (f *fakeTransport) GetReceipts(_ context.Context, ids []string) (map[string]push.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if f.receiptErr != nil {
		if err := f.receiptErr(ids); err != nil {
			return nil, err
		}
	}
	out := make(map[string]push.Receipt)
	for _, id := range ids {
		if r, ok := f.receipts[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (f *fakeTransport) ChunkReceiptIDs(ids []string) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += f.receiptChunk {
		end := start + f.receiptChunk
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func (f *fakeTransport) messages() []push.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []push.Message
	for _, chunk := range f.sent {
		all = append(all, chunk...)
	}
	return all
}

func (f *fakeTransport) sendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecords struct {
	mu    sync.Mutex
	items []models.Notification
}

func (f *fakeRecords) CreateNotification(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, *n)
	return nil
}

func (f *fakeRecords) GetByRecipientID(context.Context, string, int, int) ([]models.Notification, int64, error) {
	return nil, 0, nil
}

func (f *fakeRecords) GetUnreadCount(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeRecords) MarkAsRead(context.Context, string, uint) (bool, error) { return false, nil }

func (f *fakeRecords) MarkAllAsRead(context.Context, string) error { return nil }

func (f *fakeRecords) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeRecords) all() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.items...)
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []scheduler.CallbackTask
}

func (r *recordingScheduler) ScheduleNotificationTask(_ context.Context, task scheduler.CallbackTask, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

type env struct {
	store      *docstore.Memory
	transport  *fakeTransport
	records    *fakeRecords
	sched      *recordingScheduler
	users      repositories.UserRepository
	receipts   repositories.ReceiptRepository
	sender     *Sender
	aggregator *batching.Aggregator
	dispatcher *Dispatcher
	triggers   *Triggers
	sweeper    *ReceiptSweeper
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:     docstore.NewMemory(),
		transport: newFakeTransport(),
		records:   &fakeRecords{},
		sched:     &recordingScheduler{},
	}
	e.users = repositories.NewUserRepository(e.store)
	e.receipts = repositories.NewReceiptRepository(e.store)
	photos := repositories.NewPhotoRepository(e.store)

	e.sender = NewSender(e.transport, e.receipts, e.users)
	profiles := NewProfileResolver(e.users, nil, 0)
	notifier := NewNotifier(e.users, e.records, e.sender)
	e.aggregator = batching.NewAggregator(e.store, e.sched, batching.DefaultDelay)
	e.dispatcher = NewDispatcher(e.store, photos, profiles, notifier)
	e.triggers = NewTriggers(e.aggregator, notifier, profiles, photos,
		repositories.NewCommentRepository(e.store), repositories.NewDarkroomRepository(e.store))
	e.sweeper = NewReceiptSweeper(e.transport, e.receipts, e.users, 48*time.Hour)
	return e
}

func (e *env) put(t *testing.T, collection, id string, v interface{}) {
	t.Helper()
	require.NoError(t, e.store.Set(context.Background(), collection, id, v))
}

func (e *env) putUser(t *testing.T, id, name, token string) {
	t.Helper()
	e.put(t, models.UsersCollection, id, models.User{DisplayName: name, PushToken: token})
}

func (e *env) user(t *testing.T, id string) models.User {
	t.Helper()
	u, err := e.users.GetUser(context.Background(), id)
	require.NoError(t, err)
	return *u
}

func (e *env) reactionBatch(t *testing.T, id string) models.ReactionBatch {
	t.Helper()
	snap, err := e.store.Get(context.Background(), models.ReactionBatchesCollection, id)
	require.NoError(t, err)
	var b models.ReactionBatch
	require.NoError(t, snap.DataTo(&b))
	return b
}

func boolPtr(b bool) *bool { return &b }
