package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anonto42/flick/backend/internal/batching"
	"github.com/anonto42/flick/backend/internal/cache"
	"github.com/anonto42/flick/backend/internal/docstore"
	"github.com/anonto42/flick/backend/internal/jobs"
	"github.com/anonto42/flick/backend/internal/lock"
	"github.com/anonto42/flick/backend/internal/notify"
	"github.com/anonto42/flick/backend/internal/push"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/anonto42/flick/backend/pkg/config"
	"github.com/anonto42/flick/backend/pkg/firebase"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	batchCleanupInterval          = time.Hour
	notificationRetentionInterval = 24 * time.Hour
	callbackTimeout               = 30 * time.Second
	lockPrefix                    = "flick:lock:"
)

// app is the composition root shared by the serve and worker commands.
type app struct {
	cfg      *config.Config
	db       *config.DB
	firebase *firebase.App
	redis    *redis.Client
	tasks    *asynq.Client

	records    repositories.NotificationRepository
	dispatcher *notify.Dispatcher
	triggers   *notify.Triggers
	runner     *jobs.Runner
}

func (a *app) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: a.cfg.RedisAddr, Password: a.cfg.RedisPassword}
}

// newApp connects every backing service. Firebase is opened when the inbox
// API needs token verification or when Firestore is the document store.
func newApp(ctx context.Context, cfg *config.Config, needAuth bool) (*app, error) {
	if cfg.TaskSigningSecret == "" {
		return nil, errors.New("TASK_SIGNING_SECRET environment variable not set")
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}
	a.db = db

	withFirestore := cfg.StoreBackend == "firestore"
	if needAuth || withFirestore {
		fb, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, withFirestore)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
		}
		a.firebase = fb
	}

	var store docstore.Store
	switch cfg.StoreBackend {
	case "firestore":
		store = docstore.NewFirestore(a.firebase.Firestore)
	case "mongo":
		store = docstore.NewMongo(db.Mongo, cfg.MongoDatabase)
	case "memory":
		logrus.Warn("Using the in-memory document store; data is lost on exit")
		store = docstore.NewMemory()
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.tasks = asynq.NewClient(a.redisOpt())

	expo := push.NewClient(cfg.ExpoBaseURL, push.WithAccessToken(cfg.ExpoAccessToken))

	users := repositories.NewUserRepository(store)
	photos := repositories.NewPhotoRepository(store)
	receipts := repositories.NewReceiptRepository(store)
	darkrooms := repositories.NewDarkroomRepository(store)
	comments := repositories.NewCommentRepository(store)
	batches := repositories.NewBatchRepository(store)
	a.records = repositories.NewPostgresNotificationRepository(db.Postgres)

	sender := notify.NewSender(expo, receipts, users)
	notifier := notify.NewNotifier(users, a.records, sender)
	profiles := notify.NewProfileResolver(users, cache.NewRedisCache(a.redis), cfg.ProfileCacheTTL)
	aggregator := batching.NewAggregator(store, scheduler.New(a.tasks, cfg.TaskQueue, cfg.TaskMaxRetry), cfg.BatchDelay)

	a.dispatcher = notify.NewDispatcher(store, photos, profiles, notifier)
	a.triggers = notify.NewTriggers(aggregator, notifier, profiles, photos, comments, darkrooms)

	sweeper := notify.NewReceiptSweeper(expo, receipts, users, cfg.ReceiptRetention)
	revealer := jobs.NewRevealProcessor(darkrooms, photos, a.triggers, cfg.RevealInterval)
	a.runner = jobs.NewRunner(lock.NewProvider(a.redis, lockPrefix),
		jobs.ReceiptSweepJob(sweeper, cfg.ReceiptSweepInterval),
		jobs.RevealSweepJob(revealer, cfg.RevealSweepInterval),
		jobs.BatchCleanupJob(batches, cfg.BatchRetention, batchCleanupInterval),
		jobs.NotificationRetentionJob(a.records, cfg.NotificationRetention, notificationRetentionInterval),
	)

	ok = true
	logrus.WithField("store", cfg.StoreBackend).Info("Application initialized")
	return a, nil
}

func (a *app) callbackDeliverer() *scheduler.CallbackDeliverer {
	return scheduler.NewCallbackDeliverer(a.cfg.CallbackBaseURL, []byte(a.cfg.TaskSigningSecret),
		&http.Client{Timeout: callbackTimeout})
}

// Close releases every connection newApp opened.
func (a *app) Close() {
	if a.tasks != nil {
		if err := a.tasks.Close(); err != nil {
			logrus.WithError(err).Error("Error closing task client")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logrus.WithError(err).Error("Error closing Redis connection")
		}
	}
	if a.firebase != nil {
		a.firebase.Close()
	}
	if a.db != nil {
		a.db.CloseDB()
	}
}
