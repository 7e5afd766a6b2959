package jobs

import (
	"context"
	"time"

	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/sirupsen/logrus"
)

const revealPageSize = 100

// RevealAnnouncer pushes the reveal notification for a user.
type RevealAnnouncer interface {
	NotifyReveal(ctx context.Context, uid string) (int, error)
}

// RevealProcessor develops the photos of every darkroom whose reveal time
// has passed and schedules its next reveal.
type RevealProcessor struct {
	darkrooms repositories.DarkroomRepository
	photos    repositories.PhotoRepository
	announcer RevealAnnouncer
	every     time.Duration
	now       func() time.Time
}

func NewRevealProcessor(darkrooms repositories.DarkroomRepository, photos repositories.PhotoRepository, announcer RevealAnnouncer, every time.Duration) *RevealProcessor {
	return &RevealProcessor{darkrooms: darkrooms, photos: photos, announcer: announcer, every: every, now: time.Now}
}

// Process handles one page of due darkrooms and returns how many were
// processed. A failing darkroom is logged and skipped.
func (p *RevealProcessor) Process(ctx context.Context) (int, error) {
	now := p.now()
	due, err := p.darkrooms.ListDue(ctx, now, revealPageSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, uid := range due {
		log := logrus.WithField("user_id", uid)

		count, err := p.photos.RevealDeveloping(ctx, uid, now)
		if err != nil {
			log.WithError(err).Error("failed to reveal photos")
			continue
		}
		if err := p.darkrooms.MarkRevealed(ctx, uid, now, now.Add(p.every), count); err != nil {
			log.WithError(err).Error("failed to schedule next reveal")
			continue
		}
		processed++
		if count == 0 {
			continue
		}
		if _, err := p.announcer.NotifyReveal(ctx, uid); err != nil {
			log.WithError(err).Error("failed to send reveal notification")
		}
	}
	return processed, nil
}

// RevealSweepJob runs the reveal processor.
func RevealSweepJob(p *RevealProcessor, interval time.Duration) Job {
	return Job{
		Type:     scheduler.TypeRevealSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := p.Process(ctx)
			if n > 0 {
				logrus.WithField("darkrooms", n).Info("processed due reveals")
			}
			return err
		},
	}
}
