package notify

import (
	"context"
	"time"

	"github.com/anonto42/flick/backend/internal/cache"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/sirupsen/logrus"
)

// Profile is how a sender appears in notification text and records.
type Profile struct {
	Name     string
	PhotoURL string
}

var unknownProfile = Profile{Name: "Someone"}

// ProfileResolver looks up sender profiles, optionally through a cache.
// Lookups never fail; a missing or unreadable user resolves to a generic
// label.
type ProfileResolver struct {
	users repositories.UserRepository
	cache cache.Cache
	ttl   time.Duration
}

func NewProfileResolver(users repositories.UserRepository, c cache.Cache, ttl time.Duration) *ProfileResolver {
	return &ProfileResolver{users: users, cache: c, ttl: ttl}
}

func (p *ProfileResolver) Lookup(ctx context.Context, uid string) Profile {
	if uid == "" {
		return unknownProfile
	}
	key := profileKey(uid)
	log := logrus.WithField("user_id", uid)

	if p.cache != nil {
		var cached Profile
		found, err := p.cache.Get(ctx, key, &cached)
		if err != nil {
			log.WithError(err).Debug("profile cache read failed")
		}
		if found {
			return cached
		}
	}

	user, err := p.users.GetUser(ctx, uid)
	if err != nil {
		log.WithError(err).Debug("sender profile unavailable")
		return unknownProfile
	}
	profile := Profile{Name: user.Name(), PhotoURL: user.ProfilePhotoURL}

	if p.cache != nil && p.ttl > 0 {
		if err := p.cache.Set(ctx, key, profile, p.ttl); err != nil {
			log.WithError(err).Debug("profile cache write failed")
		}
	}
	return profile
}

// Invalidate drops the cached profile of uid so the next lookup reads the
// user document again.
func (p *ProfileResolver) Invalidate(ctx context.Context, uid string) error {
	if p.cache == nil || uid == "" {
		return nil
	}
	return p.cache.Delete(ctx, profileKey(uid))
}

func profileKey(uid string) string {
	return "profile:" + uid
}
