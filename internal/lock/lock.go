// Package lock provides a single-holder Redis lock used to keep periodic
// jobs from overlapping across worker replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock is already held")

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

type Locker struct {
	client redis.UniversalClient
	key    string
	value  string // owner token; only the holder may unlock or extend
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{client: client, key: key, value: value}
}

func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", l.key, ErrHeld)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("unlock %s: lock expired or held by another owner", l.key)
	}
	return nil
}

func (l *Locker) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, strconv.FormatInt(ttl.Milliseconds(), 10)).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("extend %s: lock expired or held by another owner", l.key)
	}
	return nil
}

// Provider hands out lockers for named jobs with a fresh owner token each.
type Provider struct {
	client redis.UniversalClient
	prefix string
}

func NewProvider(client redis.UniversalClient, prefix string) *Provider {
	return &Provider{client: client, prefix: prefix}
}

func (p *Provider) Locker(name string) *Locker {
	return NewLocker(p.client, p.prefix+name, uuid.NewString())
}

// RunExclusive runs fn while holding the named lock. It returns ErrHeld
// without calling fn when another holder owns the lock. The lock is
// extended every ttl/2 until fn returns.
func (p *Provider) RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l := p.Locker(name)
	if err := l.Lock(ctx, ttl); err != nil {
		return err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		l.keepAlive(ctx, ttl, done)
	}()
	defer func() {
		close(done)
		<-stopped
		_ = l.Unlock(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

func (l *Locker) keepAlive(ctx context.Context, ttl time.Duration, done <-chan struct{}) {
	interval := ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Extend(ctx, ttl); err != nil {
				logrus.WithError(err).WithField("lock", l.key).Warn("failed to extend lock")
				return
			}
		}
	}
}
