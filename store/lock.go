package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockUnavailable is returned when the write lock could not be acquired
// before the context was done.
var ErrLockUnavailable = errors.New("store: write lock unavailable")

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// Locker serializes invocations that load, mutate and save the same store.
type Locker interface {
	Lock(ctx context.Context) (ReleaseFunc, error)
}

const (
	defaultLockPoll  = 25 * time.Millisecond
	defaultLockStale = 30 * time.Second
	defaultLockTTL   = 30 * time.Second
)

// FileLocker is an advisory lock implemented as an exclusively created
// sibling file. A lock file older than the stale age is assumed to belong
// to a crashed process and is removed.
type FileLocker struct {
	path  string
	poll  time.Duration
	stale time.Duration
}

// NewFileLocker returns a locker using path as the lock file.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{path: path, poll: defaultLockPoll, stale: defaultLockStale}
}

// LockPathFor returns the conventional lock file for a credential file.
func LockPathFor(storePath string) string {
	return storePath + ".lock"
}

// Lock blocks until the lock file is created or ctx is done.
func (l *FileLocker) Lock(ctx context.Context) (ReleaseFunc, error) {
	token := uuid.NewString()
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, werr := f.WriteString(token)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return nil, fmt.Errorf("store: write lock file: %w", errors.Join(werr, cerr))
			}
			return l.releaser(token), nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("store: create lock file: %w", err)
		}

		if l.breakStale() {
			continue
		}
		if err := wait(ctx, l.poll); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
	}
}

func (l *FileLocker) releaser(token string) ReleaseFunc {
	return func(context.Context) error {
		data, err := os.ReadFile(l.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("store: read lock file: %w", err)
		}
		// Someone broke our lock as stale and took it over.
		if strings.TrimSpace(string(data)) != token {
			return nil
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: remove lock file: %w", err)
		}
		return nil
	}
}

func (l *FileLocker) breakStale() bool {
	if l.stale <= 0 {
		return false
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	if time.Since(info.ModTime()) < l.stale {
		return false
	}
	return os.Remove(l.path) == nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds the write lock as a Redis key so that several host
// processes sharing one credential file serialize their writes.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	poll   time.Duration
}

// NewRedisLocker returns a locker on key. ttl bounds how long a crashed
// holder can block others; zero selects a 30s default.
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, poll: defaultLockPoll}
}

// Lock acquires the key with SET NX PX, retrying until ctx is done.
func (l *RedisLocker) Lock(ctx context.Context) (ReleaseFunc, error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
					return fmt.Errorf("store: release redis lock: %w", err)
				}
				return nil
			}, nil
		}
		if err := wait(ctx, l.poll); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
	}
}

// NopLocker performs no locking. It is meant for single-process tools and
// tests that own the file exclusively.
type NopLocker struct{}

func (NopLocker) Lock(context.Context) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
