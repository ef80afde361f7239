// Package redisstore keeps room documents as JSON strings in Redis and fans
// out changes over Pub/Sub. Writes go through WATCH/MULTI so the store's
// conditional update holds across processes.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-online-chess/internal/obslog"
	"github.com/park285/cheese-online-chess/internal/roomstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPrefix     = "chess:"
	defaultMaxRetries = 8
	// deletion marker on the change channel
	tombstone = ""
)

type Store struct {
	rdb        *redis.Client
	prefix     string
	maxRetries int
	ttl        time.Duration
}

var _ roomstore.Store = (*Store)(nil)

type Option func(*Store)

// WithPrefix namespaces keys and channels, e.g. "chess:".
func WithPrefix(p string) Option {
	return func(s *Store) {
		if strings.TrimSpace(p) != "" {
			s.prefix = strings.TrimSpace(p)
		}
	}
}

// WithMaxRetries bounds WATCH retries before Update reports ErrConflict.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithTTL sets an expiry on every written key, refreshed on each write, so
// rooms the sweep never reaches still leave redis.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: defaultPrefix, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to redisURL and pings it.
func Open(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for room store")
	}
	ro, err := ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, opts...), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) key(path string) string     { return s.prefix + "doc:" + clean(path) }
func (s *Store) channel(path string) string { return s.prefix + "feed:" + clean(path) }

func (s *Store) Create(ctx context.Context, path string, value []byte) error {
	return s.Update(ctx, path, func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, roomstore.ErrConflict
		}
		return value, nil
	})
}

func (s *Store) Put(ctx context.Context, path string, value []byte) error {
	return s.Update(ctx, path, func([]byte) ([]byte, error) { return value, nil })
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, s.key(path)).Bytes()
	if err == redis.Nil {
		return nil, roomstore.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return raw, nil
}

func (s *Store) MultiUpdate(ctx context.Context, path string, fields map[string]any) error {
	return s.Update(ctx, path, func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, roomstore.ErrNotFound
		}
		return roomstore.ApplyFields(cur, fields)
	})
}

func (s *Store) Update(ctx context.Context, path string, fn roomstore.UpdateFunc) error {
	k, ch := s.key(path), s.channel(path)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			cur = nil
		} else if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return callerErr{err}
		}
		if next == nil {
			return nil
		}
		stamped, err := roomstore.Next(cur, next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, stamped, s.ttl)
			pipe.Publish(ctx, ch, stamped)
			return nil
		})
		return err
	}
	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var ce callerErr
		if errors.As(err, &ce) {
			return ce.err
		}
		return unavailable(err)
	}
	obslog.L().Warn("roomstore_update_conflict", zap.String("path", clean(path)), zap.Int("attempts", s.maxRetries))
	return roomstore.ErrConflict
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(path))
		pipe.Publish(ctx, s.channel(path), tombstone)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	base := s.prefix + "doc:"
	match := base + strings.TrimLeft(strings.TrimSpace(prefix), "/") + "*"
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, base))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(out)
	return out, nil
}

// Subscribe listens on the path's change channel before reading the current
// document; the revision check in the feed drops anything the initial read
// already covered.
func (s *Store) Subscribe(ctx context.Context, path string, fn roomstore.SnapshotFunc) (roomstore.Unsubscribe, error) {
	ps := s.rdb.Subscribe(ctx, s.channel(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, unavailable(err)
	}
	cur, err := s.Get(ctx, path)
	if err != nil && !errors.Is(err, roomstore.ErrNotFound) {
		_ = ps.Close()
		return nil, err
	}

	feed := roomstore.NewFeed(fn)
	feed.Offer(cur)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			feed.Close()
			_ = ps.Close()
		})
	}
	msgs := ps.Channel()
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case <-feed.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				if m.Payload == tombstone {
					feed.Offer(nil)
					continue
				}
				feed.Offer([]byte(m.Payload))
			}
		}
	}()
	return unsub, nil
}

// callerErr marks errors returned by an UpdateFunc so they pass through
// unchanged instead of being reported as backend failures.
type callerErr struct{ err error }

func (e callerErr) Error() string { return e.err.Error() }
func (e callerErr) Unwrap() error { return e.err }

func unavailable(err error) error {
	if errors.Is(err, roomstore.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", roomstore.ErrUnavailable, err)
}

func clean(path string) string { return strings.Trim(strings.TrimSpace(path), "/") }

// ParseURL accepts redis:// and rediss:// URLs; rediss gets a TLS config.
func ParseURL(raw string) (*redis.Options, error) {
	o, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return o, nil
}
