// Package memstore is the in-process roomstore backend used by tests and
// single-node development runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/park285/cheese-online-chess/internal/roomstore"
)

type Store struct {
	mu sync.Mutex

	docs   map[string][]byte
	subs   map[string]map[int]*roomstore.Feed
	nextID int

	failNext int
	writes   int
}

var _ roomstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs: make(map[string][]byte),
		subs: make(map[string]map[int]*roomstore.Feed),
	}
}

// InjectFailures makes the next n operations fail with ErrUnavailable.
func (s *Store) InjectFailures(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// Writes counts successful mutations since New.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

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
	path = clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	doc, ok := s.docs[path]
	if !ok {
		return nil, roomstore.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (s *Store) MultiUpdate(ctx context.Context, path string, fields map[string]any) error {
	return s.Update(ctx, path, func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, roomstore.ErrNotFound
		}
		return roomstore.ApplyFields(cur, fields)
	})
}

// Update holds the store lock across fn, so it never conflicts.
func (s *Store) Update(ctx context.Context, path string, fn roomstore.UpdateFunc) error {
	path = clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return err
	}
	cur := s.docs[path]
	next, err := fn(cloneOrNil(cur))
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	stamped, err := roomstore.Next(cur, next)
	if err != nil {
		return err
	}
	s.docs[path] = stamped
	s.writes++
	s.publishLocked(path, stamped)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	path = clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return err
	}
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.writes++
	s.publishLocked(path, nil)
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	var out []string
	for p := range s.docs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, path string, fn roomstore.SnapshotFunc) (roomstore.Unsubscribe, error) {
	path = clean(path)
	s.mu.Lock()
	if err := s.fail(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	feed := roomstore.NewFeed(fn)
	s.nextID++
	id := s.nextID
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]*roomstore.Feed)
	}
	s.subs[path][id] = feed
	feed.Offer(cloneOrNil(s.docs[path]))
	s.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[path], id)
			if len(s.subs[path]) == 0 {
				delete(s.subs, path)
			}
			s.mu.Unlock()
			feed.Close()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsub()
		case <-feed.Done():
		}
	}()
	return unsub, nil
}

// Subscribers reports how many live subscriptions watch path.
func (s *Store) Subscribers(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[clean(path)])
}

func (s *Store) publishLocked(path string, doc []byte) {
	for _, f := range s.subs[path] {
		f.Offer(doc)
	}
}

func (s *Store) fail(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", roomstore.ErrUnavailable, err)
	}
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("%w: injected failure", roomstore.ErrUnavailable)
	}
	return nil
}

func clean(path string) string { return strings.Trim(strings.TrimSpace(path), "/") }

func cloneOrNil(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
