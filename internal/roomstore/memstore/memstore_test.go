package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/park285/cheese-online-chess/internal/roomstore"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for snapshot")
		return nil
	}
}

func TestCreateGetRev(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "rooms/A", []byte(`{"status":"waiting"}`)))
	require.ErrorIs(t, s.Create(ctx, "rooms/A", []byte(`{}`)), roomstore.ErrConflict)

	doc, err := s.Get(ctx, "rooms/A")
	require.NoError(t, err)
	require.EqualValues(t, 1, roomstore.Revision(doc))

	require.NoError(t, s.MultiUpdate(ctx, "rooms/A", map[string]any{"status": "active"}))
	doc, err = s.Get(ctx, "rooms/A")
	require.NoError(t, err)
	require.EqualValues(t, 2, roomstore.Revision(doc))
}

func TestMultiUpdateAbsent(t *testing.T) {
	s := New()
	err := s.MultiUpdate(context.Background(), "rooms/NOPE", map[string]any{"x": 1})
	require.ErrorIs(t, err, roomstore.ErrNotFound)
	_, err = s.Get(context.Background(), "rooms/NOPE")
	require.ErrorIs(t, err, roomstore.ErrNotFound, "MultiUpdate must not create the document")
}

func TestUpdateNoop(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "p", []byte(`{}`)))
	before := s.Writes()
	require.NoError(t, s.Update(ctx, "p", func([]byte) ([]byte, error) { return nil, nil }))
	require.Equal(t, before, s.Writes(), "noop update wrote")
}

func TestSubscribeInitialChangesAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "rooms/B", []byte(`{"n":1}`)))

	ch := make(chan []byte, 8)
	unsub, err := s.Subscribe(ctx, "rooms/B", func(d []byte) { ch <- d })
	require.NoError(t, err)
	defer unsub()

	require.EqualValues(t, 1, roomstore.Revision(recv(t, ch)))
	require.NoError(t, s.MultiUpdate(ctx, "rooms/B", map[string]any{"n": 2}))
	require.EqualValues(t, 2, roomstore.Revision(recv(t, ch)))
	require.NoError(t, s.Delete(ctx, "rooms/B"))
	require.Nil(t, recv(t, ch), "expected nil on delete")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	s := New()
	unsub, err := s.Subscribe(context.Background(), "x", func([]byte) {})
	require.NoError(t, err)
	require.Equal(t, 1, s.Subscribers("x"))
	unsub()
	unsub()
	require.Zero(t, s.Subscribers("x"))
}

func TestInjectFailures(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.InjectFailures(1)
	require.ErrorIs(t, s.Put(ctx, "a", []byte(`{}`)), roomstore.ErrUnavailable)
	require.NoError(t, s.Put(ctx, "a", []byte(`{}`)))
}

func TestList(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, p := range []string{"rooms/B", "rooms/A", "other/C"} {
		require.NoError(t, s.Put(ctx, p, []byte(`{}`)))
	}
	got, err := s.List(ctx, "rooms/")
	require.NoError(t, err)
	require.Equal(t, []string{"rooms/A", "rooms/B"}, got)
}
