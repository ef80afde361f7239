package roomevents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func TestNATSPublisherSubjectAndPayload(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "chess.rooms.")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := New(MovePlayed, "ABC234", at, map[string]string{"uci": "e2e4"})

	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, fc.msgs, 1)
	m := fc.msgs[0]
	require.Equal(t, "chess.rooms.ABC234.move", m.Subject)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, ev.ID, m.Header.Get("Event-ID"))

	var got Event
	require.NoError(t, json.Unmarshal(m.Data, &got))
	require.Equal(t, "ABC234", got.RoomCode)
	require.Equal(t, "e2e4", got.Detail["uci"])
	require.True(t, got.At.Equal(at), "at=%v", got.At)
}

func TestNATSPublisherDefaultsAndErrors(t *testing.T) {
	fc := &fakeConn{err: errors.New("boom")}
	p := newNATSPublisher(fc, "")
	require.Equal(t, DefaultSubjectPrefix, p.prefix)
	require.Error(t, p.Publish(context.Background(), New(RoomDeleted, "X", time.Now(), nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Publish(ctx, New(RoomDeleted, "X", time.Now(), nil)), context.Canceled)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Publish(context.Background(), New(RoomCreated, "A", time.Now(), nil))
	_ = r.Publish(context.Background(), New(RoomJoined, "A", time.Now(), nil))
	require.Equal(t, []Type{RoomCreated, RoomJoined}, r.Types())
	require.Len(t, r.Events(), 2)
}
