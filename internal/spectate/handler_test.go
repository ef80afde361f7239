package spectate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/park285/cheese-online-chess/internal/roomstore/memstore"
	"github.com/park285/cheese-online-chess/pkg/roomdto"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newServer(t *testing.T) (*room.Manager, *memstore.Store, *Handler, *httptest.Server) {
	t.Helper()
	store := memstore.New()
	m := room.NewManager(store)
	h := NewHandler(m, WithPingInterval(time.Hour))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return m, store, h, srv
}

func dial(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + code + "/feed"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readUntil returns the first frame matching ok, failing after two seconds.
func readUntil(t *testing.T, conn *websocket.Conn, ok func(roomdto.Frame) bool) roomdto.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var f roomdto.Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if ok(f) {
			return f
		}
	}
}

func TestFeedFollowsRoomUntilDeleted(t *testing.T) {
	m, _, h, srv := newServer(t)
	ctx := context.Background()
	code, err := m.CreateRoom(ctx, "host", "Ann", domain.White, "", nil)
	require.NoError(t, err)

	conn := dial(t, srv, strings.ToLower(code))
	f := readUntil(t, conn, func(roomdto.Frame) bool { return true })
	require.Equal(t, roomdto.FrameSnapshot, f.Type)
	require.Equal(t, code, f.Room.Code)
	require.Eventually(t, func() bool { return h.Viewers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = m.JoinRoom(ctx, code, "guest", "Bo")
	require.NoError(t, err)
	f = readUntil(t, conn, func(f roomdto.Frame) bool { return f.Room != nil && f.Room.Status == string(room.StatusActive) })
	require.Equal(t, "Bo", f.Room.Black.DisplayName)

	require.NoError(t, m.DeleteRoom(ctx, code))
	readUntil(t, conn, func(f roomdto.Frame) bool { return f.Type == roomdto.FrameDeleted })

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _, err = conn.Read(rctx)
	require.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	require.Eventually(t, func() bool { return h.Viewers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedRejectsBadRequests(t *testing.T) {
	_, store, _, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/rooms/nope/feed")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/rooms/ABCDEF/feed")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	store.InjectFailures(1)
	resp, err = http.Get(srv.URL + "/rooms/ABCDEF/feed")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	_, _, _, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 0, body["viewers"])
}
