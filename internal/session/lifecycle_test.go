package session

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/msgcat"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/stretchr/testify/require"
)

// hookedRooms runs callbacks around the lifecycle calls of a real manager.
type hookedRooms struct {
	*room.Manager
	afterCreate func()
	afterJoin   func()
	timeout     func(ctx context.Context) error
}

func (r *hookedRooms) CreateRoom(ctx context.Context, hostID, hostName string, hostColor domain.Color, initialPosition string, tc *domain.TimeControl) (string, error) {
	code, err := r.Manager.CreateRoom(ctx, hostID, hostName, hostColor, initialPosition, tc)
	if r.afterCreate != nil {
		r.afterCreate()
	}
	return code, err
}

func (r *hookedRooms) JoinRoom(ctx context.Context, code, joinerID, joinerName string) (domain.Color, error) {
	color, err := r.Manager.JoinRoom(ctx, code, joinerID, joinerName)
	if r.afterJoin != nil {
		r.afterJoin()
	}
	return color, err
}

func (r *hookedRooms) Timeout(ctx context.Context, code string, loser domain.Color) error {
	if r.timeout != nil {
		return r.timeout(ctx)
	}
	return r.Manager.Timeout(ctx, code, loser)
}

func TestLeaveDuringCreateReleasesSeat(t *testing.T) {
	h := newHarness(t)
	rooms := &hookedRooms{Manager: h.mgr}
	h.rooms = rooms
	host := h.player(t, "host")
	ctx := context.Background()
	rooms.afterCreate = func() { require.NoError(t, host.Leave(ctx)) }

	code, err := host.CreateRoom(ctx, domain.White, "", nil)
	require.NoError(t, err)
	require.Equal(t, StateIdle, host.State())

	r, err := h.mgr.Get(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, r.WhitePlayer)
	require.Equal(t, "host", r.WhitePlayer.ID)
	require.False(t, r.WhitePlayer.Connected, "abandoned host still marked connected")
}

func TestLeaveDuringJoinReleasesSeat(t *testing.T) {
	h := newHarness(t)
	rooms := &hookedRooms{Manager: h.mgr}
	h.rooms = rooms
	host := h.player(t, "host")
	guest := h.player(t, "guest")
	ctx := context.Background()

	code, err := host.CreateRoom(ctx, domain.White, "", nil)
	require.NoError(t, err)
	rooms.afterJoin = func() { require.NoError(t, guest.Leave(ctx)) }

	color, err := guest.JoinRoom(ctx, code)
	require.NoError(t, err)
	require.Equal(t, domain.Black, color)
	require.Equal(t, StateIdle, guest.State())

	r, err := h.mgr.Get(ctx, code)
	require.NoError(t, err)
	require.Equal(t, room.StatusActive, r.Status)
	require.False(t, r.BlackPlayer.Connected, "abandoned guest still marked connected")
	require.True(t, r.WhitePlayer.Connected)
}

func TestClaimTimeoutBoundsStoreWrite(t *testing.T) {
	h := newHarness(t)
	left := make(chan time.Duration, 2)
	h.rooms = &hookedRooms{Manager: h.mgr, timeout: func(ctx context.Context) error {
		// a claim without a deadline reports a negative budget
		dl, _ := ctx.Deadline()
		left <- time.Until(dl)
		<-ctx.Done()
		return ctx.Err()
	}}
	h.opts = []Option{WithClaimTimeout(50 * time.Millisecond)}
	tc := &domain.TimeControl{InitialTimeMs: 1000, Category: domain.CategoryBullet}
	host, _, code := h.startGame(t, tc, "")

	h.clk.Advance(1200 * time.Millisecond)

	select {
	case d := <-left:
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout never claimed")
	}
	eventually(t, func() bool { return host.View().Err != nil }, "claim failure surfaced")
	require.ErrorIs(t, host.View().Err, context.DeadlineExceeded)

	r, err := h.mgr.Get(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, room.StatusActive, r.Status, "unclaimed timeout ended the game")
}

func TestCatalogOverridesNotices(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rooms.yaml"), []byte("room:\n  created: \"Open table {{.Code}}\"\n"), 0o600))
	cat, err := msgcat.New(dir)
	require.NoError(t, err)

	h := newHarness(t)
	h.opts = []Option{WithCatalog(cat)}
	host := h.player(t, "host")
	code, err := host.CreateRoom(context.Background(), domain.White, "", nil)
	require.NoError(t, err)
	require.Equal(t, "Open table "+code, host.View().Notice)
}

func TestReplayBuildsEngine(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t)
	h.opts = []Option{WithReplay(func(start string, moves []envelope.Envelope) (Engine, error) {
		calls.Add(1)
		return boardReplay(start, moves)
	})}
	host, guest, _ := h.startGame(t, nil, "")
	require.Positive(t, calls.Load(), "replay not used for the active room")

	before := calls.Load()
	play(t, host, "e2", "e4")
	eventually(t, func() bool { return len(guest.View().Moves) == 1 }, "guest sees e4")
	require.Greater(t, calls.Load(), before)
}
