package roomdto

import (
	"encoding/json"
	"testing"

	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/stretchr/testify/require"
)

func TestFromRoomHidesPlayerIDs(t *testing.T) {
	w, b, last := int64(1000), int64(2000), int64(42)
	r := &room.Room{
		Rev:         3,
		RoomCode:    "ABCDEF",
		WhitePlayer: &room.Player{ID: "secret-w", DisplayName: "Ann", Connected: true},
		BlackPlayer: &room.Player{ID: "secret-b", DisplayName: "Bo"},
		GameState: room.GameState{
			Position:   "fen",
			Turn:       domain.White,
			GameStatus: domain.StatusActive,
			Moves: []envelope.Envelope{
				{From: "e2", To: "e4", SAN: "e4"},
				{From: "a2", To: "a1", SAN: "a1=Q", Promotion: domain.Queen},
			},
		},
		TimeControl:          &domain.TimeControl{InitialTimeMs: 3000, IncrementMs: 2, Category: domain.CategoryBullet},
		WhiteTimeRemainingMs: &w,
		BlackTimeRemainingMs: &b,
		LastMoveTimestamp:    &last,
		Status:               room.StatusActive,
	}
	f := Snapshot(r)
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret", "player id leaked")

	s := f.Room
	require.Equal(t, "Ann", s.White.DisplayName)
	require.True(t, s.White.Connected)
	require.False(t, s.Black.Connected)
	require.Equal(t, []string{"e2e4", "a2a1q"}, s.MovesUCI)
	require.Equal(t, []string{"e4", "a1=Q"}, s.MovesSAN)
	require.NotNil(t, s.LastMove)
	require.Equal(t, "q", s.LastMove.Promotion)
	require.NotNil(t, s.Clock)
	require.EqualValues(t, 1000, s.Clock.WhiteTimeRemainingMs)
	require.EqualValues(t, 2000, s.Clock.BlackTimeRemainingMs)
	require.EqualValues(t, 42, s.Clock.LastMoveTimestamp)
}

func TestUntimedAndEmpty(t *testing.T) {
	s := FromRoom(&room.Room{RoomCode: "ABCDEF", Status: room.StatusWaiting})
	require.Nil(t, s.Clock)
	require.Nil(t, s.LastMove)
	require.Nil(t, s.White)
	require.Nil(t, FromRoom(nil))
	require.Equal(t, FrameDeleted, Deleted().Type)
	require.EqualError(t, Failure("room.not_found", "", false).Error, "room.not_found")
}
