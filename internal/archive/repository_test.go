package archive

import (
	"context"
	"testing"
	"time"

	"github.com/park285/cheese-online-chess/internal/board"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/stretchr/testify/require"
)

func finishedRoom(t *testing.T, start string, moves ...[2]string) *room.Room {
	t.Helper()
	g, err := board.New(start)
	require.NoError(t, err)
	var envs []envelope.Envelope
	for _, mv := range moves {
		rec, err := g.Apply(mv[0], mv[1], domain.NoPiece)
		require.NoError(t, err, "Apply %v", mv)
		envs = append(envs, envelope.FromRecord(rec, 1))
	}
	created := time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC)
	return &room.Room{
		RoomCode:    "ABC234",
		WhitePlayer: &room.Player{ID: "w1", DisplayName: `Al "the" Pal`},
		BlackPlayer: &room.Player{ID: "b1"},
		GameState: room.GameState{
			StartPosition: g.Start(),
			Position:      g.FEN(),
			Moves:         envs,
			GameStatus:    g.Status(),
			Winner:        domain.Black,
		},
		TimeControl: &domain.TimeControl{InitialTimeMs: 300000, IncrementMs: 3000},
		Status:      room.StatusFinished,
		CreatedAt:   created.UnixMilli(),
		FinishedAt:  created.Add(90 * time.Second).UnixMilli(),
	}
}

func TestResultFor(t *testing.T) {
	cases := []struct {
		status domain.GameStatus
		winner domain.Color
		want   string
	}{
		{domain.StatusCheckmate, domain.White, "1-0"},
		{domain.StatusTimeout, domain.Black, "0-1"},
		{domain.StatusResigned, domain.Black, "0-1"},
		{domain.StatusStalemate, domain.NoColor, "1/2-1/2"},
		{domain.StatusDraw, domain.White, "1/2-1/2"},
		{domain.StatusAbandoned, domain.NoColor, "*"},
		{domain.StatusActive, domain.White, "*"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, resultFor(c.status, c.winner), "resultFor(%s,%s)", c.status, c.winner)
	}
}

func TestBuildPGNFoolsMate(t *testing.T) {
	rm := finishedRoom(t, "", [2]string{"f2", "f3"}, [2]string{"e7", "e5"}, [2]string{"g2", "g4"}, [2]string{"d8", "h4"})
	g := gameOf(rm)
	pgn := buildPGN(g)

	for _, want := range []string{
		`[Event "Online room ABC234"]`,
		`[Date "2026.05.06"]`,
		`[White "Al 'the' Pal"]`,
		`[Black "b1"]`,
		`[Result "0-1"]`,
		`[TimeControl "300+3"]`,
		`[Termination "checkmate"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		require.Contains(t, pgn, want)
	}
	require.NotContains(t, pgn, "[FEN", "standard start must not carry a FEN tag")
	require.Equal(t, 90*time.Second, g.finished.Sub(g.created))
	require.Len(t, g.uci, 4)
	require.Equal(t, "d8h4", g.uci[3])
}

func TestBuildPGNBlackToMoveStart(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	rm := finishedRoom(t, fen, [2]string{"e7", "e5"}, [2]string{"g1", "f3"})
	rm.GameState.GameStatus = domain.StatusResigned
	pgn := buildPGN(gameOf(rm))
	require.Contains(t, pgn, `[SetUp "1"]`)
	require.Contains(t, pgn, fen)
	require.Contains(t, pgn, "1... e5 2. Nf3 0-1")
}

func TestSaveRoomSkips(t *testing.T) {
	var nilRepo *Repository
	require.NoError(t, nilRepo.SaveRoom(context.Background(), &room.Room{Status: room.StatusFinished}))
	require.NoError(t, New(nil).SaveRoom(context.Background(), &room.Room{Status: room.StatusActive}))
	_, err := NewRepository("  ")
	require.Error(t, err, "expected DATABASE_URL error")
}
