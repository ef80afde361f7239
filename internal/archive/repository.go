// Package archive keeps finished rooms in Postgres as PGN before the
// expiry sweep deletes them from the room store.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/room"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS chess_room_games (
	room_code      TEXT        NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	white_id       TEXT        NOT NULL DEFAULT '',
	white_name     TEXT        NOT NULL DEFAULT '',
	black_id       TEXT        NOT NULL DEFAULT '',
	black_name     TEXT        NOT NULL DEFAULT '',
	time_control   TEXT        NOT NULL DEFAULT '',
	result         TEXT        NOT NULL,
	termination    TEXT        NOT NULL,
	start_position TEXT        NOT NULL,
	final_position TEXT        NOT NULL,
	moves_uci      JSONB       NOT NULL,
	moves_san      JSONB       NOT NULL,
	pgn            TEXT        NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT      NOT NULL,
	PRIMARY KEY (room_code, created_at)
)`

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// New wraps an already opened database.
func New(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveRoom upserts a finished room. Rooms that are not finished are
// skipped.
func (r *Repository) SaveRoom(ctx context.Context, rm *room.Room) error {
	if r == nil || r.db == nil || rm == nil || rm.Status != room.StatusFinished {
		return nil
	}
	g := gameOf(rm)
	uciRaw, err := json.Marshal(g.uci)
	if err != nil {
		return err
	}
	sanRaw, err := json.Marshal(g.san)
	if err != nil {
		return err
	}

	q := `INSERT INTO chess_room_games (
		room_code, created_at, white_id, white_name, black_id, black_name,
		time_control, result, termination, start_position, final_position,
		moves_uci, moves_san, pgn, finished_at, duration_ms
	  ) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
	  ) ON CONFLICT (room_code, created_at) DO UPDATE SET
		white_id=EXCLUDED.white_id,
		white_name=EXCLUDED.white_name,
		black_id=EXCLUDED.black_id,
		black_name=EXCLUDED.black_name,
		time_control=EXCLUDED.time_control,
		result=EXCLUDED.result,
		termination=EXCLUDED.termination,
		final_position=EXCLUDED.final_position,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		finished_at=EXCLUDED.finished_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		rm.RoomCode, g.created,
		g.whiteID, g.whiteName, g.blackID, g.blackName,
		g.timeControl, g.result, g.termination,
		rm.GameState.StartPosition, rm.GameState.Position,
		string(uciRaw), string(sanRaw), buildPGN(g),
		g.finished, g.finished.Sub(g.created).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("archive room %s: %w", rm.RoomCode, err)
	}
	return nil
}

// game is the flattened view of a room used for the row and the PGN.
type game struct {
	code        string
	whiteID     string
	whiteName   string
	blackID     string
	blackName   string
	timeControl string
	result      string
	termination string
	start       string
	uci         []string
	san         []string
	created     time.Time
	finished    time.Time
}

func gameOf(rm *room.Room) game {
	g := game{
		code:        rm.RoomCode,
		result:      resultFor(rm.GameState.GameStatus, rm.GameState.Winner),
		termination: string(rm.GameState.GameStatus),
		start:       rm.GameState.StartPosition,
		san:         envelope.SANs(rm.GameState.Moves),
		created:     time.UnixMilli(rm.CreatedAt).UTC(),
		finished:    time.UnixMilli(rm.FinishedAt).UTC(),
	}
	if rm.FinishedAt == 0 {
		g.finished = time.UnixMilli(rm.UpdatedAt).UTC()
	}
	if g.finished.Before(g.created) {
		g.finished = g.created
	}
	if p := rm.WhitePlayer; p != nil {
		g.whiteID, g.whiteName = p.ID, p.DisplayName
	}
	if p := rm.BlackPlayer; p != nil {
		g.blackID, g.blackName = p.ID, p.DisplayName
	}
	if tc := rm.TimeControl; tc != nil {
		g.timeControl = fmt.Sprintf("%d+%d", tc.InitialTimeMs/1000, tc.IncrementMs/1000)
	}
	g.uci = make([]string, 0, len(rm.GameState.Moves))
	for _, mv := range rm.GameState.Moves {
		g.uci = append(g.uci, mv.UCI())
	}
	return g
}

// resultFor maps a terminal status to a PGN result token.
func resultFor(status domain.GameStatus, winner domain.Color) string {
	switch status {
	case domain.StatusStalemate, domain.StatusDraw:
		return "1/2-1/2"
	case domain.StatusCheckmate, domain.StatusResigned, domain.StatusTimeout, domain.StatusAbandoned:
		switch winner {
		case domain.White:
			return "1-0"
		case domain.Black:
			return "0-1"
		}
	}
	return "*"
}

func buildPGN(g game) string {
	var b strings.Builder
	date := g.finished
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(&b, "[Event \"Online room %s\"]\n", sanitizePGN(g.code))
	b.WriteString("[Site \"cheese-online-chess\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(nameOr(g.whiteName, g.whiteID)))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(nameOr(g.blackName, g.blackID)))
	fmt.Fprintf(&b, "[Result \"%s\"]\n", g.result)
	if g.timeControl != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", g.timeControl)
	}
	if g.termination != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(g.termination))
	}
	if g.start != "" && !isStandardStart(g.start) {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", g.start)
	}
	b.WriteString("\n")

	// black to move in the start position shifts numbering by one ply
	offset, number := 0, 1
	if fields := strings.Fields(g.start); len(fields) >= 6 {
		if fields[1] == "b" {
			offset = 1
		}
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			number = n
		}
	}
	for i, san := range g.san {
		ply := i + offset
		switch {
		case ply%2 == 0:
			fmt.Fprintf(&b, "%d. ", number+ply/2)
		case i == 0:
			fmt.Fprintf(&b, "%d... ", number+ply/2)
		}
		b.WriteString(strings.TrimSpace(san))
		b.WriteString(" ")
	}
	b.WriteString(g.result)
	return b.String()
}

func isStandardStart(fen string) bool {
	f := strings.Fields(fen)
	return len(f) >= 2 && f[0] == "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR" && f[1] == "w"
}

func nameOr(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
