package room

import (
	"encoding/json"
	"fmt"

	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
)

// Status is the room lifecycle: waiting → active → finished, never back.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

func (s Status) order() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusActive:
		return 2
	case StatusFinished:
		return 3
	default:
		return 0
	}
}

// Follows reports whether moving from prev to s keeps the lifecycle order.
func (s Status) Follows(prev Status) bool { return s.order() >= prev.order() && s.order() > 0 }

type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Connected   bool   `json:"connected"`
}

type GameState struct {
	StartPosition string              `json:"startPosition"`
	Position      string              `json:"position"`
	Moves         []envelope.Envelope `json:"moves,omitempty"`
	Turn          domain.Color        `json:"turn"`
	GameStatus    domain.GameStatus   `json:"gameStatus"`
	Winner        domain.Color        `json:"winner,omitempty"`
}

// Room is the shared record stored at rooms/<code>. The three clock fields
// are present exactly when TimeControl is.
type Room struct {
	Rev                  int64               `json:"rev"`
	RoomCode             string              `json:"roomCode"`
	HostID               string              `json:"hostId"`
	HostColor            domain.Color        `json:"hostColor"`
	WhitePlayer          *Player             `json:"whitePlayer,omitempty"`
	BlackPlayer          *Player             `json:"blackPlayer,omitempty"`
	GameState            GameState           `json:"gameState"`
	TimeControl          *domain.TimeControl `json:"timeControl,omitempty"`
	WhiteTimeRemainingMs *int64              `json:"whiteTimeRemainingMs,omitempty"`
	BlackTimeRemainingMs *int64              `json:"blackTimeRemainingMs,omitempty"`
	LastMoveTimestamp    *int64              `json:"lastMoveTimestamp,omitempty"`
	Status               Status              `json:"status"`
	CreatedAt            int64               `json:"createdAt"`
	UpdatedAt            int64               `json:"updatedAt,omitempty"`
	FinishedAt           int64               `json:"finishedAt,omitempty"`
}

func (r *Room) Player(c domain.Color) *Player {
	switch c {
	case domain.White:
		return r.WhitePlayer
	case domain.Black:
		return r.BlackPlayer
	default:
		return nil
	}
}

func (r *Room) setPlayer(c domain.Color, p *Player) {
	if c == domain.White {
		r.WhitePlayer = p
	} else {
		r.BlackPlayer = p
	}
}

// Seat returns the color playerID sits on, NoColor if not seated.
func (r *Room) Seat(playerID string) domain.Color {
	switch {
	case playerID == "":
		return domain.NoColor
	case r.WhitePlayer != nil && r.WhitePlayer.ID == playerID:
		return domain.White
	case r.BlackPlayer != nil && r.BlackPlayer.ID == playerID:
		return domain.Black
	default:
		return domain.NoColor
	}
}

func (r *Room) Full() bool  { return r.WhitePlayer != nil && r.BlackPlayer != nil }
func (r *Room) Timed() bool { return r.TimeControl != nil }
func (r *Room) Ply() int    { return len(r.GameState.Moves) }

// RemainingMs returns the stored time for c; ok is false for untimed rooms.
func (r *Room) RemainingMs(c domain.Color) (int64, bool) {
	var p *int64
	switch c {
	case domain.White:
		p = r.WhiteTimeRemainingMs
	case domain.Black:
		p = r.BlackTimeRemainingMs
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// LastMove is nil before the first move.
func (r *Room) LastMove() *envelope.Envelope {
	if n := len(r.GameState.Moves); n > 0 {
		mv := r.GameState.Moves[n-1]
		return &mv
	}
	return nil
}

func decode(raw []byte) (*Room, error) {
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &r, nil
}

func encode(r *Room) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode room: %w", err)
	}
	return raw, nil
}

func ms(v int64) *int64 { return &v }
