// Package roomdto holds the JSON frames the spectator feed sends. They are
// a read-only projection of room.Room: player ids are not exposed.
package roomdto

import (
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/room"
)

type FrameType string

const (
	FrameSnapshot FrameType = "snapshot"
	FrameDeleted  FrameType = "deleted"
	FrameError    FrameType = "error"
)

type Frame struct {
	Type  FrameType     `json:"type"`
	Room  *RoomSnapshot `json:"room,omitempty"`
	Error *DomainError  `json:"error,omitempty"`
}

type Seat struct {
	DisplayName string `json:"displayName"`
	Connected   bool   `json:"connected"`
}

type Clock struct {
	InitialTimeMs        int64  `json:"initialTimeMs"`
	IncrementMs          int64  `json:"incrementMs"`
	Category             string `json:"category,omitempty"`
	WhiteTimeRemainingMs int64  `json:"whiteTimeRemainingMs"`
	BlackTimeRemainingMs int64  `json:"blackTimeRemainingMs"`
	LastMoveTimestamp    int64  `json:"lastMoveTimestamp"`
}

type RoomSnapshot struct {
	Rev        int64    `json:"rev"`
	Code       string   `json:"code"`
	Status     string   `json:"status"`
	White      *Seat    `json:"white,omitempty"`
	Black      *Seat    `json:"black,omitempty"`
	Position   string   `json:"position"`
	Turn       string   `json:"turn"`
	GameStatus string   `json:"gameStatus"`
	Winner     string   `json:"winner,omitempty"`
	MovesSAN   []string `json:"movesSan"`
	MovesUCI   []string `json:"movesUci"`
	LastMove   *Move    `json:"lastMove,omitempty"`
	Clock      *Clock   `json:"clock,omitempty"`
}

type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	SAN       string `json:"san"`
	Promotion string `json:"promotion,omitempty"`
}

func Snapshot(r *room.Room) Frame {
	return Frame{Type: FrameSnapshot, Room: FromRoom(r)}
}

func Deleted() Frame { return Frame{Type: FrameDeleted} }

func Failure(code, msg string, retryable bool) Frame {
	return Frame{Type: FrameError, Error: &DomainError{Code: code, Message: msg, Retryable: retryable}}
}

// FromRoom returns nil for a nil room.
func FromRoom(r *room.Room) *RoomSnapshot {
	if r == nil {
		return nil
	}
	gs := r.GameState
	s := &RoomSnapshot{
		Rev:        r.Rev,
		Code:       r.RoomCode,
		Status:     string(r.Status),
		White:      seat(r.WhitePlayer),
		Black:      seat(r.BlackPlayer),
		Position:   gs.Position,
		Turn:       string(gs.Turn),
		GameStatus: string(gs.GameStatus),
		Winner:     string(gs.Winner),
		MovesSAN:   envelope.SANs(gs.Moves),
		MovesUCI:   make([]string, 0, len(gs.Moves)),
	}
	for _, mv := range gs.Moves {
		s.MovesUCI = append(s.MovesUCI, mv.UCI())
	}
	if last := r.LastMove(); last != nil {
		s.LastMove = &Move{From: last.From, To: last.To, SAN: last.SAN, Promotion: string(last.Promotion)}
	}
	if tc := r.TimeControl; tc != nil {
		c := &Clock{InitialTimeMs: tc.InitialTimeMs, IncrementMs: tc.IncrementMs, Category: string(tc.Category)}
		c.WhiteTimeRemainingMs, _ = r.RemainingMs(domain.White)
		c.BlackTimeRemainingMs, _ = r.RemainingMs(domain.Black)
		if r.LastMoveTimestamp != nil {
			c.LastMoveTimestamp = *r.LastMoveTimestamp
		}
		s.Clock = c
	}
	return s
}

func seat(p *room.Player) *Seat {
	if p == nil {
		return nil
	}
	return &Seat{DisplayName: p.DisplayName, Connected: p.Connected}
}
