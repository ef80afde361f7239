package domain

import "strings"

// Color identifies a side. Values match the room record encoding.
type Color string

const (
	NoColor Color = ""
	White   Color = "w"
	Black   Color = "b"
)

func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

func (c Color) Valid() bool { return c == White || c == Black }

func (c Color) Name() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return ""
	}
}

// ParseColor accepts w/b/white/black in any case.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w", "white":
		return White, true
	case "b", "black":
		return Black, true
	default:
		return NoColor, false
	}
}

// GameStatus is the board-level status stored under gameState.gameStatus.
type GameStatus string

const (
	StatusActive    GameStatus = "active"
	StatusCheck     GameStatus = "check"
	StatusCheckmate GameStatus = "checkmate"
	StatusStalemate GameStatus = "stalemate"
	StatusDraw      GameStatus = "draw"
	StatusResigned  GameStatus = "resigned"
	StatusTimeout   GameStatus = "timeout"
	StatusAbandoned GameStatus = "abandoned"
)

// Terminal reports whether no further moves can be played.
func (s GameStatus) Terminal() bool {
	switch s {
	case StatusCheckmate, StatusStalemate, StatusDraw, StatusResigned, StatusTimeout, StatusAbandoned:
		return true
	default:
		return false
	}
}

// PieceKind is a piece type letter as used in move records.
type PieceKind string

const (
	NoPiece PieceKind = ""
	Pawn    PieceKind = "p"
	Knight  PieceKind = "n"
	Bishop  PieceKind = "b"
	Rook    PieceKind = "r"
	Queen   PieceKind = "q"
	King    PieceKind = "k"
)

// PromotionTarget reports whether a pawn may promote to k.
func (k PieceKind) PromotionTarget() bool {
	switch k {
	case Knight, Bishop, Rook, Queen:
		return true
	default:
		return false
	}
}

func ParsePieceKind(s string) (PieceKind, bool) {
	switch k := PieceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case Pawn, Knight, Bishop, Rook, Queen, King:
		return k, true
	default:
		return NoPiece, false
	}
}
