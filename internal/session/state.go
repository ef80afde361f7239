package session

import (
	"time"

	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/room"
)

// State is where the controller stands relative to a room.
type State int

const (
	StateIdle State = iota
	StateCreating
	StateJoining
	StateWaiting
	StateActive
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreating:
		return "creating"
	case StateJoining:
		return "joining"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

func stateFor(s room.Status) State {
	switch s {
	case room.StatusWaiting:
		return StateWaiting
	case room.StatusActive:
		return StateActive
	case room.StatusFinished:
		return StateFinished
	default:
		return StateIdle
	}
}

// Action is a local UI intent. The set is closed: ClickSquare,
// ChoosePromotion, Resign and Leave.
type Action interface{ action() }

type ClickSquare struct{ Square string }
type ChoosePromotion struct{ Piece domain.PieceKind }
type Resign struct{}
type Leave struct{}

func (ClickSquare) action()     {}
func (ChoosePromotion) action() {}
func (Resign) action()          {}
func (Leave) action()           {}

// View is everything a client renders, rebuilt from the last snapshot.
type View struct {
	State    State
	RoomCode string
	PlayerID string
	Color    domain.Color
	IsHost   bool

	Position   string
	Turn       domain.Color
	MyTurn     bool
	GameStatus domain.GameStatus
	Winner     domain.Color
	Moves      []envelope.Envelope
	LastMove   *envelope.Envelope

	Selected     string
	Destinations []string
	// PromotionFrom/To are set while a promotion choice is pending.
	PromotionFrom string
	PromotionTo   string

	Opponent    *room.Player
	TimeControl *domain.TimeControl
	WhiteTime   time.Duration
	BlackTime   time.Duration

	Notice string
	Err    error
}

func (v View) PromotionPending() bool { return v.PromotionFrom != "" }
