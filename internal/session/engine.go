package session

import (
	"github.com/park285/cheese-online-chess/internal/board"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
)

// Engine is the rules engine as seen by the controller.
type Engine interface {
	Apply(from, to string, promo domain.PieceKind) (board.MoveRecord, error)
	LegalDestinations(sq string) []string
	PieceAt(sq string) (board.Piece, bool)
	IsPromotion(from, to string) bool
	Turn() domain.Color
	Status() domain.GameStatus
	FEN() string
	Load(fen string) error
	UndoLast() (board.MoveRecord, bool)
}

// ReplayFunc builds an engine positioned after moves, played from start.
type ReplayFunc func(start string, moves []envelope.Envelope) (Engine, error)

var _ Engine = (*board.Game)(nil)

func boardReplay(start string, moves []envelope.Envelope) (Engine, error) {
	g, _, err := envelope.Rehydrate(start, moves)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func loadPosition(fen string) (Engine, error) {
	return board.New(fen)
}
