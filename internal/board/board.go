// Package board adapts github.com/corentings/chess/v2 to the square/letter
// vocabulary used by room records.
package board

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-online-chess/internal/domain"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrBadPosition = errors.New("invalid position")
)

// StartFEN is the standard initial setup.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var squares = func() map[string]nchess.Square {
	files := []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
	ranks := []nchess.Rank{nchess.Rank1, nchess.Rank2, nchess.Rank3, nchess.Rank4, nchess.Rank5, nchess.Rank6, nchess.Rank7, nchess.Rank8}
	out := make(map[string]nchess.Square, 64)
	for _, f := range files {
		for _, r := range ranks {
			sq := nchess.NewSquare(f, r)
			out[sq.String()] = sq
		}
	}
	return out
}()

// Piece is the occupant of a square.
type Piece struct {
	Kind  domain.PieceKind
	Color domain.Color
}

// MoveRecord describes one applied move.
type MoveRecord struct {
	From      string
	To        string
	Promotion domain.PieceKind
	SAN       string
	Color     domain.Color
	Piece     domain.PieceKind
	Captured  domain.PieceKind
	Check     bool
}

// UCI returns the long algebraic form, e.g. e7e8q.
func (m MoveRecord) UCI() string { return m.From + m.To + string(m.Promotion) }

// Candidate is a legal move that has not been applied.
type Candidate struct {
	From      string
	To        string
	Promotion domain.PieceKind
}

// Game wraps a rules-engine game and keeps its own history so that
// positions can be rebuilt from the starting FEN.
type Game struct {
	start   string
	g       *nchess.Game
	history []MoveRecord
}

// New starts a game from fen; "" or "startpos" means the standard setup.
func New(fen string) (*Game, error) {
	start, g, err := newEngineGame(fen)
	if err != nil {
		return nil, err
	}
	return &Game{start: start, g: g}, nil
}

func newEngineGame(fen string) (string, *nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" || fen == StartFEN {
		return StartFEN, nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return fen, nchess.NewGame(opt), nil
}

// Load replaces the game with the given position and clears history.
func (b *Game) Load(fen string) error {
	start, g, err := newEngineGame(fen)
	if err != nil {
		return err
	}
	b.start, b.g, b.history = start, g, nil
	return nil
}

// Reset returns to the standard initial setup.
func (b *Game) Reset() {
	_ = b.Load(StartFEN)
}

// Apply plays from→to. promo must be set for a pawn reaching the last rank.
func (b *Game) Apply(from, to string, promo domain.PieceKind) (MoveRecord, error) {
	from, to = strings.ToLower(strings.TrimSpace(from)), strings.ToLower(strings.TrimSpace(to))
	if _, ok := squares[from]; !ok {
		return MoveRecord{}, fmt.Errorf("%w: bad square %q", ErrIllegalMove, from)
	}
	if _, ok := squares[to]; !ok {
		return MoveRecord{}, fmt.Errorf("%w: bad square %q", ErrIllegalMove, to)
	}
	if promo != domain.NoPiece && !promo.PromotionTarget() {
		return MoveRecord{}, fmt.Errorf("%w: bad promotion %q", ErrIllegalMove, promo)
	}
	if b.g.Outcome() != nchess.NoOutcome {
		return MoveRecord{}, fmt.Errorf("%w: game is over", ErrIllegalMove)
	}

	uci := from + to + string(promo)
	pos := b.g.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	if !b.isLegal(mv) {
		return MoveRecord{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	rec := MoveRecord{
		From:      from,
		To:        to,
		Promotion: promo,
		SAN:       nchess.AlgebraicNotation{}.Encode(pos, mv),
	}
	if p := pos.Board().Piece(mv.S1()); p != nchess.NoPiece {
		rec.Color = colorOf(p.Color())
		rec.Piece = kindOf(p.Type())
	}
	if p := pos.Board().Piece(mv.S2()); p != nchess.NoPiece {
		rec.Captured = kindOf(p.Type())
	} else if mv.HasTag(nchess.EnPassant) {
		rec.Captured = domain.Pawn
	}
	if err := b.g.Move(mv, nil); err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	rec.Check = mv.HasTag(nchess.Check) || strings.HasSuffix(rec.SAN, "+")
	if last := lastMove(b.g); last != nil && last.HasTag(nchess.Check) {
		rec.Check = true
	}
	b.history = append(b.history, rec)
	return rec, nil
}

// ApplySAN plays a move given in standard algebraic notation.
func (b *Game) ApplySAN(san string) (MoveRecord, error) {
	san = strings.TrimSpace(san)
	if san == "" {
		return MoveRecord{}, fmt.Errorf("%w: empty", ErrIllegalMove)
	}
	mv, err := nchess.AlgebraicNotation{}.Decode(b.g.Position(), san)
	if err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %s", ErrIllegalMove, san)
	}
	return b.Apply(mv.S1().String(), mv.S2().String(), kindOf(mv.Promo()))
}

// LegalDestinations lists target squares for the piece on sq, sorted.
func (b *Game) LegalDestinations(sq string) []string {
	s, ok := squares[strings.ToLower(strings.TrimSpace(sq))]
	if !ok || b.g.Outcome() != nchess.NoOutcome {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, mv := range b.g.ValidMoves() {
		if mv.S1() != s {
			continue
		}
		to := mv.S2().String()
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// LegalMoves lists every legal move in the current position.
func (b *Game) LegalMoves() []Candidate {
	if b.g.Outcome() != nchess.NoOutcome {
		return nil
	}
	var out []Candidate
	for _, mv := range b.g.ValidMoves() {
		out = append(out, Candidate{From: mv.S1().String(), To: mv.S2().String(), Promotion: kindOf(mv.Promo())})
	}
	return out
}

func (b *Game) PieceAt(sq string) (Piece, bool) {
	s, ok := squares[strings.ToLower(strings.TrimSpace(sq))]
	if !ok {
		return Piece{}, false
	}
	p := b.g.Position().Board().Piece(s)
	if p == nchess.NoPiece {
		return Piece{}, false
	}
	return Piece{Kind: kindOf(p.Type()), Color: colorOf(p.Color())}, true
}

// IsPromotion reports whether moving the piece on from to to is a pawn
// reaching its last rank.
func (b *Game) IsPromotion(from, to string) bool {
	p, ok := b.PieceAt(from)
	if !ok || p.Kind != domain.Pawn || len(to) != 2 {
		return false
	}
	return (p.Color == domain.White && to[1] == '8') || (p.Color == domain.Black && to[1] == '1')
}

func (b *Game) Turn() domain.Color { return colorOf(b.g.Position().Turn()) }

func (b *Game) FEN() string { return b.g.FEN() }

// Start is the FEN the current history is replayed from.
func (b *Game) Start() string { return b.start }

func (b *Game) Status() domain.GameStatus {
	if b.g.Outcome() == nchess.NoOutcome {
		if inCheck(b.g.Position()) {
			return domain.StatusCheck
		}
		return domain.StatusActive
	}
	switch b.g.Method() {
	case nchess.Checkmate:
		return domain.StatusCheckmate
	case nchess.Stalemate:
		return domain.StatusStalemate
	case nchess.Resignation:
		return domain.StatusResigned
	default:
		return domain.StatusDraw
	}
}

// History returns a copy of the moves applied since the last Load.
func (b *Game) History() []MoveRecord { return append([]MoveRecord(nil), b.history...) }

// UndoLast takes back the most recent move by replaying the rest.
func (b *Game) UndoLast() (MoveRecord, bool) {
	n := len(b.history)
	if n == 0 {
		return MoveRecord{}, false
	}
	last := b.history[n-1]
	rebuilt, err := replay(b.start, b.history[:n-1])
	if err != nil {
		return MoveRecord{}, false
	}
	*b = *rebuilt
	return last, true
}

// Clone returns an independent copy with the same start and history.
func (b *Game) Clone() (*Game, error) { return replay(b.start, b.history) }

func replay(start string, moves []MoveRecord) (*Game, error) {
	g, err := New(start)
	if err != nil {
		return nil, err
	}
	for i, mv := range moves {
		if _, err := g.Apply(mv.From, mv.To, mv.Promotion); err != nil {
			return nil, fmt.Errorf("replay ply %d: %w", i+1, err)
		}
	}
	return g, nil
}

// inCheck reports whether the king of the side to move is attacked. It
// reads the board only, so it also holds for positions loaded from FEN.
func inCheck(pos *nchess.Position) bool {
	bd := pos.Board()
	turn := pos.Turn()
	opp := turn.Other()
	kf, kr := -1, -1
	for sq, p := range bd.SquareMap() {
		if p.Type() == nchess.King && p.Color() == turn {
			kf, kr = int(sq.File()), int(sq.Rank())
			break
		}
	}
	if kf < 0 {
		return false
	}
	at := func(f, r int) nchess.Piece {
		if f < 0 || f > 7 || r < 0 || r > 7 {
			return nchess.NoPiece
		}
		return bd.Piece(nchess.NewSquare(nchess.File(f), nchess.Rank(r)))
	}
	is := func(p nchess.Piece, types ...nchess.PieceType) bool {
		if p == nchess.NoPiece || p.Color() != opp {
			return false
		}
		for _, t := range types {
			if p.Type() == t {
				return true
			}
		}
		return false
	}

	pawnRank := kr + 1
	if turn == nchess.Black {
		pawnRank = kr - 1
	}
	if is(at(kf-1, pawnRank), nchess.Pawn) || is(at(kf+1, pawnRank), nchess.Pawn) {
		return true
	}
	for _, d := range [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}} {
		if is(at(kf+d[0], kr+d[1]), nchess.Knight) {
			return true
		}
	}
	for _, d := range [8][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}} {
		if is(at(kf+d[0], kr+d[1]), nchess.King) {
			return true
		}
		slider := []nchess.PieceType{nchess.Rook, nchess.Queen}
		if d[0] != 0 && d[1] != 0 {
			slider = []nchess.PieceType{nchess.Bishop, nchess.Queen}
		}
		for f, r := kf+d[0], kr+d[1]; f >= 0 && f <= 7 && r >= 0 && r <= 7; f, r = f+d[0], r+d[1] {
			p := at(f, r)
			if p == nchess.NoPiece {
				continue
			}
			if is(p, slider...) {
				return true
			}
			break
		}
	}
	return false
}

func (b *Game) isLegal(mv *nchess.Move) bool {
	for _, vm := range b.g.ValidMoves() {
		if vm.S1() == mv.S1() && vm.S2() == mv.S2() && vm.Promo() == mv.Promo() {
			return true
		}
	}
	return false
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorOf(c nchess.Color) domain.Color {
	switch c {
	case nchess.White:
		return domain.White
	case nchess.Black:
		return domain.Black
	default:
		return domain.NoColor
	}
}

func kindOf(t nchess.PieceType) domain.PieceKind {
	switch t {
	case nchess.King:
		return domain.King
	case nchess.Queen:
		return domain.Queen
	case nchess.Rook:
		return domain.Rook
	case nchess.Bishop:
		return domain.Bishop
	case nchess.Knight:
		return domain.Knight
	case nchess.Pawn:
		return domain.Pawn
	default:
		return domain.NoPiece
	}
}
