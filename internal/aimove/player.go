package aimove

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/park285/cheese-online-chess/internal/board"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/obslog"
	"go.uber.org/zap"
)

var ErrNoLegalMoves = staticErr("no legal moves")

type staticErr string

func (e staticErr) Error() string { return string(e) }

// Player turns suggestions into moves that are legal in the given game.
type Player struct {
	s    Suggester
	pick func(n int) int
}

type PlayerOption func(*Player)

// WithPicker replaces the random index source of the fallback.
func WithPicker(fn func(n int) int) PlayerOption {
	return func(p *Player) {
		if fn != nil {
			p.pick = fn
		}
	}
}

func NewPlayer(s Suggester, opts ...PlayerOption) *Player {
	p := &Player{s: s, pick: rand.IntN}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NextMove returns a legal move for the side to move in g, leaving g
// untouched. fallback reports that the suggestion was unusable (request
// error or illegal move) and a random legal move was chosen instead.
func (p *Player) NextMove(ctx context.Context, g *board.Game, d Difficulty) (mv board.Candidate, fallback bool, err error) {
	legal := g.LegalMoves()
	if len(legal) == 0 {
		return board.Candidate{}, false, ErrNoLegalMoves
	}
	hist := g.History()
	sans := make([]string, 0, len(hist))
	for _, h := range hist {
		sans = append(sans, h.SAN)
	}

	s, err := p.s.Suggest(ctx, Request{FEN: g.FEN(), MoveHistory: sans, Difficulty: d})
	if err != nil {
		obslog.L().Warn("aimove_suggest_error", zap.Error(err))
		return legal[p.pick(len(legal))], true, nil
	}
	if c, ok := resolve(g, s); ok {
		return c, false, nil
	}
	obslog.L().Warn("aimove_illegal_suggestion",
		zap.String("move", s.Move),
		zap.String("from", s.From),
		zap.String("to", s.To),
		zap.String("fen", g.FEN()),
	)
	return legal[p.pick(len(legal))], true, nil
}

// resolve checks the suggestion on a copy of g.
func resolve(g *board.Game, s Suggestion) (board.Candidate, bool) {
	tryUCI := func(from, to string, promo domain.PieceKind) (board.Candidate, bool) {
		scratch, err := g.Clone()
		if err != nil {
			return board.Candidate{}, false
		}
		if promo == domain.NoPiece && scratch.IsPromotion(from, to) {
			promo = domain.Queen
		}
		rec, err := scratch.Apply(from, to, promo)
		if err != nil {
			return board.Candidate{}, false
		}
		return board.Candidate{From: rec.From, To: rec.To, Promotion: rec.Promotion}, true
	}

	promo, _ := domain.ParsePieceKind(s.Promotion)
	if s.From != "" && s.To != "" {
		if c, ok := tryUCI(strings.ToLower(s.From), strings.ToLower(s.To), promo); ok {
			return c, true
		}
	}
	mv := strings.TrimSpace(s.Move)
	if mv == "" {
		mv = strings.TrimSpace(s.SAN)
	}
	if n := len(mv); n == 4 || n == 5 {
		lower := strings.ToLower(mv)
		var pk domain.PieceKind
		if n == 5 {
			pk, _ = domain.ParsePieceKind(lower[4:])
		}
		if c, ok := tryUCI(lower[:2], lower[2:4], pk); ok {
			return c, true
		}
	}
	if mv != "" {
		scratch, err := g.Clone()
		if err == nil {
			if rec, err := scratch.ApplySAN(mv); err == nil {
				return board.Candidate{From: rec.From, To: rec.To, Promotion: rec.Promotion}, true
			}
		}
	}
	return board.Candidate{}, false
}
