// Package envelope converts moves to and from the map form stored in
// gameState.moves. Optional fields are left out of the map entirely.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/park285/cheese-online-chess/internal/board"
	"github.com/park285/cheese-online-chess/internal/domain"
)

var ErrMalformed = errors.New("malformed move envelope")

// Field names in the stored record.
const (
	keyFrom      = "from"
	keyTo        = "to"
	keyPromotion = "promotion"
	keySAN       = "san"
	keyColor     = "color"
	keyPiece     = "piece"
	keyCaptured  = "captured"
	keyTimestamp = "timestamp"
)

// Envelope is one completed move. Promotion and Captured are NoPiece when
// they do not apply; SAN may be empty and is rebuilt by Rehydrate.
type Envelope struct {
	From        string
	To          string
	Promotion   domain.PieceKind
	SAN         string
	Color       domain.Color
	Piece       domain.PieceKind
	Captured    domain.PieceKind
	TimestampMs int64
}

// FromRecord stamps an engine move with the time it was made.
func FromRecord(rec board.MoveRecord, timestampMs int64) Envelope {
	return Envelope{
		From:        rec.From,
		To:          rec.To,
		Promotion:   rec.Promotion,
		SAN:         rec.SAN,
		Color:       rec.Color,
		Piece:       rec.Piece,
		Captured:    rec.Captured,
		TimestampMs: timestampMs,
	}
}

func (e Envelope) UCI() string { return e.From + e.To + string(e.Promotion) }

func (e Envelope) Validate() error {
	if !validSquare(e.From) || !validSquare(e.To) {
		return fmt.Errorf("%w: squares %q-%q", ErrMalformed, e.From, e.To)
	}
	if e.Color != domain.NoColor && !e.Color.Valid() {
		return fmt.Errorf("%w: color %q", ErrMalformed, e.Color)
	}
	if e.Promotion != domain.NoPiece && !e.Promotion.PromotionTarget() {
		return fmt.Errorf("%w: promotion %q", ErrMalformed, e.Promotion)
	}
	if e.Captured == domain.King {
		return fmt.Errorf("%w: king cannot be captured", ErrMalformed)
	}
	if e.TimestampMs < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrMalformed)
	}
	return nil
}

// Encode returns the store form of e.
func Encode(e Envelope) (map[string]any, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	m := map[string]any{
		keyFrom:      e.From,
		keyTo:        e.To,
		keyTimestamp: e.TimestampMs,
	}
	putString(m, keySAN, e.SAN)
	putString(m, keyColor, string(e.Color))
	for key, kind := range map[string]domain.PieceKind{
		keyPiece:     e.Piece,
		keyPromotion: e.Promotion,
		keyCaptured:  e.Captured,
	} {
		letter, present, err := pieceLetter(kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if present {
			m[key] = letter
		}
	}
	return m, nil
}

// pieceLetter handles every PieceKind explicitly; unknown kinds are errors
// rather than being written through.
func pieceLetter(k domain.PieceKind) (string, bool, error) {
	switch k {
	case domain.NoPiece:
		return "", false, nil
	case domain.Pawn, domain.Knight, domain.Bishop, domain.Rook, domain.Queen, domain.King:
		return string(k), true, nil
	default:
		return "", false, fmt.Errorf("%w: piece %q", ErrMalformed, k)
	}
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

// Decode parses the store form. Numbers may arrive as float64 or
// json.Number depending on how the document was read.
func Decode(m map[string]any) (Envelope, error) {
	var e Envelope
	var err error
	if e.From, err = reqString(m, keyFrom); err != nil {
		return Envelope{}, err
	}
	if e.To, err = reqString(m, keyTo); err != nil {
		return Envelope{}, err
	}
	san, err := optString(m, keySAN)
	if err != nil {
		return Envelope{}, err
	}
	e.SAN = san

	color, err := optString(m, keyColor)
	if err != nil {
		return Envelope{}, err
	}
	if color != "" {
		c, ok := domain.ParseColor(color)
		if !ok {
			return Envelope{}, fmt.Errorf("%w: color %q", ErrMalformed, color)
		}
		e.Color = c
	}
	if e.Piece, err = optPiece(m, keyPiece); err != nil {
		return Envelope{}, err
	}
	if e.Promotion, err = optPiece(m, keyPromotion); err != nil {
		return Envelope{}, err
	}
	if e.Captured, err = optPiece(m, keyCaptured); err != nil {
		return Envelope{}, err
	}
	if e.TimestampMs, err = optInt(m, keyTimestamp); err != nil {
		return Envelope{}, err
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	m, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d, err := Decode(m)
	if err != nil {
		return err
	}
	*e = d
	return nil
}

// EncodeAll encodes a move list for a MultiUpdate field.
func EncodeAll(envs []Envelope) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(envs))
	for i, e := range envs {
		m, err := Encode(e)
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// SANs lists the recorded SAN of each move.
func SANs(envs []Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.SAN)
	}
	return out
}

func reqString(m map[string]any, key string) (string, error) {
	v, err := optString(m, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%w: missing %s", ErrMalformed, key)
	}
	return v, nil
}

func optString(m map[string]any, key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrMalformed, key, raw)
	}
	return s, nil
}

func optPiece(m map[string]any, key string) (domain.PieceKind, error) {
	s, err := optString(m, key)
	if err != nil || s == "" {
		return domain.NoPiece, err
	}
	k, ok := domain.ParsePieceKind(s)
	if !ok {
		return domain.NoPiece, fmt.Errorf("%w: %s %q", ErrMalformed, key, s)
	}
	return k, nil
}

func optInt(m map[string]any, key string) (int64, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s not integral", ErrMalformed, key)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrMalformed, key, raw)
	}
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
