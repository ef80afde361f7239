package envelope

import (
	"fmt"

	"github.com/park285/cheese-online-chess/internal/board"
)

// Rehydrate replays envs from start and returns the resulting game along
// with envelopes whose SAN and piece metadata come from the engine.
// Timestamps are kept as recorded.
func Rehydrate(start string, envs []Envelope) (*board.Game, []Envelope, error) {
	g, err := board.New(start)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Envelope, 0, len(envs))
	for i, e := range envs {
		rec, err := g.Apply(e.From, e.To, e.Promotion)
		if err != nil {
			return nil, nil, fmt.Errorf("rehydrate ply %d (%s): %w", i+1, e.UCI(), err)
		}
		out = append(out, FromRecord(rec, e.TimestampMs))
	}
	return g, out, nil
}
