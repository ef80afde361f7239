package aimove

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/park285/cheese-online-chess/internal/board"
	"github.com/stretchr/testify/require"
)

// fakeEngine answers the UCI commands the engine client sends.
type fakeEngine struct {
	mu   sync.Mutex
	cmds []string
	best string
}

func (f *fakeEngine) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func startFake(t *testing.T, best string) (*UCIEngine, *fakeEngine) {
	t.Helper()
	f := &fakeEngine{best: best}
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go func() {
		defer outW.Close()
		sc := bufio.NewScanner(inR)
		for sc.Scan() {
			cmd := sc.Text()
			f.mu.Lock()
			f.cmds = append(f.cmds, cmd)
			f.mu.Unlock()
			var reply string
			switch {
			case cmd == "uci":
				reply = "id name fake\nuciok\n"
			case cmd == "isready":
				reply = "readyok\n"
			case strings.HasPrefix(cmd, "go "):
				reply = fmt.Sprintf("info depth 1 score cp 20 pv %s\nbestmove %s\n", f.best, f.best)
			}
			if reply != "" {
				if _, err := io.WriteString(outW, reply); err != nil {
					return
				}
			}
		}
	}()
	e, err := NewUCIEngine(context.Background(), outR, inW, func() error {
		_ = inW.Close()
		return outR.Close()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, f
}

func TestUCIEngineSuggests(t *testing.T) {
	e, f := startFake(t, "e2e4")

	s, err := e.Suggest(context.Background(), Request{FEN: board.StartFEN, Difficulty: Hard})
	require.NoError(t, err)
	require.Equal(t, "e2e4", s.Move)

	_, err = e.Suggest(context.Background(), Request{FEN: board.StartFEN, Difficulty: Hard})
	require.NoError(t, err)

	var skills int
	for _, c := range f.commands() {
		if strings.HasPrefix(c, "setoption name Skill Level") {
			skills++
			require.Equal(t, "setoption name Skill Level value 20", c)
		}
	}
	require.Equal(t, 1, skills, "skill is only sent when it changes")
	require.Contains(t, f.commands(), "position fen "+board.StartFEN)
	require.Contains(t, f.commands(), "go movetime 1000")
}

func TestUCIEngineNoMove(t *testing.T) {
	e, _ := startFake(t, "(none)")
	_, err := e.Suggest(context.Background(), Request{FEN: board.StartFEN})
	require.ErrorIs(t, err, ErrNoLegalMoves)
}

func TestUCIEngineThroughPlayer(t *testing.T) {
	e, _ := startFake(t, "g1f3")
	g, err := board.New("")
	require.NoError(t, err)
	mv, fb, err := NewPlayer(e).NextMove(context.Background(), g, Easy)
	require.NoError(t, err)
	require.False(t, fb)
	require.Equal(t, board.Candidate{From: "g1", To: "f3"}, mv)
}

func TestUCIEngineExited(t *testing.T) {
	e, _ := startFake(t, "e2e4")
	require.NoError(t, e.Close())
	_, err := e.Suggest(context.Background(), Request{FEN: board.StartFEN})
	require.Error(t, err)
}
