package aimove

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-online-chess/internal/obslog"
)

const uciReadyTimeout = 4 * time.Second

// uciLevel is how hard a local engine plays at one difficulty.
type uciLevel struct {
	Skill    int
	MoveTime time.Duration
}

var defaultUCILevels = map[Difficulty]uciLevel{
	Easy:   {Skill: 1, MoveTime: 50 * time.Millisecond},
	Medium: {Skill: 8, MoveTime: 200 * time.Millisecond},
	Hard:   {Skill: 20, MoveTime: time.Second},
}

// UCIEngine suggests moves with a local UCI engine such as stockfish.
// Searches are serialized; one engine serves all rooms.
type UCIEngine struct {
	w      io.Writer
	lines  chan string
	closer func() error

	mu     sync.Mutex
	levels map[Difficulty]uciLevel
	skill  int
}

// StartUCI launches binaryPath and waits for it to become ready.
func StartUCI(ctx context.Context, binaryPath string) (*UCIEngine, error) {
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	e, err := NewUCIEngine(ctx, stdout, stdin, func() error {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		return cmd.Wait()
	})
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return e, nil
}

// NewUCIEngine speaks UCI over r/w. closer, if set, is called by Close.
func NewUCIEngine(ctx context.Context, r io.Reader, w io.Writer, closer func() error) (*UCIEngine, error) {
	e := &UCIEngine{
		w:      w,
		lines:  make(chan string, 64),
		closer: closer,
		levels: defaultUCILevels,
		skill:  -1,
	}
	go e.pump(r)

	ictx, cancel := context.WithTimeout(ctx, uciReadyTimeout)
	defer cancel()
	if err := e.send("uci"); err != nil {
		return nil, err
	}
	if err := e.await(ictx, "uciok"); err != nil {
		return nil, fmt.Errorf("wait uciok: %w", err)
	}
	if err := e.ready(ictx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *UCIEngine) pump(r io.Reader) {
	defer close(e.lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		e.lines <- strings.TrimSpace(sc.Text())
	}
}

func (e *UCIEngine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

func (e *UCIEngine) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	if strings.TrimSpace(req.FEN) == "" {
		return Suggestion{}, fmt.Errorf("aimove: fen is required")
	}
	lvl, ok := e.levels[req.Difficulty]
	if !ok {
		lvl = e.levels[Medium]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if lvl.Skill != e.skill {
		if err := e.send(fmt.Sprintf("setoption name Skill Level value %d", lvl.Skill)); err != nil {
			return Suggestion{}, err
		}
		e.skill = lvl.Skill
	}
	if err := e.send("position fen " + req.FEN); err != nil {
		return Suggestion{}, err
	}
	if err := e.send(fmt.Sprintf("go movetime %d", lvl.MoveTime.Milliseconds())); err != nil {
		return Suggestion{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, 3*lvl.MoveTime+2*time.Second)
	defer cancel()
	for {
		line, err := e.next(sctx)
		if err != nil {
			// the engine is still searching; stop it so the next request
			// does not read this search's bestmove
			_ = e.send("stop")
			dctx, dcancel := context.WithTimeout(context.Background(), uciReadyTimeout)
			_ = e.await(dctx, "bestmove")
			dcancel()
			return Suggestion{}, fmt.Errorf("wait bestmove: %w", err)
		}
		if !strings.HasPrefix(line, "bestmove") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 || parts[1] == "(none)" {
			return Suggestion{}, ErrNoLegalMoves
		}
		return Suggestion{Move: parts[1]}, nil
	}
}

func (e *UCIEngine) ready(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	if err := e.await(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (e *UCIEngine) send(cmd string) error {
	if _, err := io.WriteString(e.w, cmd+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", strings.Fields(cmd)[0], err)
	}
	return nil
}

func (e *UCIEngine) await(ctx context.Context, token string) error {
	for {
		line, err := e.next(ctx)
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, token) {
			return nil
		}
	}
}

func (e *UCIEngine) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-e.lines:
		if !ok {
			obslog.Named("aimove").Warn("uci_engine_exited")
			return "", io.ErrUnexpectedEOF
		}
		return line, nil
	}
}

var _ Suggester = (*UCIEngine)(nil)
var _ Suggester = (*Client)(nil)
