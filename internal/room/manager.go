// Package room owns the lifecycle of shared room records: creation, seating,
// move writes and the end of the game. All state lives in a roomstore.Store;
// the manager itself is stateless and safe for concurrent use.
package room

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-online-chess/internal/board"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/obslog"
	"github.com/park285/cheese-online-chess/internal/roomevents"
	"github.com/park285/cheese-online-chess/internal/roomstore"
	"go.uber.org/zap"
)

const maxCodeAttempts = 5

type Manager struct {
	store  roomstore.Store
	clk    clockwork.Clock
	events roomevents.Publisher
	codes  func() (string, error)
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clk = c
		}
	}
}

func WithEvents(p roomevents.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.events = p
		}
	}
}

// WithCodeSource replaces GenerateCode, mainly for collision tests.
func WithCodeSource(fn func() (string, error)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.codes = fn
		}
	}
}

func NewManager(store roomstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		clk:    clockwork.NewRealClock(),
		events: roomevents.Nop{},
		codes:  GenerateCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) now() int64 { return m.clk.Now().UnixMilli() }

// CreateRoom stores a new waiting room with the host seated on hostColor.
// initialPosition may be empty for the standard setup; tc nil means untimed.
func (m *Manager) CreateRoom(ctx context.Context, hostID, hostName string, hostColor domain.Color, initialPosition string, tc *domain.TimeControl) (string, error) {
	hostID = strings.TrimSpace(hostID)
	if hostID == "" || !hostColor.Valid() {
		return "", ErrInvalidArgs
	}
	if tc != nil {
		if err := tc.Validate(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
	}
	g, err := board.New(initialPosition)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	status := g.Status()
	if status.Terminal() {
		return "", fmt.Errorf("%w: initial position is already %s", ErrInvalidArgs, status)
	}

	now := m.now()
	r := &Room{
		HostID:    hostID,
		HostColor: hostColor,
		GameState: GameState{
			StartPosition: g.Start(),
			Position:      g.FEN(),
			Turn:          g.Turn(),
			GameStatus:    status,
		},
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.setPlayer(hostColor, &Player{ID: hostID, DisplayName: strings.TrimSpace(hostName), Connected: true})
	if tc != nil {
		t := *tc
		r.TimeControl = &t
		r.WhiteTimeRemainingMs = ms(t.InitialTimeMs)
		r.BlackTimeRemainingMs = ms(t.InitialTimeMs)
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := m.codes()
		if err != nil {
			return "", err
		}
		code = NormalizeCode(code)
		r.RoomCode = code
		raw, err := encode(r)
		if err != nil {
			return "", err
		}
		err = m.store.Create(ctx, Path(code), raw)
		if errors.Is(err, roomstore.ErrConflict) {
			obslog.L().Warn("room_code_collision", zap.String("code", code), zap.Int("attempt", i+1))
			continue
		}
		if err != nil {
			return "", storeErr(err)
		}
		obslog.L().Info("room_create",
			zap.String("code", code),
			zap.String("host_id", hostID),
			zap.String("host_color", string(hostColor)),
			zap.Bool("timed", tc != nil),
		)
		m.publish(ctx, roomevents.RoomCreated, code, map[string]string{"hostColor": string(hostColor)})
		return code, nil
	}
	return "", ErrCodeExhausted
}

// JoinRoom seats joinerID on the color opposite the host and activates the
// room. The seat is claimed with a conditional update: of two racing
// joiners exactly one wins, the other gets ErrRoomNotJoinable.
func (m *Manager) JoinRoom(ctx context.Context, code, joinerID, joinerName string) (domain.Color, error) {
	joinerID = strings.TrimSpace(joinerID)
	if joinerID == "" || strings.TrimSpace(code) == "" {
		return domain.NoColor, ErrInvalidArgs
	}
	var color domain.Color
	err := m.store.Update(ctx, Path(code), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, ErrRoomNotFound
		}
		r, err := decode(cur)
		if err != nil {
			return nil, err
		}
		if r.Status != StatusWaiting {
			return nil, ErrRoomNotJoinable
		}
		color = r.HostColor.Opposite()
		if r.Player(color) != nil || r.Seat(joinerID) != domain.NoColor {
			return nil, ErrRoomNotJoinable
		}
		now := m.now()
		r.setPlayer(color, &Player{ID: joinerID, DisplayName: strings.TrimSpace(joinerName), Connected: true})
		r.Status = StatusActive
		r.UpdatedAt = now
		if r.Timed() {
			r.LastMoveTimestamp = ms(now)
		}
		return encode(r)
	})
	if err != nil {
		obslog.L().Warn("room_join_error", zap.String("code", NormalizeCode(code)), zap.String("user_id", joinerID), zap.Error(err))
		// a lost race for the open seat reads as a full room to the joiner
		if errors.Is(err, roomstore.ErrConflict) {
			return domain.NoColor, fmt.Errorf("%w: %v", ErrRoomNotJoinable, err)
		}
		return domain.NoColor, storeErr(err)
	}
	obslog.L().Info("room_join", zap.String("code", NormalizeCode(code)), zap.String("user_id", joinerID), zap.String("color", string(color)))
	m.publish(ctx, roomevents.RoomJoined, code, map[string]string{"color": string(color)})
	return color, nil
}

// Subscribe calls fn with every snapshot of the room, starting with the
// current one; nil means the room was deleted (or never existed).
func (m *Manager) Subscribe(ctx context.Context, code string, fn func(*Room)) (roomstore.Unsubscribe, error) {
	code = NormalizeCode(code)
	unsub, err := m.store.Subscribe(ctx, Path(code), func(doc []byte) {
		if doc == nil {
			fn(nil)
			return
		}
		r, err := decode(doc)
		if err != nil {
			obslog.L().Warn("room_snapshot_decode", zap.String("code", code), zap.Error(err))
			return
		}
		fn(r)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return unsub, nil
}

func (m *Manager) Get(ctx context.Context, code string) (*Room, error) {
	raw, err := m.store.Get(ctx, Path(code))
	if err != nil {
		return nil, storeErr(err)
	}
	return decode(raw)
}

func (m *Manager) Exists(ctx context.Context, code string) (bool, error) {
	_, err := m.store.Get(ctx, Path(code))
	if errors.Is(err, roomstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}
	return true, nil
}

// UpdatePlayerConnection flips the connected flag of a seat. Writing the
// value the seat already has is a no-op.
func (m *Manager) UpdatePlayerConnection(ctx context.Context, code string, color domain.Color, connected bool) error {
	if !color.Valid() {
		return ErrInvalidArgs
	}
	changed := false
	err := m.store.Update(ctx, Path(code), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, ErrRoomNotFound
		}
		r, err := decode(cur)
		if err != nil {
			return nil, err
		}
		p := r.Player(color)
		if p == nil || p.Connected == connected {
			return nil, nil
		}
		changed = true
		return roomstore.ApplyFields(cur, map[string]any{
			seatField(color) + "/connected": connected,
			"updatedAt":                     m.now(),
		})
	})
	if err != nil {
		if errors.Is(err, roomstore.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return storeErr(err)
	}
	if changed {
		obslog.L().Info("room_connection", zap.String("code", NormalizeCode(code)), zap.String("color", string(color)), zap.Bool("connected", connected))
		m.publish(ctx, roomevents.ConnectionChange, code, map[string]string{"color": string(color), "connected": strconv.FormatBool(connected)})
	}
	return nil
}

// MoveWrite is one ply as computed by the mover's client.
type MoveWrite struct {
	// ExpectedPly is the move count the mover saw before moving.
	ExpectedPly int
	Mover       domain.Color
	Move        envelope.Envelope
	Position    string
	Turn        domain.Color
	GameStatus  domain.GameStatus
	// Clock values after the move; both set for timed rooms, both nil otherwise.
	WhiteTimeMs *int64
	BlackTimeMs *int64
}

// ApplyMove appends a move and updates position, turn, status and clocks in
// one write. The write only lands if the room is still active, still at
// ExpectedPly and still waiting on Mover; otherwise ErrMoveConflict.
func (m *Manager) ApplyMove(ctx context.Context, code string, w MoveWrite) error {
	if !w.Mover.Valid() || !w.Turn.Valid() || strings.TrimSpace(w.Position) == "" {
		return ErrInvalidArgs
	}
	if err := w.Move.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	finished := false
	err := m.store.Update(ctx, Path(code), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, ErrRoomNotFound
		}
		r, err := decode(cur)
		if err != nil {
			return nil, err
		}
		switch {
		case r.Status != StatusActive:
			return nil, fmt.Errorf("%w: room is %s", ErrMoveConflict, r.Status)
		case r.Ply() != w.ExpectedPly:
			return nil, fmt.Errorf("%w: ply %d, expected %d", ErrMoveConflict, r.Ply(), w.ExpectedPly)
		case r.GameState.Turn != w.Mover:
			return nil, fmt.Errorf("%w: %s to move", ErrMoveConflict, r.GameState.Turn)
		}
		moves, err := envelope.EncodeAll(append(append([]envelope.Envelope(nil), r.GameState.Moves...), w.Move))
		if err != nil {
			return nil, err
		}
		now := m.now()
		fields := map[string]any{
			"gameState/position":   w.Position,
			"gameState/moves":      moves,
			"gameState/turn":       w.Turn,
			"gameState/gameStatus": w.GameStatus,
			"updatedAt":            now,
		}
		if r.Timed() && w.WhiteTimeMs != nil && w.BlackTimeMs != nil {
			fields["whiteTimeRemainingMs"] = max(*w.WhiteTimeMs, 0)
			fields["blackTimeRemainingMs"] = max(*w.BlackTimeMs, 0)
			fields["lastMoveTimestamp"] = now
		}
		if w.GameStatus.Terminal() {
			finished = true
			fields["status"] = StatusFinished
			fields["finishedAt"] = now
			if w.GameStatus == domain.StatusCheckmate {
				fields["gameState/winner"] = w.Mover
			}
		}
		return roomstore.ApplyFields(cur, fields)
	})
	if err != nil {
		return storeErr(err)
	}
	obslog.L().Info("room_move",
		zap.String("code", NormalizeCode(code)),
		zap.String("color", string(w.Mover)),
		zap.String("uci", w.Move.UCI()),
		zap.Int("ply", w.ExpectedPly+1),
		zap.String("game_status", string(w.GameStatus)),
	)
	m.publish(ctx, roomevents.MovePlayed, code, map[string]string{"uci": w.Move.UCI(), "san": w.Move.SAN, "ply": strconv.Itoa(w.ExpectedPly + 1)})
	if finished {
		m.publish(ctx, roomevents.GameFinished, code, map[string]string{"reason": string(w.GameStatus)})
	}
	return nil
}

// EndGame marks the room finished with a terminal game status. Rooms that
// are already finished are left as they are.
func (m *Manager) EndGame(ctx context.Context, code string, reason domain.GameStatus, winner domain.Color) error {
	_, err := m.end(ctx, code, reason, winner, nil)
	return err
}

// Timeout ends the game on time against loser and clamps loser's stored
// clock to zero. A claim against the side that is not on move is rejected
// with ErrMoveConflict; that side's move already landed.
func (m *Manager) Timeout(ctx context.Context, code string, loser domain.Color) error {
	if !loser.Valid() {
		return ErrInvalidArgs
	}
	_, err := m.end(ctx, code, domain.StatusTimeout, loser.Opposite(), func(r *Room, fields map[string]any) error {
		if r.Status == StatusActive && r.GameState.Turn != loser {
			return fmt.Errorf("%w: %s is not on move", ErrMoveConflict, loser)
		}
		if r.Timed() {
			fields[timeField(loser)] = int64(0)
		}
		return nil
	})
	return err
}

func (m *Manager) end(ctx context.Context, code string, reason domain.GameStatus, winner domain.Color, extra func(*Room, map[string]any) error) (bool, error) {
	if !reason.Terminal() {
		return false, ErrInvalidArgs
	}
	changed := false
	err := m.store.Update(ctx, Path(code), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, ErrRoomNotFound
		}
		r, err := decode(cur)
		if err != nil {
			return nil, err
		}
		if r.Status == StatusFinished {
			return nil, nil
		}
		now := m.now()
		fields := map[string]any{
			"status":               StatusFinished,
			"gameState/gameStatus": reason,
			"finishedAt":           now,
			"updatedAt":            now,
		}
		if winner.Valid() {
			fields["gameState/winner"] = winner
		}
		if extra != nil {
			if err := extra(r, fields); err != nil {
				return nil, err
			}
		}
		changed = true
		return roomstore.ApplyFields(cur, fields)
	})
	if err != nil {
		return false, storeErr(err)
	}
	if changed {
		obslog.L().Info("room_end", zap.String("code", NormalizeCode(code)), zap.String("reason", string(reason)), zap.String("winner", string(winner)))
		m.publish(ctx, roomevents.GameFinished, code, map[string]string{"reason": string(reason), "winner": string(winner)})
	}
	return changed, nil
}

// UpdateTimers overwrites both clocks. lastMoveMs 0 means now.
func (m *Manager) UpdateTimers(ctx context.Context, code string, whiteMs, blackMs, lastMoveMs int64) error {
	if lastMoveMs <= 0 {
		lastMoveMs = m.now()
	}
	err := m.store.MultiUpdate(ctx, Path(code), map[string]any{
		"whiteTimeRemainingMs": max(whiteMs, 0),
		"blackTimeRemainingMs": max(blackMs, 0),
		"lastMoveTimestamp":    lastMoveMs,
	})
	if err != nil {
		return storeErr(err)
	}
	m.publish(ctx, roomevents.TimersUpdated, code, nil)
	return nil
}

func (m *Manager) DeleteRoom(ctx context.Context, code string) error {
	if err := m.store.Delete(ctx, Path(code)); err != nil {
		return storeErr(err)
	}
	obslog.L().Info("room_delete", zap.String("code", NormalizeCode(code)))
	m.publish(ctx, roomevents.RoomDeleted, code, nil)
	return nil
}

// List returns every stored room. Rooms deleted while listing are skipped.
func (m *Manager) List(ctx context.Context) ([]*Room, error) {
	paths, err := m.store.List(ctx, pathPrefix)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Room, 0, len(paths))
	for _, p := range paths {
		raw, err := m.store.Get(ctx, p)
		if errors.Is(err, roomstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}
		r, err := decode(raw)
		if err != nil {
			obslog.L().Warn("room_list_decode", zap.String("path", p), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Manager) publish(ctx context.Context, t roomevents.Type, code string, detail map[string]string) {
	ev := roomevents.New(t, NormalizeCode(code), m.clk.Now(), detail)
	if err := m.events.Publish(ctx, ev); err != nil {
		obslog.L().Warn("room_event_publish_error", zap.String("code", ev.RoomCode), zap.String("type", string(t)), zap.Error(err))
	}
}

func seatField(c domain.Color) string {
	if c == domain.White {
		return "whitePlayer"
	}
	return "blackPlayer"
}

func timeField(c domain.Color) string {
	if c == domain.White {
		return "whiteTimeRemainingMs"
	}
	return "blackTimeRemainingMs"
}

// storeErr maps store sentinels onto room errors; domain errors pass through.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, roomstore.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, roomstore.ErrConflict):
		return fmt.Errorf("%w: %v", ErrMoveConflict, err)
	default:
		return err
	}
}
