// Package session is the per-participant controller of an online game. It
// never owns game state: every view it exposes, including the clock, is a
// projection of the last room snapshot delivered by the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-online-chess/internal/clock"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/msgcat"
	"github.com/park285/cheese-online-chess/internal/obslog"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/park285/cheese-online-chess/internal/roomstore"
	"go.uber.org/zap"
)

var (
	ErrBusy      = errf("session already attached to a room")
	ErrStaleRoom = errf("room was deleted")
	ErrNoGame    = errf("no game in progress")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }

// Rooms is the part of room.Manager the controller drives.
type Rooms interface {
	CreateRoom(ctx context.Context, hostID, hostName string, hostColor domain.Color, initialPosition string, tc *domain.TimeControl) (string, error)
	JoinRoom(ctx context.Context, code, joinerID, joinerName string) (domain.Color, error)
	Get(ctx context.Context, code string) (*room.Room, error)
	Subscribe(ctx context.Context, code string, fn func(*room.Room)) (roomstore.Unsubscribe, error)
	UpdatePlayerConnection(ctx context.Context, code string, color domain.Color, connected bool) error
	ApplyMove(ctx context.Context, code string, w room.MoveWrite) error
	EndGame(ctx context.Context, code string, reason domain.GameStatus, winner domain.Color) error
	Timeout(ctx context.Context, code string, loser domain.Color) error
}

var _ Rooms = (*room.Manager)(nil)

type Option func(*Controller)

// WithPlayer fixes the player identity; by default a random id is used.
func WithPlayer(id, name string) Option {
	return func(c *Controller) {
		if id != "" {
			c.playerID = id
		}
		c.name = name
	}
}

func WithClock(clk clockwork.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clk = clk
		}
	}
}

func WithTick(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

func WithReplay(fn ReplayFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.replay = fn
		}
	}
}

func WithCatalog(cat *msgcat.Catalog) Option {
	return func(c *Controller) {
		if cat != nil {
			c.cat = cat
		}
	}
}

// WithClaimTimeout bounds the store write made when the local clock flags.
func WithClaimTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.claimTimeout = d
		}
	}
}

type promotion struct{ from, to string }

type clockKey struct {
	ply  int
	last int64
}

type Controller struct {
	rooms        Rooms
	clk          clockwork.Clock
	tick         time.Duration
	replay       ReplayFunc
	cat          *msgcat.Catalog
	claimTimeout time.Duration
	playerID     string
	name         string
	updates      chan View

	mu         sync.Mutex
	gen        uint64
	state      State
	code       string
	color      domain.Color
	isHost     bool
	room       *room.Room
	engine     Engine
	enginePly  int
	selected   string
	dests      []string
	pending    *promotion
	submitting bool
	clock      *clock.Clock
	clockKey   clockKey
	unsub      roomstore.Unsubscribe
	notice     string
	err        error
}

func New(rooms Rooms, opts ...Option) *Controller {
	c := &Controller{
		rooms:        rooms,
		clk:          clockwork.NewRealClock(),
		tick:         clock.DefaultTick,
		replay:       boardReplay,
		cat:          msgcat.Default(),
		claimTimeout: 5 * time.Second,
		playerID:     uuid.NewString(),
		updates:      make(chan View, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) PlayerID() string { return c.playerID }

// Updates delivers views as they change. Only the newest undelivered view
// is kept.
func (c *Controller) Updates() <-chan View { return c.updates }

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining is the live clock value for color; ok is false when untimed.
func (c *Controller) Remaining(color domain.Color) (time.Duration, bool) {
	c.mu.Lock()
	k := c.clock
	c.mu.Unlock()
	if k == nil {
		return 0, false
	}
	return k.Remaining(color), true
}

func (c *Controller) log() *zap.Logger {
	return obslog.Named("session").With(zap.String("player_id", c.playerID))
}

// CreateRoom opens a room hosted by this player on hostColor and waits
// for an opponent. tc nil means untimed.
func (c *Controller) CreateRoom(ctx context.Context, hostColor domain.Color, initialPosition string, tc *domain.TimeControl) (string, error) {
	gen, err := c.begin(StateCreating)
	if err != nil {
		return "", err
	}
	code, err := c.rooms.CreateRoom(ctx, c.playerID, c.name, hostColor, initialPosition, tc)
	if err != nil {
		c.failLifecycle(gen, "", err)
		return "", err
	}
	if !c.bind(gen, code, hostColor, true, "room.created") {
		c.releaseSeat(ctx, code, hostColor)
		return code, nil
	}
	if err := c.attach(gen, code); err != nil {
		return code, err
	}
	c.log().Info("session_room_created", zap.String("code", code), zap.String("color", string(hostColor)))
	return code, nil
}

// JoinRoom takes the free seat of a waiting room.
func (c *Controller) JoinRoom(ctx context.Context, code string) (domain.Color, error) {
	code = room.NormalizeCode(code)
	gen, err := c.begin(StateJoining)
	if err != nil {
		return domain.NoColor, err
	}
	color, err := c.rooms.JoinRoom(ctx, code, c.playerID, c.name)
	if err != nil {
		c.failLifecycle(gen, code, err)
		return domain.NoColor, err
	}
	if !c.bind(gen, code, color, false, "room.joined") {
		c.releaseSeat(ctx, code, color)
		return color, nil
	}
	if err := c.attach(gen, code); err != nil {
		return color, err
	}
	c.log().Info("session_room_joined", zap.String("code", code), zap.String("color", string(color)))
	return color, nil
}

// Reconnect resumes a seat this player already holds in code.
func (c *Controller) Reconnect(ctx context.Context, code string) (domain.Color, error) {
	code = room.NormalizeCode(code)
	gen, err := c.begin(StateJoining)
	if err != nil {
		return domain.NoColor, err
	}
	r, err := c.rooms.Get(ctx, code)
	if err != nil {
		c.failLifecycle(gen, code, err)
		return domain.NoColor, err
	}
	color := r.Seat(c.playerID)
	if color == domain.NoColor {
		err := fmt.Errorf("%w: %s is not seated", room.ErrRoomNotJoinable, c.playerID)
		c.failLifecycle(gen, code, err)
		return domain.NoColor, err
	}
	if err := c.rooms.UpdatePlayerConnection(ctx, code, color, true); err != nil {
		c.failLifecycle(gen, code, err)
		return domain.NoColor, err
	}
	if !c.bind(gen, code, color, r.HostID == c.playerID, "") {
		c.releaseSeat(ctx, code, color)
		return color, nil
	}
	if err := c.attach(gen, code); err != nil {
		return color, err
	}
	c.log().Info("session_reconnected", zap.String("code", code), zap.String("color", string(color)))
	return color, nil
}

func (c *Controller) begin(s State) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return 0, ErrBusy
	}
	c.state = s
	c.notice, c.err = "", nil
	c.publishLocked()
	return c.gen, nil
}

// bind records the seat once the lifecycle call succeeded. It reports
// false when the session was left in the meantime.
func (c *Controller) bind(gen uint64, code string, color domain.Color, host bool, noticeKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.code, c.color, c.isHost = code, color, host
	if noticeKey != "" {
		c.notice = c.cat.Text(noticeKey, map[string]any{"Code": code, "Color": color.Name()})
	}
	return true
}

// releaseSeat marks a seat taken by a lifecycle call that lost to Leave as
// disconnected, since Leave ran before the seat was known.
func (c *Controller) releaseSeat(ctx context.Context, code string, color domain.Color) {
	c.log().Info("session_seat_released", zap.String("code", code), zap.String("color", string(color)))
	err := c.rooms.UpdatePlayerConnection(ctx, code, color, false)
	if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		c.log().Warn("session_seat_release_error", zap.String("code", code), zap.Error(err))
	}
}

func (c *Controller) attach(gen uint64, code string) error {
	// The subscription lives until Leave, not until the caller's request ends.
	unsub, err := c.rooms.Subscribe(context.Background(), code, func(r *room.Room) { c.onSnapshot(gen, r) })
	if err != nil {
		c.failLifecycle(gen, code, err)
		return err
	}
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.unsub = unsub
	c.mu.Unlock()
	return nil
}

func (c *Controller) failLifecycle(gen uint64, code string, err error) {
	c.log().Warn("session_lifecycle_error", zap.String("code", code), zap.Error(err))
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	unsub := c.resetLocked()
	c.notice, c.err = c.errorText(code, err), err
	c.publishLocked()
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Leave detaches from the room and marks the seat disconnected. The seat
// is kept so the player can Reconnect. Leaving an idle session does
// nothing.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	code, color := c.code, c.color
	unsub := c.resetLocked()
	c.notice, c.err = "", nil
	c.publishLocked()
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if code == "" || !color.Valid() {
		return nil
	}
	c.log().Info("session_leave", zap.String("code", code), zap.String("color", string(color)))
	err := c.rooms.UpdatePlayerConnection(ctx, code, color, false)
	if errors.Is(err, room.ErrRoomNotFound) {
		return nil
	}
	return err
}

// resetLocked returns to idle and hands back the subscription to cancel.
func (c *Controller) resetLocked() roomstore.Unsubscribe {
	unsub := c.unsub
	c.gen++
	c.state = StateIdle
	c.code, c.color, c.isHost = "", domain.NoColor, false
	c.room, c.engine, c.enginePly = nil, nil, 0
	c.clearSelectionLocked()
	c.submitting = false
	if c.clock != nil {
		c.clock.Close()
		c.clock = nil
	}
	c.clockKey = clockKey{}
	c.unsub = nil
	return unsub
}

func (c *Controller) onSnapshot(gen uint64, r *room.Room) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if r == nil {
		code := c.code
		unsub := c.resetLocked()
		c.notice, c.err = c.cat.Text("room.stale", nil), ErrStaleRoom
		c.publishLocked()
		c.mu.Unlock()
		c.log().Warn("session_room_deleted", zap.String("code", code))
		if unsub != nil {
			unsub()
		}
		return
	}
	c.applyLocked(r)
	c.publishLocked()
	c.mu.Unlock()
}

// applyLocked rebuilds every derived field from r.
func (c *Controller) applyLocked(r *room.Room) {
	prevStatus := room.Status("")
	if prev := c.room; prev != nil {
		prevStatus = prev.Status
		if prev.Status != r.Status || prev.Ply() != r.Ply() {
			c.notice, c.err = "", nil
		}
	}
	c.room = r
	c.state = stateFor(r.Status)

	if c.engine == nil || c.enginePly != r.Ply() || c.engine.FEN() != r.GameState.Position {
		c.rebuildEngineLocked(r)
		c.clearSelectionLocked()
	}
	if r.Status != room.StatusActive || r.GameState.Turn != c.color {
		c.clearSelectionLocked()
	}
	c.syncClockLocked(r)

	if r.Status == room.StatusFinished && prevStatus != room.StatusFinished {
		c.notice = c.cat.Text("game."+string(r.GameState.GameStatus), map[string]any{"Winner": r.GameState.Winner.Name()})
		c.log().Info("session_game_finished",
			zap.String("code", r.RoomCode),
			zap.String("game_status", string(r.GameState.GameStatus)),
			zap.String("winner", string(r.GameState.Winner)),
		)
	}
}

func (c *Controller) rebuildEngineLocked(r *room.Room) {
	eng, err := c.replay(r.GameState.StartPosition, r.GameState.Moves)
	if err == nil && eng.FEN() != r.GameState.Position {
		err = fmt.Errorf("replayed position %q differs from stored %q", eng.FEN(), r.GameState.Position)
	}
	if err != nil {
		c.log().Warn("session_replay_mismatch", zap.String("code", r.RoomCode), zap.Error(err))
		eng, err = loadPosition(r.GameState.Position)
		if err != nil {
			c.log().Error("session_position_invalid", zap.String("code", r.RoomCode), zap.Error(err))
			return
		}
	}
	c.engine, c.enginePly = eng, r.Ply()
}

// syncClockLocked loads the stored clock values when the snapshot carries
// new ones (new ply or new lastMoveTimestamp) and runs the side to move.
func (c *Controller) syncClockLocked(r *room.Room) {
	if !r.Timed() {
		if c.clock != nil {
			c.clock.Close()
			c.clock = nil
		}
		return
	}
	if c.clock == nil {
		c.clock = clock.New(*r.TimeControl,
			clock.WithClock(c.clk),
			clock.WithTick(c.tick),
			clock.WithTimeout(c.onFlag),
		)
		c.clockKey = clockKey{ply: -1}
	}
	var last int64
	if r.LastMoveTimestamp != nil {
		last = *r.LastMoveTimestamp
	}
	running := r.Status == room.StatusActive && r.Full() && r.LastMoveTimestamp != nil
	key := clockKey{ply: r.Ply(), last: last}
	fresh := key != c.clockKey
	if fresh {
		w, _ := r.RemainingMs(domain.White)
		b, _ := r.RemainingMs(domain.Black)
		times := map[domain.Color]time.Duration{
			domain.White: time.Duration(w) * time.Millisecond,
			domain.Black: time.Duration(b) * time.Millisecond,
		}
		if running {
			if elapsed := c.clk.Now().UnixMilli() - last; elapsed > 0 {
				times[r.GameState.Turn] -= time.Duration(elapsed) * time.Millisecond
			}
		}
		c.clock.SetTimes(times[domain.White], times[domain.Black])
		c.clockKey = key
	}
	switch {
	case !running:
		c.clock.Pause()
	case fresh || c.clock.Active() != r.GameState.Turn:
		c.clock.Start(r.GameState.Turn)
	}
}

// onFlag runs on the clock's goroutine when a side reaches zero locally.
// The game only ends once the store accepts the timeout.
func (c *Controller) onFlag(loser domain.Color) {
	c.mu.Lock()
	r, code, gen := c.room, c.code, c.gen
	if r == nil || r.Status != room.StatusActive || r.GameState.Turn != loser {
		c.mu.Unlock()
		return
	}
	if loser == c.color {
		c.clearSelectionLocked()
		c.notice = c.cat.Text("move.time_up", nil)
		c.publishLocked()
	}
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.claimTimeout)
		defer cancel()
		err := c.rooms.Timeout(ctx, code, loser)
		switch {
		case err == nil:
			c.log().Info("session_timeout_claimed", zap.String("code", code), zap.String("loser", string(loser)))
		case errors.Is(err, room.ErrMoveConflict):
			// the flagged side's move landed first
		default:
			c.log().Warn("session_timeout_claim_error", zap.String("code", code), zap.Error(err))
			c.mu.Lock()
			if c.gen == gen {
				c.notice, c.err = c.errorText(code, err), err
				c.publishLocked()
			}
			c.mu.Unlock()
		}
	}()
}

// Click handles a board square press: select an own piece, then either
// move it to a legal destination or drop the selection.
func (c *Controller) Click(ctx context.Context, sq string) error {
	c.mu.Lock()
	if !c.canActLocked() {
		c.mu.Unlock()
		return nil
	}
	if c.pending != nil {
		c.clearSelectionLocked()
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	if c.selected == "" {
		if p, ok := c.engine.PieceAt(sq); ok && p.Color == c.color {
			c.selected = sq
			c.dests = c.engine.LegalDestinations(sq)
			c.publishLocked()
		}
		c.mu.Unlock()
		return nil
	}
	from := c.selected
	if sq == from || !slices.Contains(c.dests, sq) {
		c.clearSelectionLocked()
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	if c.engine.IsPromotion(from, sq) {
		c.pending = &promotion{from: from, to: sq}
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	return c.submitLocked(ctx, from, sq, domain.NoPiece)
}

// Promote completes a pending promotion. Without one it does nothing.
func (c *Controller) Promote(ctx context.Context, piece domain.PieceKind) error {
	if !piece.PromotionTarget() {
		return fmt.Errorf("promote: %q is not a promotion piece", piece)
	}
	c.mu.Lock()
	if c.pending == nil || !c.canActLocked() {
		c.mu.Unlock()
		return nil
	}
	p := *c.pending
	return c.submitLocked(ctx, p.from, p.to, piece)
}

// Resign ends the game in the opponent's favour.
func (c *Controller) Resign(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive || c.room == nil {
		c.mu.Unlock()
		return ErrNoGame
	}
	code, color := c.code, c.color
	c.clearSelectionLocked()
	c.mu.Unlock()
	if err := c.rooms.EndGame(ctx, code, domain.StatusResigned, color.Opposite()); err != nil {
		c.reportError(code, err)
		return err
	}
	c.log().Info("session_resign", zap.String("code", code), zap.String("color", string(color)))
	return nil
}

// Dispatch routes a UI action to its handler.
func (c *Controller) Dispatch(ctx context.Context, a Action) error {
	switch a := a.(type) {
	case ClickSquare:
		return c.Click(ctx, a.Square)
	case ChoosePromotion:
		return c.Promote(ctx, a.Piece)
	case Resign:
		return c.Resign(ctx)
	case Leave:
		return c.Leave(ctx)
	default:
		return fmt.Errorf("session: unknown action %T", a)
	}
}

func (c *Controller) canActLocked() bool {
	return c.state == StateActive &&
		c.room != nil &&
		c.engine != nil &&
		!c.submitting &&
		c.room.Status == room.StatusActive &&
		c.room.GameState.Turn == c.color
}

// submitLocked is entered with c.mu held and releases it before writing.
func (c *Controller) submitLocked(ctx context.Context, from, to string, promo domain.PieceKind) error {
	r, code, gen := c.room, c.code, c.gen
	c.clearSelectionLocked()

	if c.clock != nil && c.clock.IsTimeUp(c.color) {
		c.notice = c.cat.Text("move.time_up", nil)
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	w, err := c.moveWriteLocked(r, from, to, promo)
	if err != nil {
		// illegal here means the engine and the cached destinations disagree
		c.publishLocked()
		c.mu.Unlock()
		c.log().Debug("session_move_rejected_locally", zap.String("code", code), zap.String("uci", from+to+string(promo)), zap.Error(err))
		return nil
	}
	c.submitting = true
	c.publishLocked()
	c.mu.Unlock()

	err = c.rooms.ApplyMove(ctx, code, w)
	if errors.Is(err, room.ErrStoreUnavailable) {
		c.log().Warn("session_move_retry", zap.String("code", code), zap.Error(err))
		err = c.rooms.ApplyMove(ctx, code, w)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.submitting = false
	}
	c.mu.Unlock()

	if err != nil {
		c.reportError(code, err)
		return err
	}
	c.log().Info("session_move_submit",
		zap.String("code", code),
		zap.String("uci", w.Move.UCI()),
		zap.String("san", w.Move.SAN),
		zap.Int("ply", w.ExpectedPly+1),
	)
	return nil
}

// moveWriteLocked plays the move on a scratch engine rebuilt from r. The
// controller's own engine and clock are left alone; they follow the
// snapshot that confirms the write.
func (c *Controller) moveWriteLocked(r *room.Room, from, to string, promo domain.PieceKind) (room.MoveWrite, error) {
	scratch, err := c.replay(r.GameState.StartPosition, r.GameState.Moves)
	if err != nil {
		if scratch, err = loadPosition(r.GameState.Position); err != nil {
			return room.MoveWrite{}, err
		}
	}
	rec, err := scratch.Apply(from, to, promo)
	if err != nil {
		return room.MoveWrite{}, err
	}
	w := room.MoveWrite{
		ExpectedPly: r.Ply(),
		Mover:       c.color,
		Move:        envelope.FromRecord(rec, c.clk.Now().UnixMilli()),
		Position:    scratch.FEN(),
		Turn:        scratch.Turn(),
		GameStatus:  scratch.Status(),
	}
	if r.Timed() && c.clock != nil {
		mover := (c.clock.Remaining(c.color) + r.TimeControl.Increment()).Milliseconds()
		opp := c.clock.Remaining(c.color.Opposite()).Milliseconds()
		if c.color == domain.White {
			w.WhiteTimeMs, w.BlackTimeMs = &mover, &opp
		} else {
			w.WhiteTimeMs, w.BlackTimeMs = &opp, &mover
		}
	}
	return w, nil
}

func (c *Controller) reportError(code string, err error) {
	c.log().Warn("session_write_error", zap.String("code", code), zap.Error(err))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code != code {
		return
	}
	c.notice, c.err = c.errorText(code, err), err
	c.publishLocked()
}

func (c *Controller) errorText(code string, err error) string {
	data := map[string]any{"Code": code}
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return c.cat.Text("room.not_found", data)
	case errors.Is(err, room.ErrRoomNotJoinable):
		return c.cat.Text("room.not_joinable", data)
	case errors.Is(err, room.ErrCodeExhausted):
		return c.cat.Text("room.code_exhausted", data)
	case errors.Is(err, room.ErrInvalidArgs):
		return c.cat.Text("room.invalid", data)
	case errors.Is(err, room.ErrMoveConflict):
		return c.cat.Text("move.rejected", data)
	case errors.Is(err, room.ErrStoreUnavailable):
		if c.state == StateActive {
			return c.cat.Text("move.unavailable", data)
		}
		return c.cat.Text("room.unavailable", data)
	default:
		return err.Error()
	}
}

func (c *Controller) clearSelectionLocked() {
	c.selected, c.dests, c.pending = "", nil, nil
}

func (c *Controller) viewLocked() View {
	v := View{
		State:    c.state,
		RoomCode: c.code,
		PlayerID: c.playerID,
		Color:    c.color,
		IsHost:   c.isHost,
		Selected: c.selected,
		Notice:   c.notice,
		Err:      c.err,
	}
	if len(c.dests) > 0 {
		v.Destinations = append([]string(nil), c.dests...)
	}
	if c.pending != nil {
		v.PromotionFrom, v.PromotionTo = c.pending.from, c.pending.to
	}
	if r := c.room; r != nil {
		v.Position = r.GameState.Position
		v.Turn = r.GameState.Turn
		v.MyTurn = r.Status == room.StatusActive && r.GameState.Turn == c.color
		v.GameStatus = r.GameState.GameStatus
		v.Winner = r.GameState.Winner
		v.Moves = append([]envelope.Envelope(nil), r.GameState.Moves...)
		v.LastMove = r.LastMove()
		if p := r.Player(c.color.Opposite()); p != nil {
			cp := *p
			v.Opponent = &cp
		}
		if r.TimeControl != nil {
			tc := *r.TimeControl
			v.TimeControl = &tc
		}
	}
	if c.clock != nil {
		v.WhiteTime = c.clock.Remaining(domain.White)
		v.BlackTime = c.clock.Remaining(domain.Black)
	}
	return v
}

func (c *Controller) publishLocked() {
	v := c.viewLocked()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- v:
	default:
	}
}
