// Package janitor expires rooms nobody will come back to. Finished rooms
// are archived and deleted after a grace period; rooms that sit idle are
// abandoned (active) or deleted (waiting).
package janitor

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/obslog"
	"github.com/park285/cheese-online-chess/internal/room"
	"go.uber.org/zap"
)

const (
	DefaultInterval    = time.Minute
	DefaultFinishedTTL = 10 * time.Minute
	DefaultIdleTTL     = 30 * time.Minute
)

type Rooms interface {
	List(ctx context.Context) ([]*room.Room, error)
	DeleteRoom(ctx context.Context, code string) error
	EndGame(ctx context.Context, code string, reason domain.GameStatus, winner domain.Color) error
}

type Archiver interface {
	SaveRoom(ctx context.Context, r *room.Room) error
}

type Sweeper struct {
	rooms       Rooms
	archive     Archiver
	clk         clockwork.Clock
	interval    time.Duration
	finishedTTL time.Duration
	idleTTL     time.Duration
}

type Option func(*Sweeper)

func WithClock(c clockwork.Clock) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.clk = c
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithFinishedTTL(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.finishedTTL = d
		}
	}
}

func WithIdleTTL(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// WithArchive stores finished rooms before they are deleted.
func WithArchive(a Archiver) Option {
	return func(s *Sweeper) { s.archive = a }
}

func New(rooms Rooms, opts ...Option) *Sweeper {
	s := &Sweeper{
		rooms:       rooms,
		clk:         clockwork.NewRealClock(),
		interval:    DefaultInterval,
		finishedTTL: DefaultFinishedTTL,
		idleTTL:     DefaultIdleTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report counts what one sweep did.
type Report struct {
	Archived  int
	Deleted   int
	Abandoned int
	Failed    int
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	t := s.clk.NewTicker(s.interval)
	defer t.Stop()
	log := obslog.Named("janitor")
	log.Info("janitor_start",
		zap.Duration("interval", s.interval),
		zap.Duration("finished_ttl", s.finishedTTL),
		zap.Duration("idle_ttl", s.idleTTL),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			rep, err := s.SweepOnce(ctx)
			if err != nil {
				log.Warn("janitor_sweep_error", zap.Error(err))
				continue
			}
			if rep != (Report{}) {
				log.Info("janitor_sweep",
					zap.Int("archived", rep.Archived),
					zap.Int("deleted", rep.Deleted),
					zap.Int("abandoned", rep.Abandoned),
					zap.Int("failed", rep.Failed),
				)
			}
		}
	}
}

// SweepOnce makes one pass over all rooms. Per-room failures are counted
// and retried on the next pass; only a failed listing is returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var rep Report
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return rep, err
	}
	now := s.clk.Now().UnixMilli()
	log := obslog.Named("janitor")
	for _, r := range rooms {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		idle := time.Duration(now-lastActivity(r)) * time.Millisecond
		switch r.Status {
		case room.StatusFinished:
			if idle < s.finishedTTL {
				continue
			}
			if s.archive != nil {
				if err := s.archive.SaveRoom(ctx, r); err != nil {
					log.Warn("janitor_archive_error", zap.String("code", r.RoomCode), zap.Error(err))
					rep.Failed++
					continue
				}
				rep.Archived++
			}
			if s.delete(ctx, r.RoomCode) {
				rep.Deleted++
			} else {
				rep.Failed++
			}
		case room.StatusWaiting:
			if idle < s.idleTTL {
				continue
			}
			if s.delete(ctx, r.RoomCode) {
				rep.Deleted++
			} else {
				rep.Failed++
			}
		case room.StatusActive:
			if idle < s.idleTTL {
				continue
			}
			if err := s.rooms.EndGame(ctx, r.RoomCode, domain.StatusAbandoned, domain.NoColor); err != nil {
				log.Warn("janitor_abandon_error", zap.String("code", r.RoomCode), zap.Error(err))
				rep.Failed++
				continue
			}
			rep.Abandoned++
		}
	}
	return rep, nil
}

func (s *Sweeper) delete(ctx context.Context, code string) bool {
	if err := s.rooms.DeleteRoom(ctx, code); err != nil {
		obslog.Named("janitor").Warn("janitor_delete_error", zap.String("code", code), zap.Error(err))
		return false
	}
	return true
}

// lastActivity is the newest timestamp on the room, in unix ms.
func lastActivity(r *room.Room) int64 {
	t := max(r.CreatedAt, r.UpdatedAt, r.FinishedAt)
	if r.LastMoveTimestamp != nil {
		t = max(t, *r.LastMoveTimestamp)
	}
	return t
}
