// Package roomevents announces room lifecycle changes to other services.
// Events are informational: room state itself only travels through the
// room store.
package roomevents

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	RoomCreated      Type = "created"
	RoomJoined       Type = "joined"
	MovePlayed       Type = "move"
	ConnectionChange Type = "connection"
	TimersUpdated    Type = "timers"
	GameFinished     Type = "finished"
	RoomDeleted      Type = "deleted"
)

type Event struct {
	ID       string            `json:"eventId"`
	Type     Type              `json:"eventType"`
	RoomCode string            `json:"roomCode"`
	At       time.Time         `json:"timestamp"`
	Detail   map[string]string `json:"detail,omitempty"`
}

// New stamps an event with a fresh id and at.
func New(t Type, code string, at time.Time, detail map[string]string) Event {
	return Event{ID: uuid.NewString(), Type: t, RoomCode: code, At: at.UTC(), Detail: detail}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
