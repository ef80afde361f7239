// Package spectate streams room snapshots to read-only WebSocket viewers.
package spectate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/park285/cheese-online-chess/internal/obslog"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/park285/cheese-online-chess/internal/roomstore"
	"github.com/park285/cheese-online-chess/pkg/roomdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Source is the part of room.Manager the feed reads from.
type Source interface {
	Exists(ctx context.Context, code string) (bool, error)
	Subscribe(ctx context.Context, code string, fn func(*room.Room)) (roomstore.Unsubscribe, error)
}

type Handler struct {
	src          Source
	origins      []string
	pingInterval time.Duration
	writeTimeout time.Duration
	viewers      atomic.Int64
}

type Option func(*Handler)

// WithOriginPatterns allows cross-origin viewers, e.g. "*.example.com".
func WithOriginPatterns(p ...string) Option {
	return func(h *Handler) { h.origins = append(h.origins, p...) }
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

func NewHandler(src Source, opts ...Option) *Handler {
	h := &Handler{src: src, pingInterval: 30 * time.Second, writeTimeout: 3 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{code}/feed", h.ServeFeed)
	mux.HandleFunc("GET /healthz", h.serveHealth)
	return mux
}

// Viewers is the number of open feeds.
func (h *Handler) Viewers() int64 { return h.viewers.Load() }

func (h *Handler) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "viewers": h.viewers.Load()})
}

type update struct{ r *room.Room }

// ServeFeed sends a snapshot frame for every room revision the store
// delivers, then a deleted frame and a normal close once the room is gone.
// Slow viewers only see the newest revision.
func (h *Handler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	code := room.NormalizeCode(r.PathValue("code"))
	if !room.ValidCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}
	ok, err := h.src.Exists(r.Context(), code)
	switch {
	case err != nil:
		http.Error(w, "room store unavailable", http.StatusServiceUnavailable)
		return
	case !ok:
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	log := obslog.Named("spectate").With(zap.String("code", code))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Warn("spectate_accept_error", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	frames := make(chan update)
	unsub, err := h.src.Subscribe(ctx, code, func(rm *room.Room) {
		select {
		case frames <- update{r: rm}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		log.Warn("spectate_subscribe_error", zap.Error(err))
		_ = h.write(ctx, conn, roomdto.Failure("room.unavailable", err.Error(), errors.Is(err, room.ErrStoreUnavailable)))
		conn.Close(websocket.StatusTryAgainLater, "store unavailable")
		return
	}
	defer unsub()

	n := h.viewers.Add(1)
	defer h.viewers.Add(-1)
	log.Info("spectate_open", zap.Int64("viewers", n))

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("spectate_close", zap.Error(context.Cause(ctx)))
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Info("spectate_ping_failed", zap.Error(err))
				return
			}
		case u := <-frames:
			if u.r == nil {
				_ = h.write(ctx, conn, roomdto.Deleted())
				conn.Close(websocket.StatusNormalClosure, "room deleted")
				return
			}
			if err := h.write(ctx, conn, roomdto.Snapshot(u.r)); err != nil {
				log.Info("spectate_write_failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, f roomdto.Frame) error {
	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, f)
}
