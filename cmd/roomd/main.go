// Command roomd runs the server side of online rooms: the expiry sweep,
// the spectator feed and lifecycle events. Players talk to the room store
// directly through session controllers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-online-chess/internal/archive"
	appcfg "github.com/park285/cheese-online-chess/internal/config"
	"github.com/park285/cheese-online-chess/internal/janitor"
	"github.com/park285/cheese-online-chess/internal/obslog"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/park285/cheese-online-chess/internal/roomevents"
	"github.com/park285/cheese-online-chess/internal/roomstore/redisstore"
	"github.com/park285/cheese-online-chess/internal/spectate"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := appcfg.LoadDotEnv(); err != nil {
		log.Fatalf("dotenv error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("roomd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	octx, ocancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := redisstore.Open(octx, cfg.RedisURL,
		redisstore.WithPrefix(cfg.RedisKeyPrefix),
		redisstore.WithTTL(cfg.RoomTTL),
	)
	ocancel()
	if err != nil {
		logger.Fatal("room store init error", zap.Error(err))
	}
	defer store.Close()

	opts := []room.Option{}
	if cfg.NATSURL != "" {
		pub, err := roomevents.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			logger.Fatal("nats init error", zap.Error(err))
		}
		defer pub.Close()
		opts = append(opts, room.WithEvents(pub))
	}
	rooms := room.NewManager(store, opts...)

	sweepOpts := []janitor.Option{
		janitor.WithInterval(cfg.SweepInterval),
		janitor.WithFinishedTTL(cfg.FinishedRoomTTL),
		janitor.WithIdleTTL(cfg.IdleRoomTTL),
	}
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive init error", zap.Error(err))
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("archive schema error", zap.Error(err))
		}
		sweepOpts = append(sweepOpts, janitor.WithArchive(repo))
	} else {
		logger.Warn("DATABASE_URL not set; finished rooms are deleted without archiving")
	}
	sweeper := janitor.New(rooms, sweepOpts...)

	feed := spectate.NewHandler(rooms, spectate.WithOriginPatterns(originHosts(cfg.AllowedOrigins)...))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withCORS(cfg.AllowedOrigins).Handler(feed.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sweeper.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("roomd stopped", zap.Error(err))
		return
	}
	logger.Info("roomd stopped")
}

// withCORS allows every origin when none are configured.
func withCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})
}

// originHosts turns CORS origins into the host patterns the WebSocket
// handshake matches against.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
