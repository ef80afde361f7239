// Command roomcheck checks the room store connection and prints what a
// room looks like: one snapshot per revision for a short window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-online-chess/internal/aimove"
	"github.com/park285/cheese-online-chess/internal/clock"
	appcfg "github.com/park285/cheese-online-chess/internal/config"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/park285/cheese-online-chess/internal/envelope"
	"github.com/park285/cheese-online-chess/internal/msgcat"
	"github.com/park285/cheese-online-chess/internal/room"
	"github.com/park285/cheese-online-chess/internal/roomstore/redisstore"
)

func main() {
	code := flag.String("room", "", "room code to inspect")
	watch := flag.Duration("watch", 10*time.Second, "how long to print snapshots")
	create := flag.String("create", "", "create a waiting room with this time control preset ("+strings.Join(clock.PresetNames(), ", ")+")")
	suggest := flag.String("suggest", "", "suggest a move at this difficulty (easy|medium|hard) via AI_BASE_URL or STOCKFISH_PATH")
	flag.Parse()

	if err := appcfg.LoadDotEnv(); err != nil {
		log.Printf("dotenv error: %v", err)
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL is required")
	}
	prefix := "chess:"
	if v, ok := os.LookupEnv("REDIS_KEY_PREFIX"); ok {
		prefix = strings.TrimSpace(v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := redisstore.Open(ctx, redisURL, redisstore.WithPrefix(prefix))
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}
	defer store.Close()
	rooms := room.NewManager(store)

	list, err := rooms.List(ctx)
	if err != nil {
		log.Fatalf("list error: %v", err)
	}
	log.Printf("redis ok: %d room(s) under prefix %q", len(list), prefix)

	if *create != "" {
		tc, err := clock.Preset(*create)
		if err != nil {
			log.Fatalf("preset: %v", err)
		}
		c, err := rooms.CreateRoom(ctx, "roomcheck-"+uuid.NewString(), "roomcheck", domain.White, "", tc)
		if err != nil {
			log.Fatalf("create error: %v", err)
		}
		fmt.Println(c)
		*code = c
	}

	if *code == "" {
		for _, r := range list {
			fmt.Printf("%s status=%s ply=%d\n", r.RoomCode, r.Status, r.Ply())
		}
		return
	}

	r, err := rooms.Get(ctx, *code)
	if err != nil {
		log.Fatalf("room %s: %v", *code, err)
	}
	if *suggest != "" {
		askAI(r, *suggest)
	}

	done := make(chan struct{})
	unsub, err := rooms.Subscribe(context.Background(), *code, func(r *room.Room) {
		if r == nil {
			fmt.Println("room deleted")
			close(done)
			return
		}
		printRoom(r)
	})
	if err != nil {
		log.Fatalf("subscribe error: %v", err)
	}
	defer unsub()

	t := time.NewTimer(*watch)
	defer t.Stop()
	select {
	case <-t.C:
	case <-done:
	}
}

func printRoom(r *room.Room) {
	line := fmt.Sprintf("rev=%d status=%s turn=%s game=%s ply=%d", r.Rev, r.Status, r.GameState.Turn, r.GameState.GameStatus, r.Ply())
	if w, ok := r.RemainingMs(domain.White); ok {
		b, _ := r.RemainingMs(domain.Black)
		line += " white=" + clock.Format(time.Duration(w)*time.Millisecond) + " black=" + clock.Format(time.Duration(b)*time.Millisecond)
	}
	if mv := r.LastMove(); mv != nil {
		line += " last=" + mv.SAN
	}
	fmt.Println(line)
	if r.Status == room.StatusFinished {
		fmt.Println(msgcat.Default().Text("game."+string(r.GameState.GameStatus), map[string]any{"Winner": r.GameState.Winner.Name()}))
	}
}

func askAI(r *room.Room, level string) {
	d, ok := aimove.ParseDifficulty(level)
	if !ok {
		log.Printf("unknown difficulty %q", level)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var s aimove.Suggester
	switch {
	case os.Getenv("AI_BASE_URL") != "":
		s = aimove.NewClient(os.Getenv("AI_BASE_URL"))
	case os.Getenv("STOCKFISH_PATH") != "":
		e, err := aimove.StartUCI(ctx, os.Getenv("STOCKFISH_PATH"))
		if err != nil {
			log.Printf("engine error: %v", err)
			return
		}
		defer e.Close()
		s = e
	default:
		log.Println("neither AI_BASE_URL nor STOCKFISH_PATH set; skipping suggestion")
		return
	}

	g, _, err := envelope.Rehydrate(r.GameState.StartPosition, r.GameState.Moves)
	if err != nil {
		log.Printf("replay error: %v", err)
		return
	}
	mv, fallback, err := aimove.NewPlayer(s).NextMove(ctx, g, d)
	if err != nil {
		log.Printf("suggest error: %v", err)
		return
	}
	fmt.Printf("suggested %s%s%s fallback=%v\n", mv.From, mv.To, mv.Promotion, fallback)
}
