package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisURL       string
	RedisKeyPrefix string
	DatabaseURL    string

	NATSURL           string
	NATSSubjectPrefix string

	SweepInterval   time.Duration
	FinishedRoomTTL time.Duration
	IdleRoomTTL     time.Duration
	// RoomTTL is the redis expiry of a room key, refreshed on every write.
	RoomTTL time.Duration

	AIBaseURL string
	AITimeout time.Duration

	MessagesDir string
}

// LoadDotEnv reads the given files (".env" when none) into the process
// environment without overriding variables that are already set. Missing
// files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8080",
		RedisKeyPrefix:    "chess:",
		NATSSubjectPrefix: "chess.rooms",
		SweepInterval:     time.Minute,
		FinishedRoomTTL:   10 * time.Minute,
		IdleRoomTTL:       30 * time.Minute,
		RoomTTL:           24 * time.Hour,
		AITimeout:         15 * time.Second,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AllowedOrigins = list(env("CORS_ALLOWED_ORIGINS"))

	cfg.RedisURL = env("REDIS_URL")
	if v, ok := os.LookupEnv("REDIS_KEY_PREFIX"); ok {
		cfg.RedisKeyPrefix = strings.TrimSpace(v)
	}
	cfg.DatabaseURL = env("DATABASE_URL")

	cfg.NATSURL = env("NATS_URL")
	if v := env("NATS_SUBJECT_PREFIX"); v != "" {
		cfg.NATSSubjectPrefix = v
	}

	var err error
	if cfg.SweepInterval, err = duration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.FinishedRoomTTL, err = duration("FINISHED_ROOM_TTL", cfg.FinishedRoomTTL); err != nil {
		return nil, err
	}
	if cfg.IdleRoomTTL, err = duration("IDLE_ROOM_TTL", cfg.IdleRoomTTL); err != nil {
		return nil, err
	}

	if cfg.RoomTTL, err = duration("ROOM_TTL", cfg.RoomTTL); err != nil {
		return nil, err
	}
	if cfg.RoomTTL <= max(cfg.IdleRoomTTL, cfg.FinishedRoomTTL) {
		return nil, fmt.Errorf("ROOM_TTL (%s) must exceed IDLE_ROOM_TTL and FINISHED_ROOM_TTL", cfg.RoomTTL)
	}

	cfg.AIBaseURL = env("AI_BASE_URL")
	if cfg.AITimeout, err = duration("AI_TIMEOUT", cfg.AITimeout); err != nil {
		return nil, err
	}

	cfg.MessagesDir = env("MESSAGES_DIR")

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func list(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// duration accepts Go durations ("90s") or plain seconds.
func duration(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
