package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/models"
)

// Config is everything main needs to wire a device.
type Config struct {
	Environment string

	DBDriver    string
	SQLiteFile  string
	DatabaseURL string

	NATSURL           string
	NATSSubjectPrefix string

	ClickHouseAddr     string
	ClickHouseDB       string
	ClickHouseUser     string
	ClickHousePassword string

	Match   models.MatchDescriptor
	LocalID string

	BoardURL string
	Dev      bool

	HTTPPort string
	GRPCPort string

	SettleDelay       time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	DisconnectGrace   time.Duration
}

// Development reports whether local stand-ins replace external services.
func (c *Config) Development() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
		logger.Debug("No .env file found, using environment only")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:        os.Getenv("ENVIRONMENT"),
		DBDriver:           getenv("DB_DRIVER", "memory"),
		SQLiteFile:         getenv("SQLITE_FILE", "dev.sqlite"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		NATSURL:            getenv("NATS_URL", "nats://localhost:4222"),
		NATSSubjectPrefix:  getenv("NATS_SUBJECT_PREFIX", "darts.match"),
		ClickHouseAddr:     getenv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:       getenv("CLICKHOUSE_DB", "default"),
		ClickHouseUser:     getenv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
		LocalID:            os.Getenv("PLAYER_ID"),
		BoardURL:           getenv("BOARD_URL", "ws://localhost:8765/ws"),
		HTTPPort:           getenv("HTTP_PORT", "3000"),
		GRPCPort:           getenv("GRPC_PORT", "50051"),
	}

	var err error
	if cfg.Dev, err = getbool("DEV"); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = getmillis("SETTLE_DELAY_MS", 1500); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = getmillis("HEARTBEAT_INTERVAL_MS", 1000); err != nil {
		return nil, err
	}
	if cfg.HeartbeatTimeout, err = getmillis("HEARTBEAT_TIMEOUT_MS", 5000); err != nil {
		return nil, err
	}
	grace, err := getint("DISCONNECT_GRACE_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.DisconnectGrace = time.Duration(grace) * time.Second

	switch cfg.DBDriver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q (valid: memory, sqlite, postgres)", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}

	if cfg.Match, err = matchFromEnv(); err != nil {
		return nil, err
	}
	if cfg.LocalID == "" {
		return nil, fmt.Errorf("PLAYER_ID is required")
	}
	if _, ok := cfg.Match.Seat(cfg.LocalID); !ok {
		return nil, fmt.Errorf("PLAYER_ID %q is not one of MATCH_PLAYERS", cfg.LocalID)
	}
	return cfg, nil
}

// matchFromEnv builds the descriptor both devices must agree on. Seat order
// is the order of MATCH_PLAYERS.
func matchFromEnv() (models.MatchDescriptor, error) {
	m := models.MatchDescriptor{
		ID:     os.Getenv("MATCH_ID"),
		Status: models.StatusAccepted,
	}

	ids := splitList(os.Getenv("MATCH_PLAYERS"))
	if len(ids) != 2 {
		return m, fmt.Errorf("MATCH_PLAYERS must name exactly two players, got %d", len(ids))
	}
	names := splitList(os.Getenv("MATCH_PLAYER_NAMES"))
	for i, id := range ids {
		m.Players[i] = models.Player{ID: id, Name: id}
		if i < len(names) {
			m.Players[i].Name = names[i]
		}
	}

	for _, s := range splitList(getenv("MATCH_LEGS", "501")) {
		v, err := models.ParseVariant(s)
		if err != nil {
			return m, fmt.Errorf("MATCH_LEGS: %w", err)
		}
		m.Legs = append(m.Legs, v)
	}

	var err error
	if m.InMode, err = models.ParseInOutMode(os.Getenv("MATCH_IN")); err != nil {
		return m, fmt.Errorf("MATCH_IN: %w", err)
	}
	if m.OutMode, err = models.ParseInOutMode(os.Getenv("MATCH_OUT")); err != nil {
		return m, fmt.Errorf("MATCH_OUT: %w", err)
	}
	if m.BullMode, err = models.ParseBullMode(os.Getenv("BULL_MODE")); err != nil {
		return m, fmt.Errorf("BULL_MODE: %w", err)
	}

	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func getmillis(key string, def int) (time.Duration, error) {
	n, err := getint(key, def)
	return time.Duration(n) * time.Millisecond, err
}

func getbool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
