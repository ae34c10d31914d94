package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and engine selectors.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	BackendRemote = "remote"
	BackendNATS   = "nats"
)

const (
	defaultListenAddr    = ":8000"
	defaultStore         = StoreSQLite
	defaultDBPath        = "qcflow.db"
	defaultRedisAddr     = "localhost:6380"
	defaultShots         = 1024
	defaultExecTimeout   = 30 * time.Second
	defaultMaxConcurrent = 8
	defaultBackend       = BackendRemote
	defaultEngineURL     = "http://localhost:9000"
	defaultNATSURL       = "nats://127.0.0.1:4222"
	defaultNATSSubject   = "circuits.run"

	envListenAddr    = "QCFLOW_LISTEN_ADDR"
	envLogLevel      = "QCFLOW_LOG_LEVEL"
	envStore         = "QCFLOW_STORE"
	envDBPath        = "QCFLOW_DB_PATH"
	envRedisAddr     = "QCFLOW_REDIS_ADDR"
	envRedisPassword = "QCFLOW_REDIS_PASSWORD"
	envRedisDB       = "QCFLOW_REDIS_DB"
	envShots         = "QCFLOW_SHOTS"
	envExecTimeout   = "QCFLOW_EXEC_TIMEOUT"
	envStartDelay    = "QCFLOW_START_DELAY"
	envMaxConcurrent = "QCFLOW_MAX_CONCURRENT"
	envBackend       = "QCFLOW_BACKEND"
	envEngineURL     = "QCFLOW_ENGINE_URL"
	envNATSURL       = "QCFLOW_NATS_URL"
	envNATSSubject   = "QCFLOW_NATS_SUBJECT"
	envStatusSubject = "QCFLOW_STATUS_SUBJECT"

	defaultEngineListenAddr = ":9000"
	defaultEngineTimeout    = 30 * time.Second

	envEngineListenAddr = "QCFLOW_ENGINE_LISTEN_ADDR"
	envEngineTransport  = "QCFLOW_ENGINE_TRANSPORT"
	envEngineDelay      = "QCFLOW_ENGINE_DELAY"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	LogLevel   slog.Level

	Store         string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Shots         int
	ExecTimeout   time.Duration
	StartDelay    time.Duration
	MaxConcurrent int

	Backend     string
	EngineURL   string
	NATSURL     string
	NATSSubject string
	// StatusSubject receives terminal task events; empty disables publishing.
	StatusSubject string
}

// Load reads configuration from environment variables with sensible defaults.
// Unparseable or out-of-range values fall back to the default.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		LogLevel:      slog.LevelInfo,
		Store:         defaultStore,
		DBPath:        defaultDBPath,
		RedisAddr:     defaultRedisAddr,
		Shots:         defaultShots,
		ExecTimeout:   defaultExecTimeout,
		MaxConcurrent: defaultMaxConcurrent,
		Backend:       defaultBackend,
		EngineURL:     defaultEngineURL,
		NATSURL:       defaultNATSURL,
		NATSSubject:   defaultNATSSubject,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envStore); v != "" {
		cfg.Store = parseChoice(v, defaultStore, StoreSQLite, StoreRedis)
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	cfg.RedisPassword = os.Getenv(envRedisPassword)
	if v := os.Getenv(envRedisDB); v != "" {
		cfg.RedisDB = parseInt(v, 0, 0)
	}
	if v := os.Getenv(envShots); v != "" {
		cfg.Shots = parseInt(v, defaultShots, 1)
	}
	if v := os.Getenv(envExecTimeout); v != "" {
		cfg.ExecTimeout = parseDuration(v, defaultExecTimeout, time.Millisecond)
	}
	if v := os.Getenv(envStartDelay); v != "" {
		cfg.StartDelay = parseDuration(v, 0, 0)
	}
	if v := os.Getenv(envMaxConcurrent); v != "" {
		cfg.MaxConcurrent = parseInt(v, defaultMaxConcurrent, 1)
	}
	if v := os.Getenv(envBackend); v != "" {
		cfg.Backend = parseChoice(v, defaultBackend, BackendRemote, BackendNATS)
	}
	if v := os.Getenv(envEngineURL); v != "" {
		cfg.EngineURL = v
	}
	if v := os.Getenv(envNATSURL); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv(envNATSSubject); v != "" {
		cfg.NATSSubject = v
	}
	cfg.StatusSubject = strings.TrimSpace(os.Getenv(envStatusSubject))

	return cfg
}

// NeedsNATS reports whether any configured component uses a NATS connection.
func (c Config) NeedsNATS() bool {
	return c.Backend == BackendNATS || c.StatusSubject != ""
}

// EngineConfig holds the settings of the standalone simulator engine.
type EngineConfig struct {
	ListenAddr string
	LogLevel   slog.Level
	// Transport is BackendRemote to serve HTTP or BackendNATS to join the
	// engine queue group.
	Transport   string
	NATSURL     string
	NATSSubject string
	Delay       time.Duration
	Timeout     time.Duration
}

// LoadEngine reads the engine configuration. The NATS and log settings share
// their variables with Load.
func LoadEngine() EngineConfig {
	cfg := EngineConfig{
		ListenAddr:  defaultEngineListenAddr,
		LogLevel:    slog.LevelInfo,
		Transport:   BackendRemote,
		NATSURL:     defaultNATSURL,
		NATSSubject: defaultNATSSubject,
		Timeout:     defaultEngineTimeout,
	}

	if v := os.Getenv(envEngineListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envEngineTransport); v != "" {
		cfg.Transport = parseChoice(v, BackendRemote, BackendRemote, BackendNATS)
	}
	if v := os.Getenv(envNATSURL); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv(envNATSSubject); v != "" {
		cfg.NATSSubject = v
	}
	if v := os.Getenv(envEngineDelay); v != "" {
		cfg.Delay = parseDuration(v, 0, 0)
	}
	if v := os.Getenv(envExecTimeout); v != "" {
		cfg.Timeout = parseDuration(v, defaultEngineTimeout, time.Millisecond)
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseChoice(s, def string, allowed ...string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	return def
}

func parseInt(s string, def, floor int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < floor {
		return def
	}
	return n
}

func parseDuration(s string, def, floor time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < floor {
		return def
	}
	return d
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
