package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration read from the environment.
type Config struct {
	AppEnv   string
	LogLevel slog.Level
	Port     string

	DataDir        string
	StorageBackend string
	MaxMemoryMB    int64
	MaxStorageMB   int64
	Retention      time.Duration

	GatewayBaseURL  string
	GatewayID       string
	GatewayNodes    []string
	GatewayUsername string
	GatewayPassword string
	GatewayMonths   int
	GatewayTimeout  time.Duration
}

// Load reads an optional .env file and then the process environment.
// A missing .env is not an error; malformed values are.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	appEnv := getEnv("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	backend := getEnv("STORAGE_BACKEND", DefaultBackend)
	switch backend {
	case "badger", "memory":
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_BACKEND %q (allowed: badger, memory)", backend)
	}

	maxMemoryMB, err := getEnvInt64("MAX_MEMORY_MB", DefaultMemoryMB)
	if err != nil {
		return Config{}, err
	}
	maxStorageMB, err := getEnvInt64("MAX_STORAGE_MB", DefaultMaxStorageMB)
	if err != nil {
		return Config{}, err
	}
	months, err := getEnvInt64("GATEWAY_MONTHS", DefaultGatewayMonths)
	if err != nil {
		return Config{}, err
	}
	if months < 1 {
		return Config{}, fmt.Errorf("invalid GATEWAY_MONTHS %d: must be at least 1", months)
	}
	timeout, err := getEnvDuration("GATEWAY_TIMEOUT", DefaultGatewayTimeout)
	if err != nil {
		return Config{}, err
	}
	retention, err := getEnvDuration("REPORT_RETENTION", DefaultRetention)
	if err != nil {
		return Config{}, err
	}

	nodes := splitList(os.Getenv("GATEWAY_NODES"))
	if len(nodes) == 0 {
		nodes = append([]string(nil), DefaultGatewayNodes...)
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		Port:            getEnv("PORT", DefaultPort),
		DataDir:         getEnv("DATA_DIR", DefaultDataDir),
		StorageBackend:  backend,
		MaxMemoryMB:     maxMemoryMB,
		MaxStorageMB:    maxStorageMB,
		Retention:       retention,
		GatewayBaseURL:  strings.TrimRight(getEnv("GATEWAY_BASE_URL", DefaultGatewayBaseURL), "/"),
		GatewayID:       getEnv("GATEWAY_ID", DefaultGatewayID),
		GatewayNodes:    nodes,
		GatewayUsername: strings.TrimSpace(os.Getenv("GATEWAY_USERNAME")),
		GatewayPassword: os.Getenv("GATEWAY_PASSWORD"),
		GatewayMonths:   int(months),
		GatewayTimeout:  timeout,
	}, nil
}

// ParseLogLevel maps a textual level onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getEnv(key, defaultValue string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return parsed, nil
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
