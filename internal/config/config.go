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

const (
	DefaultBind          = ":8080"
	DefaultShortTokenMax = 4
	DefaultRetagWorkers  = 4
	DefaultRetagBatch    = 200

	DefaultDictionaryLoadTimeout = 30 * time.Second
)

type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "apikey"
)

type Config struct {
	Bind                  string
	DBDSN                 string
	DictionaryFile        string
	WatchDictionary       bool
	ShortTokenMax         int
	// DictionaryLoadTimeout bounds one read of the dictionary source.
	DictionaryLoadTimeout time.Duration
	AuthMode              AuthMode
	APIKeysFile           string
	CORSAllowedOrigins    []string
	LogLevel              string
	RetagWorkers          int
	RetagBatch            int
	SwaggerUIPath         string
	OpenAPIPath           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Bind:                  getenv("TAGCANON_BIND", DefaultBind),
		DBDSN:                 os.Getenv("TAGCANON_DB_DSN"),
		DictionaryFile:        os.Getenv("TAGCANON_DICTIONARY_FILE"),
		WatchDictionary:       getBool("TAGCANON_WATCH_DICTIONARY", false),
		ShortTokenMax:         getInt("TAGCANON_SHORT_TOKEN_MAX", DefaultShortTokenMax),
		DictionaryLoadTimeout: getDuration("TAGCANON_DICTIONARY_LOAD_TIMEOUT", DefaultDictionaryLoadTimeout),
		AuthMode:              AuthMode(getenv("TAGCANON_AUTH_MODE", string(AuthAPIKey))),
		CORSAllowedOrigins:    splitAndTrim(os.Getenv("TAGCANON_CORS_ALLOWED_ORIGINS")),
		LogLevel:              os.Getenv("TAGCANON_LOG_LEVEL"),
		RetagWorkers:          getInt("TAGCANON_RETAG_WORKERS", DefaultRetagWorkers),
		RetagBatch:            getInt("TAGCANON_RETAG_BATCH", DefaultRetagBatch),
		SwaggerUIPath:         "/swagger",
		OpenAPIPath:           "/openapi.yaml",
	}

	if cfg.DBDSN == "" && cfg.DictionaryFile == "" {
		return nil, fmt.Errorf("TAGCANON_DB_DSN is required unless TAGCANON_DICTIONARY_FILE is set")
	}
	if cfg.WatchDictionary && cfg.DictionaryFile == "" {
		return nil, fmt.Errorf("TAGCANON_WATCH_DICTIONARY needs TAGCANON_DICTIONARY_FILE")
	}
	if cfg.ShortTokenMax < 1 {
		return nil, fmt.Errorf("invalid TAGCANON_SHORT_TOKEN_MAX: %d", cfg.ShortTokenMax)
	}
	if cfg.DictionaryLoadTimeout <= 0 {
		return nil, fmt.Errorf("invalid TAGCANON_DICTIONARY_LOAD_TIMEOUT: %s", cfg.DictionaryLoadTimeout)
	}
	if cfg.RetagWorkers < 1 {
		cfg.RetagWorkers = 1
	}
	if cfg.RetagBatch < 1 {
		cfg.RetagBatch = DefaultRetagBatch
	}

	switch cfg.AuthMode {
	case AuthNone, AuthAPIKey:
	default:
		return nil, fmt.Errorf("invalid TAGCANON_AUTH_MODE: %s", cfg.AuthMode)
	}

	if cfg.AuthMode == AuthAPIKey {
		cfg.APIKeysFile = getenv("TAGCANON_API_KEYS_FILE", "api-keys.yaml")
	}

	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		return v == "1" || v == "true" || v == "yes" || v == "y"
	}
	return def
}

func splitAndTrim(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
