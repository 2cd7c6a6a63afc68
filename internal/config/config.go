package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port   string
	APIKey string

	// Store backend: "bolt" (embedded) or "remote".
	StoreBackend string
	BoltPath     string
	RemoteURL    string
	RemoteAPIKey string

	// Pipeline tunables.
	Granularity       string
	ProximityWindow   int
	Debounce          time.Duration
	GeneratorDebounce time.Duration

	// Managed-region heading names. An empty bibliography title means no
	// bibliography is expected until a marker comment appears.
	BibliographyTitle string
	NotesTitle        string

	SessionTTL   time.Duration
	MaxBodyBytes int64
}

func Load() Config {
	cfg := Config{
		Port:   envOr("PORT", "8091"),
		APIKey: os.Getenv("DOCSYNC_API_KEY"),

		StoreBackend: envOr("STORE_BACKEND", "bolt"),
		BoltPath:     envOr("BOLT_PATH", "docsync.db"),
		RemoteURL:    os.Getenv("REMOTE_STORE_URL"),
		RemoteAPIKey: os.Getenv("REMOTE_STORE_API_KEY"),

		Granularity:       envOr("GRANULARITY", "section"),
		ProximityWindow:   envInt("PROXIMITY_WINDOW", 3),
		Debounce:          envDuration("DEBOUNCE", 300*time.Millisecond),
		GeneratorDebounce: envDuration("GENERATOR_DEBOUNCE", 3*time.Second),

		BibliographyTitle: envOr("BIBLIOGRAPHY_TITLE", "References"),
		NotesTitle:        envOr("NOTES_TITLE", "Notes"),

		SessionTTL:   envDuration("SESSION_TTL", 30*time.Minute),
		MaxBodyBytes: envInt64("MAX_BODY_BYTES", 10485760), // 10MB
	}

	if cfg.ProximityWindow <= 0 {
		cfg.ProximityWindow = 3
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	if cfg.GeneratorDebounce <= 0 {
		cfg.GeneratorDebounce = 3 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10485760
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCSYNC_API_KEY is required")
	}
	switch c.StoreBackend {
	case "bolt":
		if c.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required for the bolt backend")
		}
	case "remote":
		if c.RemoteURL == "" {
			return fmt.Errorf("REMOTE_STORE_URL is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.Granularity {
	case "section", "block":
	default:
		return fmt.Errorf("unknown GRANULARITY %q", c.Granularity)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
