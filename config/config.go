package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Connection and tuning knobs
// come from environment variables; the crawl inputs (store cookie mapping and
// category URL list) come from a YAML run file.
type Config struct {
	DBDriver string
	DBDSN    string

	CFClearance string

	MaxConcurrency int
	PolitenessMs   int
	RetryBackoffMs int
	MaxRetries     int
	ObjectsPerPage int
	DrainSnapshots bool

	// Stores maps a store display name to its session cookie value.
	Stores map[string]string
	// CategoryURLs lists the category pages to crawl per store.
	CategoryURLs []string
}

type runFile struct {
	Stores     map[string]string `yaml:"stores"`
	Categories []string          `yaml:"categories"`
}

// Load reads the .env file, the environment, and the YAML run file. Any
// missing or malformed crawl input is a fatal configuration error: no partial
// run is attempted.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "data/bazaar.db"),

		CFClearance: os.Getenv("CF_CLEARANCE"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		PolitenessMs:   getEnvInt("POLITENESS_MS", 1000),
		RetryBackoffMs: getEnvInt("RETRY_BACKOFF_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 5),
		ObjectsPerPage: getEnvInt("OBJECTS_PER_PAGE", 250),
		DrainSnapshots: getEnvBool("DRAIN_SNAPSHOTS", false),
	}

	if cfg.CFClearance == "" {
		return nil, fmt.Errorf("config: CF_CLEARANCE environment variable is missing")
	}

	runPath := getEnv("RUN_CONFIG", "run.yaml")
	f, err := os.ReadFile(runPath)
	if err != nil {
		return nil, fmt.Errorf("config: read run file %q: %w", runPath, err)
	}
	var run runFile
	if err := yaml.Unmarshal(f, &run); err != nil {
		return nil, fmt.Errorf("config: parse run file %q: %w", runPath, err)
	}

	if len(run.Stores) == 0 {
		return nil, fmt.Errorf("config: no store locations defined in %q", runPath)
	}
	for name, cookie := range run.Stores {
		if strings.TrimSpace(cookie) == "" {
			return nil, fmt.Errorf("config: store %q has an empty session cookie", name)
		}
	}
	if len(run.Categories) == 0 {
		return nil, fmt.Errorf("config: no category URLs defined in %q", runPath)
	}
	for _, raw := range run.Categories {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("config: malformed category URL %q", raw)
		}
	}

	cfg.Stores = run.Stores
	cfg.CategoryURLs = run.Categories
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
