// Package config loads settings for the server and worker from the
// environment and for the client from a TOML file.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/sheets/google"
)

// Mirror backends for the worker.
const (
	MirrorMemory = "memory"
	MirrorSheets = "sheets"
)

// Config is shared by fintrack-server and fintrack-worker.
type Config struct {
	// HTTP Server
	Port           string
	APIToken       string
	TrustedProxies []string
	ListCacheSize  int
	ListCacheTTL   time.Duration
	RateLimit      int
	ShutdownGrace  time.Duration

	// Database
	SQLiteDBPath string

	// AMQP; an empty URL disables events on the server
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	MirrorBackend     string
	Sheets            google.Config
	RecurringInterval time.Duration
	ResyncOnStart     bool

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		APIToken:       getEnv("FINTRACK_API_TOKEN", ""),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		ListCacheSize:  getEnvInt("LIST_CACHE_SIZE", 500),
		ListCacheTTL:   getEnvDuration("LIST_CACHE_TTL", 5*time.Minute),
		RateLimit:      getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		ShutdownGrace:  getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "record_changed"),

		MirrorBackend:     getEnv("MIRROR_BACKEND", MirrorMemory),
		Sheets:            google.ConfigFromEnv(),
		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
		ResyncOnStart:     getEnvBool("RESYNC_ON_START", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate checks settings common to every binary and returns all problems
// at once.
func (c *Config) Validate() error {
	return joinProblems(c.commonProblems())
}

// ValidateServer adds the server's requirements to Validate.
func (c *Config) ValidateServer() error {
	problems := c.commonProblems()
	if c.APIToken == "" {
		problems = append(problems, "FINTRACK_API_TOKEN is required")
	}
	if c.ListCacheSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid list cache size %d: must be at least 1", c.ListCacheSize))
	}
	if c.ListCacheTTL < time.Second {
		problems = append(problems, fmt.Sprintf("invalid list cache TTL %v: must be at least 1 second", c.ListCacheTTL))
	}
	if c.RateLimit < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimit))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			problems = append(problems, fmt.Sprintf("invalid trusted proxy '%s': %v", cidr, err))
		}
	}
	return joinProblems(problems)
}

// ValidateWorker adds the worker's requirements to Validate.
func (c *Config) ValidateWorker() error {
	problems := c.commonProblems()
	if c.AMQPURL == "" {
		problems = append(problems, "AMQP_URL is required for the worker")
	}
	switch c.MirrorBackend {
	case MirrorMemory:
	case MirrorSheets:
		if c.Sheets.SpreadsheetID == "" {
			problems = append(problems, "GOOGLE_SPREADSHEET_ID is required when using sheets mirror")
		}
		if c.Sheets.CredentialsJSON == "" && c.Sheets.CredentialsFile == "" {
			problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets mirror")
		} else if c.Sheets.CredentialsFile != "" {
			if _, err := os.Stat(c.Sheets.CredentialsFile); os.IsNotExist(err) {
				problems = append(problems, fmt.Sprintf("Google credentials file does not exist: %s", c.Sheets.CredentialsFile))
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid mirror backend '%s': must be one of [%s %s]", c.MirrorBackend, MirrorMemory, MirrorSheets))
	}
	if c.RecurringInterval < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		problems = append(problems, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}
	return joinProblems(problems)
}

func (c *Config) commonProblems() []string {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		problems = append(problems, "SQLite database path cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ShutdownGrace <= 0 {
		problems = append(problems, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownGrace))
	}
	return problems
}

// EnsureDataDir creates the directory holding the SQLite file.
func (c *Config) EnsureDataDir() error {
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir == "." || dir == "" || c.SQLiteDBPath == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create SQLite database directory '%s': %w", dir, err)
	}
	return nil
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable; unset means nil.
func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
