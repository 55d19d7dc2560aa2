package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Client environment variables; each overrides the file value.
const (
	EnvServerURL = "FINTRACK_SERVER_URL"
	EnvUserID    = "FINTRACK_USER_ID"
	EnvAPIToken  = "FINTRACK_API_TOKEN"
	EnvDBPath    = "FINTRACK_DB_PATH"
	EnvConfig    = "FINTRACK_CONFIG"
)

// ClientConfig is the fintrack CLI configuration.
type ClientConfig struct {
	Server  ServerSection  `toml:"server"`
	Storage StorageSection `toml:"storage"`
	Sync    SyncSection    `toml:"sync"`
	Budget  BudgetSection  `toml:"budget"`
	Log     LogSection     `toml:"log"`
}

type ServerSection struct {
	URL      string `toml:"url"`
	UserID   string `toml:"user_id"`
	APIToken string `toml:"api_token,omitempty"`
	Timeout  string `toml:"timeout,omitempty"`
}

type StorageSection struct {
	DBPath string `toml:"db_path,omitempty"`
}

type SyncSection struct {
	MaxRetries    int    `toml:"max_retries"`
	ProbeInterval string `toml:"probe_interval"`
	ProbeTimeout  string `toml:"probe_timeout"`
}

type BudgetSection struct {
	CycleDay int `toml:"cycle_day"`
}

type LogSection struct {
	Level string `toml:"level"`
}

// DefaultClientConfig returns the defaults; server settings have none.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server: ServerSection{Timeout: "15s"},
		Sync: SyncSection{
			MaxRetries:    3,
			ProbeInterval: "30s",
			ProbeTimeout:  "5s",
		},
		Budget: BudgetSection{CycleDay: 1},
		Log:    LogSection{Level: "warn"},
	}
}

// ClientConfigDir returns the XDG-compliant config directory.
func ClientConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fintrack")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fintrack")
}

// ClientConfigPath is FINTRACK_CONFIG or config.toml in ClientConfigDir.
func ClientConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(ClientConfigDir(), "config.toml")
}

// DefaultClientDBPath is the local database under the XDG data directory.
func DefaultClientDBPath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "fintrack", "client.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "fintrack", "client.db")
}

// LoadClient reads path (missing file is fine), applies environment
// overrides and fills defaults. It does not validate.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Server.URL, EnvServerURL)
	override(&cfg.Server.UserID, EnvUserID)
	override(&cfg.Server.APIToken, EnvAPIToken)
	override(&cfg.Storage.DBPath, EnvDBPath)
	override(&cfg.Log.Level, "LOG_LEVEL")

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = DefaultClientDBPath()
	}
	return cfg, nil
}

// MissingVariablesError names every required setting that is unset.
type MissingVariablesError struct {
	Names []string
}

func (e *MissingVariablesError) Error() string {
	return "missing required configuration: " + strings.Join(e.Names, ", ") +
		" (set them in " + ClientConfigPath() + " or the environment)"
}

// Validate fails fast with every missing required variable named, then
// checks the remaining values.
func (c ClientConfig) Validate() error {
	var missing []string
	if c.Server.URL == "" {
		missing = append(missing, EnvServerURL)
	}
	if c.Server.UserID == "" {
		missing = append(missing, EnvUserID)
	}
	if c.Server.APIToken == "" {
		missing = append(missing, EnvAPIToken)
	}
	if len(missing) > 0 {
		return &MissingVariablesError{Names: missing}
	}

	var problems []string
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		problems = append(problems, fmt.Sprintf("invalid server url '%s': must start with http:// or https://", c.Server.URL))
	}
	for name, v := range map[string]string{
		"server.timeout":      c.Server.Timeout,
		"sync.probe_interval": c.Sync.ProbeInterval,
		"sync.probe_timeout":  c.Sync.ProbeTimeout,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("invalid %s '%s': must be a positive duration", name, v))
		}
	}
	if c.Sync.MaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("invalid sync.max_retries %d: must be at least 1", c.Sync.MaxRetries))
	}
	if c.Budget.CycleDay < 1 || c.Budget.CycleDay > 31 {
		problems = append(problems, fmt.Sprintf("invalid budget.cycle_day %d: must be between 1 and 31", c.Budget.CycleDay))
	}
	return joinProblems(problems)
}

// IsMissing reports whether err is a MissingVariablesError.
func IsMissing(err error) bool {
	var m *MissingVariablesError
	return errors.As(err, &m)
}

// Duration accessors return zero for unparsable values; Validate reports them.
func (c ClientConfig) Timeout() time.Duration       { return mustDuration(c.Server.Timeout) }
func (c ClientConfig) ProbeInterval() time.Duration { return mustDuration(c.Sync.ProbeInterval) }
func (c ClientConfig) ProbeTimeout() time.Duration  { return mustDuration(c.Sync.ProbeTimeout) }

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// SaveClient writes cfg to path, readable by the owner only.
func SaveClient(path string, cfg ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
