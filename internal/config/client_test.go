package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearClientEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvServerURL, EnvUserID, EnvAPIToken, EnvDBPath, EnvConfig, "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestLoadClientMissingFileUsesDefaults(t *testing.T) {
	clearClientEnv(t)
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.MaxRetries != 3 || cfg.Budget.CycleDay != 1 || cfg.ProbeInterval() != 30*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !strings.HasSuffix(cfg.Storage.DBPath, filepath.Join("fintrack", "client.db")) {
		t.Fatalf("db path %q", cfg.Storage.DBPath)
	}
}

func TestValidateNamesEveryMissingVariable(t *testing.T) {
	clearClientEnv(t)
	cfg, _ := LoadClient(filepath.Join(t.TempDir(), "absent.toml"))

	err := cfg.Validate()
	if !IsMissing(err) {
		t.Fatalf("expected missing variables error, got %v", err)
	}
	for _, name := range []string{EnvServerURL, EnvUserID, EnvAPIToken} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}

	t.Setenv(EnvServerURL, "http://localhost:8081")
	cfg, _ = LoadClient(filepath.Join(t.TempDir(), "absent.toml"))
	err = cfg.Validate()
	if strings.Contains(err.Error(), EnvServerURL) {
		t.Errorf("server url is set and must not be reported: %v", err)
	}
}

func TestLoadClientFileAndEnvOverride(t *testing.T) {
	clearClientEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
url = "https://fintrack.example.com"
user_id = "alice"
api_token = "from-file"

[sync]
max_retries = 5
probe_interval = "1m"
probe_timeout = "3s"

[budget]
cycle_day = 25
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAPIToken, "from-env")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Server.APIToken != "from-env" {
		t.Errorf("env should override the file, got %q", cfg.Server.APIToken)
	}
	if cfg.Server.UserID != "alice" || cfg.Sync.MaxRetries != 5 || cfg.Budget.CycleDay != 25 || cfg.ProbeInterval() != time.Minute {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Timeout() != 15*time.Second {
		t.Errorf("unset timeout should keep the default, got %v", cfg.Timeout())
	}
}

func TestClientValidateValues(t *testing.T) {
	base := DefaultClientConfig()
	base.Server = ServerSection{URL: "http://localhost", UserID: "u", APIToken: "t", Timeout: "15s"}

	tests := []struct {
		name   string
		mutate func(c *ClientConfig)
		want   string
	}{
		{"bad url", func(c *ClientConfig) { c.Server.URL = "localhost:8081" }, "invalid server url"},
		{"bad duration", func(c *ClientConfig) { c.Sync.ProbeTimeout = "soon" }, "sync.probe_timeout"},
		{"bad retries", func(c *ClientConfig) { c.Sync.MaxRetries = 0 }, "sync.max_retries"},
		{"bad cycle day", func(c *ClientConfig) { c.Budget.CycleDay = 32 }, "budget.cycle_day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseErrorNamesFile(t *testing.T) {
	clearClientEnv(t)
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[server\nurl = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadClient(path); err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected parse error naming the file, got %v", err)
	}
}

func TestSaveClientRoundTrip(t *testing.T) {
	clearClientEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := DefaultClientConfig()
	cfg.Server.URL = "http://localhost:8081"
	cfg.Server.UserID = "bob"
	cfg.Server.APIToken = "tok"

	if err := SaveClient(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 file, got %v %v", info, err)
	}
	loaded, err := LoadClient(path)
	if err != nil || loaded.Server.UserID != "bob" || loaded.Validate() != nil {
		t.Fatalf("reload: %+v %v", loaded, err)
	}
}

func TestClientConfigPath(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ClientConfigPath(); got != filepath.Join("/xdg", "fintrack", "config.toml") {
		t.Fatalf("path = %q", got)
	}
	t.Setenv(EnvConfig, "/etc/fintrack.toml")
	if got := ClientConfigPath(); got != "/etc/fintrack.toml" {
		t.Fatalf("override = %q", got)
	}
}
