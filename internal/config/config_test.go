package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"priorityforge/internal/utils"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), CONFIG_FILE_NAME)
	if err := os.WriteFile(path, []byte(body), CONFIG_FILE_PERM); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesSample(t *testing.T) {
	t.Setenv(EnvRemoteURL, "")
	t.Setenv(EnvAnonKey, "")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.IsRemoteConfigured() {
		t.Error("sample placeholders reported as a configured remote")
	}
	if cfg.Engine.TransitionDelay != 1500*time.Millisecond {
		t.Errorf("TransitionDelay = %v, want 1.5s", cfg.Engine.TransitionDelay)
	}
	if cfg.Engine.SuppressWindow != 500*time.Millisecond {
		t.Errorf("SuppressWindow = %v, want 500ms", cfg.Engine.SuppressWindow)
	}
	if cfg.Engine.ReprioritizeSchedule != "0 0 * * *" {
		t.Errorf("ReprioritizeSchedule = %q", cfg.Engine.ReprioritizeSchedule)
	}
	if cfg.UI.DefaultView != "active" || cfg.UI.DefaultSort != "difficulty" {
		t.Errorf("UI = %+v", cfg.UI)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "remote:\n  url: https://example.test\n  anon_key: key\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Remote.Table != "tasks" || cfg.Remote.RequestTimeout != 15*time.Second {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Engine.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.Engine.ShutdownTimeout)
	}
	if cfg.UI.DateFormat != utils.ISODate {
		t.Errorf("DateFormat = %q", cfg.UI.DateFormat)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "remote:\n  url: https://file.test\n  anon_key: file-key\n")
	t.Setenv(EnvRemoteURL, "https://env.test")
	t.Setenv(EnvAnonKey, "env-key")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Remote.URL != "https://env.test" || cfg.Remote.AnonKey != "env-key" {
		t.Errorf("Remote = %+v, want environment values", cfg.Remote)
	}
}

func TestDotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, "engine:\n  transition_delay: 2s\n")
	envFile := filepath.Join(filepath.Dir(path), ENV_FILE_NAME)
	body := EnvRemoteURL + "=https://dotenv.test\n" + EnvAnonKey + "=dotenv-key\n"
	if err := os.WriteFile(envFile, []byte(body), 0600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv never overrides variables that are already set, so make sure
	// these two are unset and restored afterwards.
	t.Setenv(EnvRemoteURL, "")
	t.Setenv(EnvAnonKey, "")
	os.Unsetenv(EnvRemoteURL)
	os.Unsetenv(EnvAnonKey)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Remote.URL != "https://dotenv.test" || !cfg.IsRemoteConfigured() {
		t.Errorf("Remote = %+v, want values from .env", cfg.Remote)
	}
	if cfg.Engine.TransitionDelay != 2*time.Second {
		t.Errorf("TransitionDelay = %v, want 2s", cfg.Engine.TransitionDelay)
	}
}

func TestIsRemoteConfigured(t *testing.T) {
	tests := []struct {
		name string
		url  string
		key  string
		want bool
	}{
		{"configured", "https://abc.example.co", "eyJ", true},
		{"plain http", "http://localhost:54321", "eyJ", true},
		{"empty", "", "", false},
		{"no scheme", "abc.example.co", "eyJ", false},
		{"url placeholder", "https://PASTE_URL", "eyJ", false},
		{"key placeholder", "https://abc.example.co", "PASTE_KEY", false},
		{"missing key", "https://abc.example.co", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Remote: RemoteConfig{URL: tt.url, AnonKey: tt.key}}
			if got := cfg.IsRemoteConfigured(); got != tt.want {
				t.Errorf("IsRemoteConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateReportsYAMLKey(t *testing.T) {
	tests := []struct {
		name string
		body string
		key  string
	}{
		{"bad view", "ui:\n  default_view: someday\n", "ui.default_view"},
		{"bad sort", "ui:\n  default_sort: title\n", "ui.default_sort"},
		{"negative delay", "engine:\n  transition_delay: -1s\n", "engine.transition_delay"},
		{"bad table", "remote:\n  table: tasks?select=*\n", "remote.table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("LoadFrom() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), "'"+tt.key+"'") {
				t.Errorf("error = %v, want it to name %s", err, tt.key)
			}
		})
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "engine: [unterminated\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid config file") {
		t.Errorf("LoadFrom() error = %v", err)
	}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"DBPath":          "db_path",
		"AnonKey":         "anon_key",
		"URL":             "url",
		"UI":              "ui",
		"TransitionDelay": "transition_delay",
	}
	for in, want := range tests {
		if got := snakeCase(in); got != want {
			t.Errorf("snakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetCustomConfigPath(t *testing.T) {
	defer SetCustomConfigPath("")
	dir := t.TempDir()

	SetCustomConfigPath(dir)
	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if got != filepath.Join(dir, CONFIG_FILE_NAME) {
		t.Errorf("directory resolved to %s", got)
	}

	file := filepath.Join(dir, "custom.yaml")
	SetCustomConfigPath(file)
	if got, _ := GetConfigPath(); got != file {
		t.Errorf("GetConfigPath() = %s, want %s", got, file)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", CONFIG_FILE_NAME)

	if err := WriteSample(path, false); err != nil {
		t.Fatalf("WriteSample() error = %v", err)
	}
	if err := WriteSample(path, false); err == nil {
		t.Error("second WriteSample() without force succeeded")
	}
	if err := WriteSample(path, true); err != nil {
		t.Errorf("WriteSample(force) error = %v", err)
	}

	t.Setenv(EnvRemoteURL, "")
	t.Setenv(EnvAnonKey, "")
	if _, err := LoadFrom(path); err != nil {
		t.Errorf("written sample does not load: %v", err)
	}
}

func TestDBPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	cfg := Config{}
	got, err := cfg.DBPath()
	if err != nil || got != filepath.Join("/data", utils.AppName, "tasks.db") {
		t.Errorf("DBPath() = %q, %v", got, err)
	}

	t.Setenv("PF_TEST_DIR", "/custom")
	cfg.Local.DBPath = "$PF_TEST_DIR/t.db"
	if got, _ := cfg.DBPath(); got != "/custom/t.db" {
		t.Errorf("DBPath() = %q, want expanded", got)
	}
}
