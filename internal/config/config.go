package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"priorityforge/internal/utils"
)

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	CONFIG_FILE_NAME = "config.yaml"
	ENV_FILE_NAME    = ".env"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0644

	// EnvRemoteURL and EnvAnonKey override the remote section.
	EnvRemoteURL = "PRIORITYFORGE_REMOTE_URL"
	EnvAnonKey   = "PRIORITYFORGE_ANON_KEY"

	placeholderMarker = "PASTE"
)

// Config is the whole configuration file.
type Config struct {
	Remote RemoteConfig `yaml:"remote"`
	Local  LocalConfig  `yaml:"local"`
	Engine EngineConfig `yaml:"engine"`
	UI     UIConfig     `yaml:"ui"`
}

// RemoteConfig points at the hosted task table.
type RemoteConfig struct {
	URL            string        `yaml:"url"`
	AnonKey        string        `yaml:"anon_key"`
	Table          string        `yaml:"table" validate:"omitempty,max=63,excludesall=/?&"`
	Realtime       bool          `yaml:"realtime"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

type LocalConfig struct {
	DBPath string `yaml:"db_path"`
}

// EngineConfig tunes the transition and synchronization timers.
type EngineConfig struct {
	TransitionDelay      time.Duration `yaml:"transition_delay" validate:"gte=0"`
	SuppressWindow       time.Duration `yaml:"suppress_window" validate:"gte=0"`
	ReprioritizeSchedule string        `yaml:"reprioritize_schedule"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

type UIConfig struct {
	DefaultView string `yaml:"default_view" validate:"omitempty,oneof=active history"`
	DefaultSort string `yaml:"default_sort" validate:"omitempty,oneof=difficulty urgency due_date none"`
	DateFormat  string `yaml:"date_format"`
}

var customConfigPath string

// SetCustomConfigPath makes Load read path instead of the default location.
// A directory is resolved to the config file inside it.
func SetCustomConfigPath(path string) {
	if path == "" {
		customConfigPath = ""
		return
	}
	expanded, err := utils.ExpandPath(path)
	if err == nil {
		path = expanded
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, CONFIG_FILE_NAME)
	}
	customConfigPath = path
}

// GetConfigPath returns the path Load reads from.
func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		return customConfigPath, nil
	}
	dir, err := utils.ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, CONFIG_FILE_NAME), nil
}

// Load reads the config file, falling back to the embedded sample when it
// does not exist, then applies .env and environment overrides, fills
// defaults and validates.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load for an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := configDataFromPath(path)
	if err != nil {
		return nil, err
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	loadEnvFiles(filepath.Join(filepath.Dir(path), ENV_FILE_NAME), ENV_FILE_NAME)
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// the environment.
func Default() *Config {
	cfg, err := parseConfig(sampleConfig)
	if err != nil {
		panic(fmt.Sprintf("embedded sample config is invalid: %v", err))
	}
	cfg.applyDefaults()
	return cfg
}

func configDataFromPath(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		utils.Debugf("Loaded config from %s", path)
		return data, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		utils.Debugf("No config at %s, using built-in defaults", path)
		return sampleConfig, nil
	}
	return nil, fmt.Errorf("failed to read config file: %w", err)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, utils.WrapWithSuggestion(
			fmt.Errorf("invalid config file: %w", err),
			"Fix the YAML syntax or regenerate the file with 'priorityforge config init --force'",
		)
	}
	return &cfg, nil
}

// loadEnvFiles loads each existing .env file. Variables already set in the
// environment win.
func loadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			utils.Warnf("Ignoring %s: %v", p, err)
		}
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvRemoteURL)); v != "" {
		c.Remote.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAnonKey)); v != "" {
		c.Remote.AnonKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Remote.Table == "" {
		c.Remote.Table = "tasks"
	}
	if c.Remote.RequestTimeout == 0 {
		c.Remote.RequestTimeout = 15 * time.Second
	}
	if c.Engine.TransitionDelay == 0 {
		c.Engine.TransitionDelay = 1500 * time.Millisecond
	}
	if c.Engine.SuppressWindow == 0 {
		c.Engine.SuppressWindow = 500 * time.Millisecond
	}
	if c.Engine.ReprioritizeSchedule == "" {
		c.Engine.ReprioritizeSchedule = "0 0 * * *"
	}
	if c.Engine.ShutdownTimeout == 0 {
		c.Engine.ShutdownTimeout = 5 * time.Second
	}
	if c.UI.DefaultView == "" {
		c.UI.DefaultView = "active"
	}
	if c.UI.DefaultSort == "" {
		c.UI.DefaultSort = "difficulty"
	}
	if c.UI.DateFormat == "" {
		c.UI.DateFormat = utils.ISODate
	}
}

// Validate checks the validate tags and reports the first failure by its
// YAML key.
func (c *Config) Validate() error {
	err := utils.Validator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return utils.ErrInvalidConfig(yamlKey(fe.Namespace()), fmt.Sprintf("failed '%s' check (got %v)", fe.Tag(), fe.Value()))
}

// IsRemoteConfigured reports whether the remote section holds real values
// rather than the sample placeholders.
func (c *Config) IsRemoteConfigured() bool {
	r := c.Remote
	if !strings.HasPrefix(r.URL, "http") || r.AnonKey == "" {
		return false
	}
	return !strings.Contains(r.URL, placeholderMarker) && !strings.Contains(r.AnonKey, placeholderMarker)
}

// DBPath returns the local database path with ~ and $VARS expanded,
// defaulting to the data directory.
func (c *Config) DBPath() (string, error) {
	if c.Local.DBPath != "" {
		return utils.ExpandPath(c.Local.DBPath)
	}
	dir, err := utils.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tasks.db"), nil
}

// WriteSample writes the embedded sample to path, creating its directory.
// An existing file is only replaced when force is set.
func WriteSample(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return utils.WrapWithSuggestion(
			fmt.Errorf("config file already exists at %s", path),
			"Use --force to overwrite it",
		)
	}
	if err := os.MkdirAll(filepath.Dir(path), CONFIG_DIR_PERM); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, sampleConfig, CONFIG_FILE_PERM); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// yamlKey turns a validator namespace like "Config.Engine.TransitionDelay"
// into "engine.transition_delay".
func yamlKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
