// Package config loads the bot settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/illarion/lockbot/internal/crypto"
	"github.com/illarion/lockbot/internal/keyring"
)

const (
	DefaultFileName = "config.yaml"

	DefaultSessionTimeout  = 120 * time.Second
	DefaultOpTimeout       = 5 * time.Minute
	DefaultDeviceTimeout   = 10 * time.Second
	DefaultUnlockPerMinute = 5
	DefaultUnlockBurst     = 3
	DefaultLogLevel        = "info"
)

var (
	ErrMissingToken = errors.New("bot token is not configured (set LOCKBOT_TOKEN or run 'lockbot token set')")
	ErrMissingOwner = errors.New("owner id is not configured (set LOCKBOT_OWNER_ID)")
	ErrInvalid      = errors.New("invalid configuration")
)

// Config holds every setting of the bot
type Config struct {
	Token           string        `yaml:"token"`
	OwnerID         int64         `yaml:"owner_id"`
	DataDir         string        `yaml:"data_dir"`
	Roots           []string      `yaml:"roots"`
	SessionTimeout  time.Duration `yaml:"session_timeout"`
	OpTimeout       time.Duration `yaml:"op_timeout"`
	DeviceTimeout   time.Duration `yaml:"device_timeout"`
	KDFIterations   int           `yaml:"kdf_iterations"`
	UnlockPerMinute int           `yaml:"unlock_per_minute"`
	UnlockBurst     int           `yaml:"unlock_burst"`
	LogLevel        string        `yaml:"log_level"`

	tokenSource func() (string, error)
}

// Load reads the configuration. An explicitly named file must exist; the
// default file in the data directory is optional.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv, keyring.GetToken)
}

func load(path string, getenv func(string) string, tokenSource func() (string, error)) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	cfg.tokenSource = tokenSource

	if path == "" {
		path = getenv("LOCKBOT_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		if dir := getenv("LOCKBOT_DATA_DIR"); dir != "" {
			cfg.DataDir = dir
		}
		path = filepath.Join(cfg.DataDir, DefaultFileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() (*Config, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return &Config{
		DataDir:         filepath.Join(base, "lockbot"),
		Roots:           []string{home},
		SessionTimeout:  DefaultSessionTimeout,
		OpTimeout:       DefaultOpTimeout,
		DeviceTimeout:   DefaultDeviceTimeout,
		KDFIterations:   crypto.DefaultIters,
		UnlockPerMinute: DefaultUnlockPerMinute,
		UnlockBurst:     DefaultUnlockBurst,
		LogLevel:        DefaultLogLevel,
	}, nil
}

// firstEnv returns the first non-empty variable among names
func firstEnv(getenv func(string) string, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := firstEnv(getenv, "LOCKBOT_TOKEN", "BOT_TOKEN"); v != "" {
		c.Token = v
	}
	if v := firstEnv(getenv, "LOCKBOT_OWNER_ID", "CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: owner id %q is not a number", ErrInvalid, v)
		}
		c.OwnerID = id
	}
	if v := firstEnv(getenv, "LOCKBOT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := firstEnv(getenv, "LOCKBOT_ROOTS"); v != "" {
		c.Roots = filepath.SplitList(v)
	}
	if v := firstEnv(getenv, "LOCKBOT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// check validates the settings every command needs
func (c *Config) check() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalid)
	}
	var roots []string
	for _, r := range c.Roots {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}
	if len(roots) == 0 {
		return fmt.Errorf("%w: no roots configured", ErrInvalid)
	}
	c.Roots = roots
	if c.KDFIterations < crypto.MinIters || c.KDFIterations > crypto.MaxIters {
		return fmt.Errorf("%w: kdf_iterations must be between %d and %d", ErrInvalid, crypto.MinIters, crypto.MaxIters)
	}
	if c.SessionTimeout <= 0 || c.OpTimeout <= 0 || c.DeviceTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	if c.UnlockBurst < 1 {
		return fmt.Errorf("%w: unlock_burst must be at least 1", ErrInvalid)
	}
	return nil
}

// ValidateServe checks what running the bot requires. A missing token is
// looked up in the OS keyring first.
func (c *Config) ValidateServe() error {
	if c.Token == "" && c.tokenSource != nil {
		if token, err := c.tokenSource(); err == nil {
			c.Token = strings.TrimSpace(token)
		}
	}
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.OwnerID == 0 {
		return ErrMissingOwner
	}
	return nil
}

// RegistryPath is the location of the registry database
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.db")
}
