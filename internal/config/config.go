package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ALIST_SYNC_"

// Config represents the optional alist-sync configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Filter   FilterConfig   `toml:"filter"`
	Servers  []ServerConfig `toml:"servers"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults. Nil means "not set".
type DefaultsConfig struct {
	Name      *string `toml:"name"`
	CacheDir  *string `toml:"cache_dir"`
	Store     *string `toml:"store"`
	StorePath *string `toml:"store_path"`
	LogFile   *string `toml:"log_file"`

	Workers        *int           `toml:"workers"`
	IdleTimeout    *time.Duration `toml:"idle_timeout"`
	SubmitInterval *time.Duration `toml:"submit_interval"`
	PollInterval   *time.Duration `toml:"poll_interval"`
	Timeout        *time.Duration `toml:"timeout"`
	Daemon         *bool          `toml:"daemon"`
	Debug          *bool          `toml:"debug"`
	TUI            *bool          `toml:"tui"`

	RecheckRetries  *uint          `toml:"recheck_retries"`
	RecheckInterval *time.Duration `toml:"recheck_interval"`

	// EmptyUndoneMeansDone is for servers that never list finished tasks
	// as succeeded.
	EmptyUndoneMeansDone *bool `toml:"empty_undone_means_done"`

	BWLimit   *string `toml:"bwlimit"`
	UserAgent *string `toml:"user_agent"`
	Webhook   *string `toml:"webhook"`
	BackupDir *string `toml:"backup_dir"`
}

// FilterConfig holds default filter rules. They are checked after any rules
// given on the command line, so the command line wins.
type FilterConfig struct {
	Rules   []string `toml:"rules,omitempty"`
	MinSize string   `toml:"min_size,omitempty"`
	MaxSize string   `toml:"max_size,omitempty"`
}

// ThemeConfig holds optional color overrides for the full-screen display.
type ThemeConfig struct {
	OK     *string `toml:"ok"`
	Warn   *string `toml:"warn"`
	Fail   *string `toml:"fail"`
	Accent *string `toml:"accent"`
	Info   *string `toml:"info"`
	Muted  *string `toml:"muted"`
	Dim    *string `toml:"dim"`
	Bright *string `toml:"bright"`
}

// ServerConfig describes an Alist server addressable as "name:/path".
type ServerConfig struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	Token    string `toml:"token,omitempty"`
	Insecure bool   `toml:"insecure,omitempty"`
}

// Env holds the ALIST_SYNC_* environment overrides. Zero values are
// treated as unset.
type Env struct {
	Debug    bool          `env:"DEBUG"`
	Daemon   bool          `env:"DAEMON"`
	CacheDir string        `env:"CACHE_DIR"`
	Timeout  time.Duration `env:"TIMEOUT"`
	Name     string        `env:"NAME"`
	Webhook  string        `env:"WEBHOOK"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "alist-sync", "config.toml")
}

// Load reads the config file from the XDG path and applies environment
// overrides. A missing file yields a zero Config.
func Load() (Config, error) {
	return LoadFrom(Path())
}

// LoadFrom is Load for an explicit path. An empty path skips the file.
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	e, err := LoadEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv(e)
	return cfg, nil
}

// LoadEnv parses the ALIST_SYNC_* variables.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Prefix: EnvPrefix}); err != nil {
		return Env{}, fmt.Errorf("environment: %w", err)
	}
	return e, nil
}

// ApplyEnv overlays the set fields of e onto c.Defaults.
func (c *Config) ApplyEnv(e Env) {
	d := &c.Defaults
	if e.Debug {
		d.Debug = &e.Debug
	}
	if e.Daemon {
		d.Daemon = &e.Daemon
	}
	if e.CacheDir != "" {
		d.CacheDir = &e.CacheDir
	}
	if e.Timeout > 0 {
		d.Timeout = &e.Timeout
	}
	if e.Name != "" {
		d.Name = &e.Name
	}
	if e.Webhook != "" {
		d.Webhook = &e.Webhook
	}
}

// Server returns the [[servers]] entry called name.
func (c Config) Server(name string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		switch {
		case s.Name == "":
			return fmt.Errorf("servers[%d]: missing name", i)
		case s.URL == "":
			return fmt.Errorf("server %q: missing url", s.Name)
		case seen[s.Name]:
			return fmt.Errorf("server %q: defined twice", s.Name)
		}
		seen[s.Name] = true
	}
	if w := c.Defaults.Workers; w != nil && *w < 0 {
		return fmt.Errorf("workers: must not be negative, got %d", *w)
	}
	return nil
}
