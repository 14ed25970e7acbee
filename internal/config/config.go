package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/imgajeed76/gridsync/internal/access"
	"github.com/imgajeed76/gridsync/internal/util"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "GRIDSYNC_CONFIG"

// Config is the gridsync config.toml.
type Config struct {
	Core     CoreConfig               `toml:"core"`
	API      APIConfig                `toml:"api"`
	Database DatabaseConfig           `toml:"database"`
	Session  SessionConfig            `toml:"session"`
	UI       UIConfig                 `toml:"ui"`
	Tables   map[string]*TableProfile `toml:"tables"`
}

// CoreConfig holds view defaults shared by every table.
type CoreConfig struct {
	DefaultPageSize int   `toml:"default_page_size" config:"core.default_page_size" default:"10" min:"1" max:"1000" desc:"Rows per page when a view does not say"`
	PageSizes       []int `toml:"page_sizes"`
	RestoreViews    bool  `toml:"restore_views" config:"core.restore_views" default:"true" desc:"Reopen tables with their last view"`
}

// APIConfig points at the REST backend.
type APIConfig struct {
	BaseURL string `toml:"base_url" config:"api.base_url" desc:"REST backend base URL"`
	Token   string `toml:"token" config:"api.token" desc:"Bearer token sent with every request"`
	Timeout int    `toml:"timeout" config:"api.timeout" default:"15" min:"1" max:"600" desc:"Request timeout in seconds"`
}

// DatabaseConfig enables the direct Postgres backend.
type DatabaseConfig struct {
	URL              string `toml:"url" config:"database.url" desc:"Postgres URL (replaces the REST backend when set)"`
	MaxConns         int    `toml:"max_conns" config:"database.max_conns" default:"4" min:"1" max:"64" desc:"Connection pool size"`
	StatementTimeout int    `toml:"statement_timeout" config:"database.statement_timeout" default:"30" min:"1" max:"3600" desc:"Statement timeout in seconds"`
}

// SessionConfig describes the signed-in user.
type SessionConfig struct {
	UserID string   `toml:"user_id" config:"session.user_id" desc:"User id used for capability rules"`
	Admin  bool     `toml:"admin" config:"session.admin" default:"false" desc:"Grant admin capabilities"`
	Groups []string `toml:"groups"`
}

// UIConfig holds terminal settings.
type UIConfig struct {
	LogFile string `toml:"log_file" config:"ui.log_file" desc:"Log file for interactive sessions (empty = config dir)"`
	NoColor bool   `toml:"no_color" config:"ui.no_color" default:"false" desc:"Disable colors"`
}

// Capabilities returns the session as an access capability set.
func (s SessionConfig) Capabilities() access.Capabilities {
	return access.Capabilities{
		UserID: s.UserID,
		Admin:  s.Admin,
		Groups: append([]string(nil), s.Groups...),
	}
}

// DefaultConfig returns a config with the built-in table profiles.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			DefaultPageSize: 10,
			PageSizes:       []int{10, 20, 50, 100},
			RestoreViews:    true,
		},
		API: APIConfig{
			Timeout: 15,
		},
		Database: DatabaseConfig{
			MaxConns:         4,
			StatementTimeout: 30,
		},
		Tables: BuiltinTables(),
	}
}

// Dir returns the gridsync config directory.
// Follows XDG Base Directory spec on Linux, platform conventions elsewhere
func Dir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "gridsync")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "gridsync")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "gridsync")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "gridsync")
	}
}

// Path returns the config file path, honouring GRIDSYNC_CONFIG.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file at path. A missing file yields the defaults.
// Tables declared in the file replace built-in profiles of the same name.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	builtins := cfg.Tables
	cfg.Tables = nil

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, util.NewError("Cannot read config").
				WithContext(path).
				WithSuggestions("gridsync config --list     # Show effective settings").
				Wrap(err)
		}
	}

	defaults := DefaultConfig()
	if cfg.Core.DefaultPageSize == 0 {
		cfg.Core.DefaultPageSize = defaults.Core.DefaultPageSize
	}
	if len(cfg.Core.PageSizes) == 0 {
		cfg.Core.PageSizes = defaults.Core.PageSizes
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = defaults.API.Timeout
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = defaults.Database.MaxConns
	}

	if cfg.Tables == nil {
		cfg.Tables = make(map[string]*TableProfile)
	}
	for name, p := range builtins {
		if _, ok := cfg.Tables[name]; !ok {
			cfg.Tables[name] = p
		}
	}
	return cfg, nil
}

// Save writes the config file to path. Built-in table profiles are only
// written when they were changed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	out := *c
	out.Tables = make(map[string]*TableProfile, len(c.Tables))
	builtins := BuiltinTables()
	for name, p := range c.Tables {
		if b, ok := builtins[name]; ok && reflect.DeepEqual(b, p) {
			continue
		}
		out.Tables[name] = p
	}
	return toml.NewEncoder(f).Encode(&out)
}

// Table returns the profile called name.
func (c *Config) Table(name string) (*TableProfile, error) {
	p, ok := c.Tables[name]
	if !ok {
		return nil, util.UnknownTableError(name, c.TableNames())
	}
	return p, nil
}

// TableNames returns the configured profile names, sorted.
func (c *Config) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetValue returns a config value by key (uses reflection)
func (c *Config) GetValue(key string) (string, bool) {
	return getFieldValue(c, key)
}

// SetValue sets a config value by key (uses reflection with validation)
func (c *Config) SetValue(key, value string) error {
	return setFieldValue(c, key, value)
}
