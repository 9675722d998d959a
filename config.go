package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	defaultCacheDir        = "/tmp/geoferry"
	defaultSchema          = "public"
	defaultSRID            = 4326
	defaultStagedThreshold = 10000
	defaultTileAddr        = "127.0.0.1:8081"
	defaultAPIAddr         = "127.0.0.1:3000"

	storePasswordEnv = "GEOFERRY_STORE_PASSWORD"
)

// AppConfig holds the full TOML-driven configuration.
type AppConfig struct {
	CacheDir      string       `toml:"cache_dir"`
	ExcludeTables []string     `toml:"exclude_tables"`
	Store         StoreConfig  `toml:"store"`
	Import        ImportConfig `toml:"import"`
	Style         StyleConfig  `toml:"style"`
	Server        ServerConfig `toml:"server"`
	Hooks         HooksConfig  `toml:"hooks"`

	// configDir is the directory containing the TOML file, used to resolve relative SQL paths.
	configDir string
}

// StoreConfig is the initial canonical store connection. Empty host means
// "start disconnected".
type StoreConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	Params   string `toml:"params"`
}

type ImportConfig struct {
	Schema          string `toml:"schema"`
	DefaultSRID     int    `toml:"default_srid"`
	StagedThreshold int    `toml:"staged_threshold"` // features; 0 disables staging
	StagingDir      string `toml:"staging_dir"`      // default: os.TempDir()
}

// StyleConfig is the rendering style attached to imported tables and drawn
// into vector graphics.
type StyleConfig struct {
	FillColor   string  `toml:"fill_color"`
	FillOpacity float64 `toml:"fill_opacity"`
	Color       string  `toml:"color"`
	Weight      float64 `toml:"weight"`
}

type ServerConfig struct {
	TileAddr string `toml:"tile_addr"`
	APIAddr  string `toml:"api_addr"`
}

type HooksConfig struct {
	AfterImport []string `toml:"after_import"`
}

func defaultStyleConfig() StyleConfig {
	return StyleConfig{
		FillColor:   "#d18a69",
		FillOpacity: 0.5,
		Color:       "#d18a69",
		Weight:      1,
	}
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		CacheDir: defaultCacheDir,
		Store:    StoreConfig{Port: 5432},
		Import: ImportConfig{
			Schema:          defaultSchema,
			DefaultSRID:     defaultSRID,
			StagedThreshold: defaultStagedThreshold,
		},
		Style: defaultStyleConfig(),
		Server: ServerConfig{
			TileAddr: defaultTileAddr,
			APIAddr:  defaultAPIAddr,
		},
	}
}

// loadConfig reads a TOML config file and returns an AppConfig with defaults
// applied. An empty path yields the defaults. A .env file next to the config
// (or in the working directory) is loaded first.
func loadConfig(path string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	cfg.configDir = "."

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfg.configDir = filepath.Dir(absPath)
	}
	loadDotEnv(cfg.configDir)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, len(unknown))
			for i, k := range unknown {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	}

	if pw, ok := os.LookupEnv(storePasswordEnv); ok {
		cfg.Store.Password = pw
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads .env from dir and the working directory. Variables already
// present in the environment win.
func loadDotEnv(dir string) {
	for _, p := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func (c *AppConfig) validate() error {
	c.CacheDir = strings.TrimSpace(c.CacheDir)
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}

	schema, err := normalizeIdentifier(c.Import.Schema)
	if err != nil {
		return fmt.Errorf("import.schema: %w", err)
	}
	c.Import.Schema = schema

	if c.Import.DefaultSRID <= 0 {
		return fmt.Errorf("import.default_srid must be positive")
	}
	if c.Import.StagedThreshold < 0 {
		return fmt.Errorf("import.staged_threshold must be >= 0")
	}

	if c.Style.FillOpacity < 0 || c.Style.FillOpacity > 1 {
		return fmt.Errorf("style.fill_opacity must be between 0 and 1")
	}
	if c.Style.Weight < 0 {
		return fmt.Errorf("style.weight must be >= 0")
	}
	for _, col := range []struct{ key, val string }{
		{"style.fill_color", c.Style.FillColor},
		{"style.color", c.Style.Color},
	} {
		if !isHexColor(col.val) {
			return fmt.Errorf("%s must be a #rrggbb color, got %q", col.key, col.val)
		}
	}

	if c.Store.Host != "" {
		if c.Store.Port <= 0 || c.Store.Port > 65535 {
			return fmt.Errorf("store.port must be between 1 and 65535")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store.database is required when store.host is set")
		}
	}

	if c.Server.TileAddr == "" {
		return fmt.Errorf("server.tile_addr is required")
	}
	if c.Server.APIAddr == "" {
		return fmt.Errorf("server.api_addr is required")
	}
	return nil
}

// storeConnection returns the configured initial connection, or the zero
// value when no host is configured.
func (c *AppConfig) storeConnection() ConnectionConfig {
	if c.Store.Host == "" {
		return ConnectionConfig{}
	}
	return ConnectionConfig{
		Username: c.Store.Username,
		Password: c.Store.Password,
		Host:     c.Store.Host,
		Port:     c.Store.Port,
		Database: c.Store.Database,
		Params:   c.Store.Params,
	}
}

// resolvePath resolves a path relative to the config file directory.
func (c *AppConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
