// Package config loads the dashboard configuration from a JSON or YAML file,
// LISTERIA_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. LISTERIA_DB_PATH or
// LISTERIA_MONGO_URI.
const EnvPrefix = "LISTERIA"

// Record store backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration. Zero values fall back to the defaults
// returned by the Get* accessors.
type Config struct {
	Listen     string      `mapstructure:"listen"`
	DBPath     string      `mapstructure:"db_path"`
	Store      string      `mapstructure:"store"`
	Mongo      MongoConfig `mapstructure:"mongo"`
	WindowDays int         `mapstructure:"window_days"`

	// SessionTTL is a duration string like "12h".
	SessionTTL    string `mapstructure:"session_ttl"`
	SessionSecret string `mapstructure:"session_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`

	AssetsHost   string     `mapstructure:"assets_host"`
	FloorPlanDir string     `mapstructure:"floor_plan_dir"`
	FloorPlans   FloorPlans `mapstructure:"floor_plans"`

	Debug bool `mapstructure:"debug"`
}

// MongoConfig locates the document record store.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// FloorPlans names the floor-plan image per department, relative to
// FloorPlanDir.
type FloorPlans struct {
	Fresh  string `mapstructure:"fresh"`
	Smoked string `mapstructure:"smoked"`
}

// SetDefaults registers every key with v so environment overrides apply even
// when the key is absent from the file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("db_path", "listeria.db")
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "listeria")
	v.SetDefault("mongo.collection", "lab_results")
	v.SetDefault("window_days", 28)
	v.SetDefault("session_ttl", "12h")
	v.SetDefault("session_secret", "")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("assets_host", "")
	v.SetDefault("floor_plan_dir", "static")
	v.SetDefault("floor_plans.fresh", "fresh_floor_plan.png")
	v.SetDefault("floor_plans.smoked", "smoked_floor_plan.png")
	v.SetDefault("debug", false)
}

// Load reads the optional config file at path into v, layers environment
// overrides on top and returns the validated result. Flags bound to v before
// the call take precedence over both.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := checkFile(path); err != nil {
			return nil, err
		}
		v.SetConfigFile(filepath.Clean(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func checkFile(path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".yaml", ".yml":
	default:
		return fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	return nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	switch c.GetStore() {
	case StoreSQLite, StoreMongo:
	default:
		return fmt.Errorf("store must be %q or %q, got %q", StoreSQLite, StoreMongo, c.Store)
	}
	if c.GetStore() == StoreMongo && c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required when store is %q", StoreMongo)
	}
	if c.WindowDays < 0 {
		return fmt.Errorf("window_days must be positive, got %d", c.WindowDays)
	}
	if c.SessionTTL != "" {
		d, err := time.ParseDuration(c.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid session_ttl '%s': %w", c.SessionTTL, err)
		}
		if d <= 0 {
			return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
		}
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < 32 {
		return fmt.Errorf("session_secret must be at least 32 bytes, got %d", len(c.SessionSecret))
	}
	return nil
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == "" {
		return ":8080"
	}
	return c.Listen
}

// GetDBPath returns the sqlite database path.
func (c *Config) GetDBPath() string {
	if c.DBPath == "" {
		return "listeria.db"
	}
	return c.DBPath
}

// GetStore returns the record store backend name.
func (c *Config) GetStore() string {
	if c.Store == "" {
		return StoreSQLite
	}
	return strings.ToLower(c.Store)
}

// GetWindowDays returns the rolling positivity window length.
func (c *Config) GetWindowDays() int {
	if c.WindowDays <= 0 {
		return 28
	}
	return c.WindowDays
}

// GetSessionTTL returns how long a login session stays valid.
func (c *Config) GetSessionTTL() time.Duration {
	if c.SessionTTL == "" {
		return 12 * time.Hour
	}
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// GetFloorPlanDir returns the directory floor-plan images are served from.
func (c *Config) GetFloorPlanDir() string {
	if c.FloorPlanDir == "" {
		return "static"
	}
	return c.FloorPlanDir
}

// FloorPlanPath returns the image path for a map slug ("fresh" or "smoked").
func (c *Config) FloorPlanPath(slug string) (string, error) {
	var name string
	switch slug {
	case "fresh":
		name = c.FloorPlans.Fresh
		if name == "" {
			name = "fresh_floor_plan.png"
		}
	case "smoked":
		name = c.FloorPlans.Smoked
		if name == "" {
			name = "smoked_floor_plan.png"
		}
	default:
		return "", fmt.Errorf("unknown floor plan %q", slug)
	}
	return filepath.Join(c.GetFloorPlanDir(), name), nil
}
