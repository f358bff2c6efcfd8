package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/wfcgen/internal/database"
	"github.com/lawnchairsociety/wfcgen/internal/wfc"
)

// Config is the top-level wfcgen configuration.
type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	Sample     SampleConfig     `yaml:"sample"`
	Render     RenderConfig     `yaml:"render"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
}

// GenerationConfig holds the solver settings.
type GenerationConfig struct {
	Width  int   `yaml:"width"`
	Height int   `yaml:"height"`
	Seed   int64 `yaml:"seed"`

	// Attempts is the number of independent fresh solves before giving up.
	Attempts int `yaml:"attempts"`

	// MaxIterations caps collapses per attempt. 0 means width*height.
	MaxIterations int `yaml:"max_iterations"`
}

// SampleConfig selects the input sample.
type SampleConfig struct {
	// Path to a .txt or .yaml sample. Empty uses the built-in coastline.
	Path string `yaml:"path"`
}

// RenderConfig controls terminal output.
type RenderConfig struct {
	// Color is "auto", "always" or "never".
	Color string `yaml:"color"`
}

// StorageConfig selects where generations are persisted.
type StorageConfig struct {
	// Driver is "sqlite", "postgres" or "none".
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ServerConfig holds settings for the streaming server.
type ServerConfig struct {
	Address string `yaml:"address"`

	// MaxCells rejects requests whose width*height exceeds it.
	MaxCells int `yaml:"max_cells"`

	// StepDelayMS pauses between streamed steps so that clients can animate.
	StepDelayMS int `yaml:"step_delay_ms"`

	Connections ConnectionsConfig `yaml:"connections"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
}

// ConnectionsConfig limits concurrent streaming connections. 0 means unlimited.
type ConnectionsConfig struct {
	MaxPerIP int `yaml:"max_per_ip"`
	MaxTotal int `yaml:"max_total"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultConfig returns the defaults: a single 15x15 solve of the built-in
// sample, stored in a local SQLite file.
func DefaultConfig() *Config {
	pg := database.DefaultPostgresConfig()
	return &Config{
		Generation: GenerationConfig{
			Width:    15,
			Height:   15,
			Attempts: 1,
		},
		Render: RenderConfig{Color: "auto"},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "data/wfcgen.db",
			Postgres: PostgresConfig{
				Host:            pg.Host,
				Port:            pg.Port,
				SSLMode:         pg.SSLMode,
				MaxOpenConns:    pg.MaxOpenConns,
				MaxIdleConns:    pg.MaxIdleConns,
				ConnMaxLifetime: pg.ConnMaxLifetime,
			},
		},
		Server: ServerConfig{
			Address:     ":8080",
			MaxCells:    10000,
			StepDelayMS: 0,
			Connections: ConnectionsConfig{
				MaxPerIP: 4,
				MaxTotal: 64,
			},
			WebSocket: WebSocketConfig{
				AllowedOrigins: []string{}, // Same-origin only by default
				MaxMessageSize: 64 * 1024,
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file over the defaults.
// A missing file yields the defaults; a malformed one yields the defaults
// and the parse error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing %s: %w", path, err)
	}

	return config, nil
}

// Validate checks sizes and enumerated settings.
func (c *Config) Validate() error {
	var errs []error

	g := c.Generation
	if g.Width <= 0 || g.Height <= 0 {
		errs = append(errs, fmt.Errorf("generation size %dx%d must be positive", g.Width, g.Height))
	}
	if g.Attempts < 1 {
		errs = append(errs, fmt.Errorf("generation attempts must be at least 1, got %d", g.Attempts))
	}
	if g.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("generation max_iterations must not be negative"))
	}

	switch strings.ToLower(c.Render.Color) {
	case "", "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("render color %q must be auto, always or never", c.Render.Color))
	}

	switch c.Storage.Driver {
	case "none", "":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage sqlite_path is required for the sqlite driver"))
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.Database == "" {
			errs = append(errs, errors.New("storage postgres host and database are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage driver %q must be sqlite, postgres or none", c.Storage.Driver))
	}

	if c.Server.MaxCells <= 0 {
		errs = append(errs, fmt.Errorf("server max_cells must be positive, got %d", c.Server.MaxCells))
	}
	if c.Server.StepDelayMS < 0 {
		errs = append(errs, errors.New("server step_delay_ms must not be negative"))
	}
	if c.Server.Connections.MaxPerIP < 0 || c.Server.Connections.MaxTotal < 0 {
		errs = append(errs, errors.New("server connection limits must not be negative"))
	}

	return errors.Join(errs...)
}

// GeneratorConfig converts the generation section for wfc.NewGenerator.
func (c *Config) GeneratorConfig() *wfc.Config {
	return &wfc.Config{
		Width:         c.Generation.Width,
		Height:        c.Generation.Height,
		Seed:          c.Generation.Seed,
		Attempts:      c.Generation.Attempts,
		MaxIterations: c.Generation.MaxIterations,
	}
}

// Enabled reports whether generations should be persisted at all.
func (s StorageConfig) Enabled() bool {
	return s.Driver != "" && s.Driver != "none"
}

// DatabaseConfig converts the storage section for database.Open.
func (s StorageConfig) DatabaseConfig() database.Config {
	return database.Config{
		Driver:     s.Driver,
		SQLitePath: s.SQLitePath,
		Postgres: database.PostgresConfig{
			Host:            s.Postgres.Host,
			Port:            s.Postgres.Port,
			User:            s.Postgres.User,
			Password:        s.Postgres.Password,
			Database:        s.Postgres.Database,
			SSLMode:         s.Postgres.SSLMode,
			MaxOpenConns:    s.Postgres.MaxOpenConns,
			MaxIdleConns:    s.Postgres.MaxIdleConns,
			ConnMaxLifetime: s.Postgres.ConnMaxLifetime,
		},
	}
}

// StepDelay returns the configured pause between streamed steps.
func (s ServerConfig) StepDelay() time.Duration {
	return time.Duration(s.StepDelayMS) * time.Millisecond
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means a non-browser client
	}

	// "http://localhost:3000" -> "localhost:3000"
	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
