package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/minesweep-relay/internal/game"
)

// ServerConfig configures the authoritative UDP server.
type ServerConfig struct {
	UDPAddr     string        `yaml:"udp_addr"`
	AdminAddr   string        `yaml:"admin_addr"` // empty disables the admin API
	DBPath      string        `yaml:"db_path"`
	Seeded      bool          `yaml:"seeded"`
	ServerSeed  string        `yaml:"server_seed"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // zero blocks forever
	MaxSessions int           `yaml:"max_sessions"`
	MaxCells    int           `yaml:"max_cells"` // zero uses the datagram bound
}

// ClientConfig configures the remote-play client.
type ClientConfig struct {
	ServerAddr    string        `yaml:"server_addr"`
	Preset        string        `yaml:"preset"`
	Board         game.Config   `yaml:"board"` // overrides Preset when Rows is set
	SetupTimeout  time.Duration `yaml:"setup_timeout"`
	SetupRetries  int           `yaml:"setup_retries"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
	Script        string        `yaml:"script"`
	ScriptTimeout time.Duration `yaml:"script_timeout"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the whole file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads path (when non-empty), fills defaults for zero values and then
// applies SWEEPER_* environment overrides.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.UDPAddr == "" {
		c.Server.UDPAddr = "127.0.0.1:8080"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = ":memory:"
	}
	if c.Server.MaxSessions == 0 {
		c.Server.MaxSessions = 1024
	}
	if c.Client.ServerAddr == "" {
		c.Client.ServerAddr = "127.0.0.1:8080"
	}
	if c.Client.Preset == "" && c.Client.Board.Rows == 0 {
		c.Client.Preset = "beginner"
	}
	if c.Client.Board.Rows != 0 && c.Client.Board.TileSize == 0 {
		c.Client.Board.TileSize = game.DefaultTileSize
	}
	if c.Client.ScriptTimeout == 0 {
		c.Client.ScriptTimeout = time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv() {
	c.Server.UDPAddr = envString("SWEEPER_UDP_ADDR", c.Server.UDPAddr)
	c.Server.AdminAddr = envString("SWEEPER_ADMIN_ADDR", c.Server.AdminAddr)
	c.Server.DBPath = envString("SWEEPER_DB_PATH", c.Server.DBPath)
	c.Server.ServerSeed = envString("SWEEPER_SERVER_SEED", c.Server.ServerSeed)
	c.Server.MaxSessions = envInt("SWEEPER_MAX_SESSIONS", c.Server.MaxSessions)
	c.Server.MaxCells = envInt("SWEEPER_MAX_CELLS", c.Server.MaxCells)
	c.Client.ServerAddr = envString("SWEEPER_SERVER_ADDR", c.Client.ServerAddr)
	c.Client.SetupRetries = envInt("SWEEPER_SETUP_RETRIES", c.Client.SetupRetries)
	c.Log.Level = envString("SWEEPER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("SWEEPER_LOG_FORMAT", c.Log.Format)
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	var errs []error
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must not be negative"))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions must not be negative"))
	}
	if c.Server.MaxCells < 0 {
		errs = append(errs, fmt.Errorf("server.max_cells must not be negative"))
	}
	if c.Client.SetupRetries < 0 {
		errs = append(errs, fmt.Errorf("client.setup_retries must not be negative"))
	}
	if c.Client.SetupRetries > 0 && c.Client.SetupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("client.setup_retries needs client.setup_timeout"))
	}
	if _, err := c.Client.BoardConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BoardConfig resolves the client's board: explicit dimensions win over the preset.
func (c ClientConfig) BoardConfig() (game.Config, error) {
	if c.Board.Rows != 0 {
		if err := c.Board.Validate(); err != nil {
			return game.Config{}, err
		}
		return c.Board, nil
	}
	return game.Preset(c.Preset)
}

func envString(k, def string) string {
	if s := strings.TrimSpace(os.Getenv(k)); s != "" {
		return s
	}
	return def
}

func envInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return def
}
