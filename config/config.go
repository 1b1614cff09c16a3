// Package config loads relay settings from defaults, an optional YAML file and
// the environment (with .env support).
// file: config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full relay configuration.
type Config struct {
	Env     string        `yaml:"env"`
	LogDir  string        `yaml:"log_dir"`
	Server  ServerConfig  `yaml:"server"`
	Panel   PanelConfig   `yaml:"panel"`
	Session SessionConfig `yaml:"session"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig covers the HTTP and socket surface.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	ApplicationURL string   `yaml:"application_url"`
	PublicDir      string   `yaml:"public_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SessionSecret  string   `yaml:"session_secret"`
}

// PanelConfig selects and addresses the panel controller.
type PanelConfig struct {
	Driver      string        `yaml:"driver"`
	Device      string        `yaml:"device"`
	BaudRate    int           `yaml:"baud_rate"`
	Address     string        `yaml:"address"`
	SlaveID     int           `yaml:"slave_id"`
	Meters      int           `yaml:"meters"`
	Timeout     time.Duration `yaml:"timeout"`
	BusInterval time.Duration `yaml:"bus_interval"`
}

// SessionConfig tunes the per-connection snapshot cycle.
type SessionConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollBudget    int           `yaml:"poll_budget"`
	SetupAttempts int           `yaml:"setup_attempts"`
}

// MetricsConfig enables the optional AWS exporters.
type MetricsConfig struct {
	CloudWatchEnabled   bool   `yaml:"cloudwatch_enabled"`
	CloudWatchNamespace string `yaml:"cloudwatch_namespace"`
	XRayEnabled         bool   `yaml:"xray_enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:    "development",
		LogDir: "./logs",
		Server: ServerConfig{
			Port:           8080,
			ApplicationURL: "http://localhost:8080",
			PublicDir:      "./public",
			SessionSecret:  "panel-relay-secret",
		},
		Panel: PanelConfig{
			Driver:      "sim",
			Device:      "/dev/ttyUSB0",
			BaudRate:    115200,
			Address:     "127.0.0.1:502",
			SlaveID:     1,
			Meters:      2,
			Timeout:     time.Second,
			BusInterval: 300 * time.Millisecond,
		},
		Session: SessionConfig{
			PollInterval:  time.Second,
			PollBudget:    10,
			SetupAttempts: 2,
		},
		Metrics: MetricsConfig{
			CloudWatchNamespace: "PanelRelay",
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present. path (or PANEL_CONFIG when path is empty) names an
// optional YAML file; environment variables override both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("PANEL_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.setString("APP_ENV", &c.Env)
	e.setString("LOG_DIR", &c.LogDir)

	e.setInt("PORT", &c.Server.Port)
	e.setString("APPLICATION_URL", &c.Server.ApplicationURL)
	e.setString("PUBLIC_DIR", &c.Server.PublicDir)
	e.setList("ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	e.setString("SESSION_SECRET", &c.Server.SessionSecret)

	e.setString("PANEL_DRIVER", &c.Panel.Driver)
	e.setString("PANEL_DEVICE", &c.Panel.Device)
	e.setInt("PANEL_BAUD", &c.Panel.BaudRate)
	e.setString("PANEL_ADDRESS", &c.Panel.Address)
	e.setInt("PANEL_SLAVE_ID", &c.Panel.SlaveID)
	e.setInt("PANEL_METERS", &c.Panel.Meters)
	e.setDuration("PANEL_TIMEOUT", &c.Panel.Timeout)
	e.setDuration("PANEL_BUS_INTERVAL", &c.Panel.BusInterval)

	e.setDuration("POLL_INTERVAL", &c.Session.PollInterval)
	e.setInt("POLL_BUDGET", &c.Session.PollBudget)
	e.setInt("SETUP_ATTEMPTS", &c.Session.SetupAttempts)

	e.setBool("CLOUDWATCH_ENABLED", &c.Metrics.CloudWatchEnabled)
	e.setString("CLOUDWATCH_NAMESPACE", &c.Metrics.CloudWatchNamespace)
	e.setBool("XRAY_ENABLED", &c.Metrics.XRayEnabled)

	return errors.Join(e.errs...)
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	switch c.Panel.Driver {
	case "modbus-rtu", "modbus-tcp", "sim":
	default:
		errs = append(errs, fmt.Errorf("unknown panel driver %q", c.Panel.Driver))
	}
	if c.Panel.SlaveID < 0 || c.Panel.SlaveID > 247 {
		errs = append(errs, fmt.Errorf("slave id %d out of range 0..247", c.Panel.SlaveID))
	}
	if c.Panel.Meters < 0 {
		errs = append(errs, fmt.Errorf("meter count %d is negative", c.Panel.Meters))
	}
	if c.Session.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval %v must be positive", c.Session.PollInterval))
	}
	if c.Session.PollBudget <= 0 {
		errs = append(errs, fmt.Errorf("poll budget %d must be positive", c.Session.PollBudget))
	}
	if c.Session.SetupAttempts <= 0 {
		errs = append(errs, fmt.Errorf("setup attempts %d must be positive", c.Session.SetupAttempts))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// envReader collects parse errors while applying overrides.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (e *envReader) setList(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}
