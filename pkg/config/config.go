// Package config loads, validates and persists the supervisor's
// operator-visible settings.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"
)

// MetricsMethod selects how metrics leave the process.
type MetricsMethod string

const (
	MetricsPull MetricsMethod = "PULL"
	MetricsPush MetricsMethod = "PUSH"
)

// Config holds the current settings used by the supervisor.
//
// Fields are validated with struct tags; cmsd_period, cmsd_wait,
// service_timeout and min_ok are the invariants called out in the data
// model (cmsd_period>0, cmsd_wait>=0, service_timeout>0, min_ok>=0).
type Config struct {
	ClusterID string   `validate:"required"`
	Hostname  string   // derived, not persisted
	Servers   []string // ordered; duplicates not meaningful

	SSHUser  string `validate:"required"`
	PKeyPath string
	PKeyName string

	XrootdSvc string `validate:"required"`
	CmsdSvc   string `validate:"required"`

	CmsdPeriod     int `validate:"gt=0"`
	CmsdWait       int `validate:"gte=0"`
	ServiceTimeout int `validate:"gt=0"`
	MinOK          int `validate:"gte=0"`

	MetricsMethod MetricsMethod
	MetricsPort   int
	PushGwURL     string
	AlertURL      string
	PromURL       string
	LogLevel      string

	// MaintenanceScript, when non-empty, is the path to a JavaScript file
	// defining allowed(hour, weekday), called once per tick to decide
	// whether a restart may fire (see pkg/maintenance).
	MaintenanceScript string
	// MQTTBroker, when non-empty, enables publishing restart lifecycle
	// events to an MQTT topic (see pkg/alerter's event bus).
	MQTTBroker string

	// PrivKeyFile is derived from PKeyPath/PKeyName.
	PrivKeyFile string

	path string
}

// fileFormat mirrors the on-disk [general] section, key for key. Fields
// absent from the file keep whatever value MapTo finds already set on
// the struct it is given, which is how the "fallback to default"
// behavior below is implemented.
type fileFormat struct {
	ClusterID         string `ini:"cluster_id"`
	Servers           string `ini:"servers"`
	SSHUser           string `ini:"ssh_user"`
	PKeyPath          string `ini:"pkey_path"`
	PKeyName          string `ini:"pkey_name"`
	XrootdSvc         string `ini:"xrootd_svc"`
	CmsdSvc           string `ini:"cmsd_svc"`
	CmsdPeriod        int    `ini:"cmsd_period"`
	CmsdWait          int    `ini:"cmsd_wait"`
	ServiceTimeout    int    `ini:"service_timeout"`
	MinOK             int    `ini:"min_ok"`
	MetricsMethod     string `ini:"metrics_method"`
	MetricsPort       int    `ini:"metrics_port"`
	PushGwURL         string `ini:"pushgw_url"`
	AlertURL          string `ini:"alert_url"`
	PromURL           string `ini:"prom_url"`
	LogLevel          string `ini:"log_level"`
	MaintenanceScript string `ini:"maintenance_script"`
	MQTTBroker        string `ini:"mqtt_broker"`
}

// DefaultConfig returns the built-in defaults, used both as the seed for
// Load's fallback merge and to write a fresh file on first run.
func DefaultConfig() *Config {
	return &Config{
		ClusterID:      "production",
		SSHUser:        "xrootdrestart",
		PKeyName:       "xrootdrestartkey",
		PKeyPath:       baseDir(),
		XrootdSvc:      "xrootd@cluster",
		CmsdSvc:        "cmsd@cluster",
		CmsdPeriod:     3 * 24 * 3600,
		CmsdWait:       300,
		ServiceTimeout: 120,
		MinOK:          1,
		MetricsMethod:  MetricsPull,
		MetricsPort:    8000,
		PushGwURL:      "http://localhost:9091",
		AlertURL:       "http://localhost:9093",
		PromURL:        "http://localhost:9090",
		LogLevel:       "INFO",
	}
}

// baseDir returns the OS-dependent configuration directory: /etc for the
// superuser, ~/.config otherwise.
func baseDir() string {
	if os.Geteuid() == 0 {
		return "/etc/xrootdrestart"
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "xrootdrestart")
}

// DefaultConfigFile returns the default config file path for the caller's
// privilege level.
func DefaultConfigFile() string {
	return filepath.Join(baseDir(), "xrootdrestart.conf")
}

// Load reads the INI config file at path (DefaultConfigFile() if empty).
// A missing file triggers writing the defaults and continuing.
// failNoKey controls whether a configured but missing private key file
// is fatal: true (the default for the supervisor's own run) fails,
// false is reserved for the out-of-scope interactive setup flow.
func Load(path string, failNoKey bool) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile()
	}

	cfg := DefaultConfig()
	cfg.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		cfg.applyDerived()
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	raw := cfg.toFileFormat()
	section := f.Section("general")
	if err := section.MapTo(&raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fromFileFormat(raw)
	cfg.applyDerived()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if cfg.PKeyName != "" {
		if _, err := os.Stat(cfg.PrivKeyFile); err != nil {
			if failNoKey {
				return nil, fmt.Errorf("private key %s does not exist", cfg.PrivKeyFile)
			}
		}
	}

	return cfg, nil
}

// Validate checks the struct-tag invariants and normalizes the two
// enumerated fields that fall back to defaults on invalid input rather
// than failing validation outright (metrics_method, log_level).
func Validate(cfg *Config) error {
	if cfg.MetricsMethod != MetricsPull && cfg.MetricsMethod != MetricsPush {
		slog.Warn("unknown metrics_method, falling back to PULL", "metrics_method", string(cfg.MetricsMethod))
		cfg.MetricsMethod = MetricsPull
	}
	valid := false
	for _, l := range []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"} {
		if strings.EqualFold(cfg.LogLevel, l) {
			cfg.LogLevel = l
			valid = true
			break
		}
	}
	if !valid {
		cfg.LogLevel = "INFO"
	}

	return validator.New().Struct(cfg)
}

// Save writes the settings back to the config file.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = DefaultConfigFile()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f := ini.Empty()
	section, err := f.NewSection("general")
	if err != nil {
		return err
	}
	raw := c.toFileFormat()
	if err := section.ReflectFrom(&raw); err != nil {
		return err
	}

	return f.SaveTo(path)
}

func (c *Config) applyDerived() {
	host, _ := os.Hostname()
	c.Hostname = host
	if c.PKeyName != "" {
		c.PrivKeyFile = filepath.Join(c.PKeyPath, c.PKeyName)
	}
}

func (c *Config) toFileFormat() fileFormat {
	return fileFormat{
		ClusterID:         c.ClusterID,
		Servers:           strings.Join(c.Servers, ","),
		SSHUser:           c.SSHUser,
		PKeyPath:          c.PKeyPath,
		PKeyName:          c.PKeyName,
		XrootdSvc:         c.XrootdSvc,
		CmsdSvc:           c.CmsdSvc,
		CmsdPeriod:        c.CmsdPeriod,
		CmsdWait:          c.CmsdWait,
		ServiceTimeout:    c.ServiceTimeout,
		MinOK:             c.MinOK,
		MetricsMethod:     string(c.MetricsMethod),
		MetricsPort:       c.MetricsPort,
		PushGwURL:         c.PushGwURL,
		AlertURL:          c.AlertURL,
		PromURL:           c.PromURL,
		LogLevel:          c.LogLevel,
		MaintenanceScript: c.MaintenanceScript,
		MQTTBroker:        c.MQTTBroker,
	}
}

func (c *Config) fromFileFormat(raw fileFormat) {
	c.ClusterID = raw.ClusterID
	if raw.Servers != "" {
		parts := strings.Split(raw.Servers, ",")
		c.Servers = make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				c.Servers = append(c.Servers, p)
			}
		}
	} else {
		c.Servers = nil
	}
	c.SSHUser = raw.SSHUser
	c.PKeyPath = raw.PKeyPath
	c.PKeyName = raw.PKeyName
	c.XrootdSvc = raw.XrootdSvc
	c.CmsdSvc = raw.CmsdSvc
	c.CmsdPeriod = raw.CmsdPeriod
	c.CmsdWait = raw.CmsdWait
	c.ServiceTimeout = raw.ServiceTimeout
	c.MinOK = raw.MinOK
	c.MetricsMethod = MetricsMethod(strings.ToUpper(raw.MetricsMethod))
	c.MetricsPort = raw.MetricsPort
	c.PushGwURL = raw.PushGwURL
	c.AlertURL = raw.AlertURL
	c.PromURL = raw.PromURL
	c.LogLevel = raw.LogLevel
	c.MaintenanceScript = raw.MaintenanceScript
	c.MQTTBroker = raw.MQTTBroker
}

// Path returns the file this config was loaded from or will be saved to.
func (c *Config) Path() string { return c.path }
