// Package config loads the connector configuration from a YAML file with
// environment variable overrides for secrets. Core packages receive typed
// sub-structs from here; nothing else touches files or the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates the configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables that override their file-based counterparts.
// Secrets belong in the environment, not on disk.
const (
	EnvAMISecret      = "AMI_SECRET"
	EnvMySQLPassword  = "MYSQL_PASSWORD"
	EnvDashboardToken = "DASHBOARD_TOKEN"
	EnvAPIToken       = "API_TOKEN"
)

// Config is the top-level connector configuration.
type Config struct {
	AMI       AMIConfig       `yaml:"ami"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Web       WebConfig       `yaml:"web"`
	Sync      SyncConfig      `yaml:"sync"`
	Log       LogConfig       `yaml:"log"`
	Capture   CaptureConfig   `yaml:"capture"`
}

// AMIConfig configures the Asterisk Manager Interface connection.
type AMIConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Secret   string `yaml:"secret"`

	// UseMD5 selects challenge-response login instead of sending the
	// secret in clear text.
	UseMD5 bool      `yaml:"use_md5"`
	TLS    TLSConfig `yaml:"tls"`

	ConnectTimeout    Duration `yaml:"connect_timeout"`
	ActionTimeout     Duration `yaml:"action_timeout"`
	ReconnectDelay    Duration `yaml:"reconnect_delay"`
	KeepAliveInterval Duration `yaml:"keepalive_interval"`
}

// Address returns the AMI endpoint as "host:port".
func (c AMIConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TLSConfig configures AMI-over-TLS (Asterisk tlsenable).
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// ServerName overrides the name verified against the switch
	// certificate. Empty means the configured host.
	ServerName string `yaml:"server_name"`

	// CAFile is a PEM bundle of roots to trust instead of the system pool.
	CAFile string `yaml:"ca_file"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MySQLConfig configures the FreePBX configuration and CDR databases.
type MySQLConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	CDRDatabase string `yaml:"cdr_database"`

	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// Address returns the MySQL endpoint as "host:port".
func (c MySQLConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DashboardConfig configures the hosted dashboard push. An empty URL
// disables it.
type DashboardConfig struct {
	URL          string   `yaml:"url"`
	Token        string   `yaml:"token"`
	SyncInterval Duration `yaml:"sync_interval"`
	Timeout      Duration `yaml:"timeout"`
}

// Enabled reports whether a dashboard endpoint is configured.
func (c DashboardConfig) Enabled() bool {
	return c.URL != ""
}

// WebConfig configures the local REST facade.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AuthToken protects every /api/* endpoint except /api/health.
	// Empty disables authentication.
	AuthToken string `yaml:"auth_token"`
}

// Address returns the listen address as "host:port".
func (c WebConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SyncConfig holds the background task intervals.
type SyncConfig struct {
	ConfigInterval      Duration `yaml:"config_interval"`
	QueueStatsInterval  Duration `yaml:"queue_stats_interval"`
	HealthCheckInterval Duration `yaml:"health_check_interval"`
}

// LogConfig configures application logging.
type LogConfig struct {
	// Level is a zerolog level name: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// CaptureConfig configures the protocol capture journal. An empty file
// path disables it.
type CaptureConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration matching a classic single-host FreePBX
// deployment: everything on localhost, read-only database user, no
// dashboard, no capture.
func Default() *Config {
	return &Config{
		AMI: AMIConfig{
			Host:              "127.0.0.1",
			Port:              5038,
			Username:          "dashboard_user",
			ConnectTimeout:    Duration(10 * time.Second),
			ActionTimeout:     Duration(10 * time.Second),
			ReconnectDelay:    Duration(2 * time.Second),
			KeepAliveInterval: Duration(30 * time.Second),
		},
		MySQL: MySQLConfig{
			Host:           "127.0.0.1",
			Port:           3306,
			User:           "dashboard_ro",
			Database:       "asterisk",
			CDRDatabase:    "asteriskcdrdb",
			ConnectTimeout: Duration(10 * time.Second),
		},
		Dashboard: DashboardConfig{
			SyncInterval: Duration(30 * time.Second),
			Timeout:      Duration(30 * time.Second),
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Sync: SyncConfig{
			ConfigInterval:      Duration(5 * time.Minute),
			QueueStatsInterval:  Duration(30 * time.Second),
			HealthCheckInterval: Duration(time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAMISecret); v != "" {
		c.AMI.Secret = v
	}
	if v := os.Getenv(EnvMySQLPassword); v != "" {
		c.MySQL.Password = v
	}
	if v := os.Getenv(EnvDashboardToken); v != "" {
		c.Dashboard.Token = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.Web.AuthToken = v
	}
}

// Validate checks the configuration and returns all problems joined into
// a single error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	if c.AMI.Username == "" {
		errs = append(errs, errors.New("ami.username is required"))
	}
	if c.AMI.Secret == "" {
		errs = append(errs, fmt.Errorf("ami.secret is required (or %s)", EnvAMISecret))
	}
	if err := validPort("ami.port", c.AMI.Port); err != nil {
		errs = append(errs, err)
	}
	if err := validPort("mysql.port", c.MySQL.Port); err != nil {
		errs = append(errs, err)
	}
	if err := validPort("web.port", c.Web.Port); err != nil {
		errs = append(errs, err)
	}

	intervals := []struct {
		name  string
		value Duration
	}{
		{"ami.connect_timeout", c.AMI.ConnectTimeout},
		{"ami.action_timeout", c.AMI.ActionTimeout},
		{"ami.reconnect_delay", c.AMI.ReconnectDelay},
		{"sync.config_interval", c.Sync.ConfigInterval},
		{"sync.queue_stats_interval", c.Sync.QueueStatsInterval},
		{"sync.health_check_interval", c.Sync.HealthCheckInterval},
		{"dashboard.sync_interval", c.Dashboard.SyncInterval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", iv.name))
		}
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of console, json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d is out of range", name, port)
	}
	return nil
}
