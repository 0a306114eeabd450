package firstrun

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the entrypoint looks for its configuration when
// neither --config nor FIRSTRUN_CONFIG is set.
const DefaultConfigPath = "/etc/firstrun/config.yaml"

// Environment variables overriding configuration values.
const (
	ConfigPathEnvVar   = "FIRSTRUN_CONFIG"
	MarkerPathEnvVar   = "FIRSTRUN_MARKER"
	MarkerPolicyEnvVar = "FIRSTRUN_MARKER_POLICY"
)

// ShellNone disables the shell handoff when used as the configured shell.
const ShellNone = "none"

// Config holds the entrypoint configuration
type Config struct {
	// MarkerPath is the file whose existence means initialization already happened
	MarkerPath string `yaml:"marker_path"`

	// MarkerPolicy controls when the marker is written: "always" or "on_success" (default: "always")
	MarkerPolicy MarkerPolicy `yaml:"marker_policy"`

	// EnvFile is an optional KEY=value file exported before initialization runs
	EnvFile string `yaml:"env_file,omitempty"`

	// LogFile receives a copy of every entrypoint run log, empty disables it
	LogFile string `yaml:"log_file,omitempty"`

	// SetupScript is the host preparation script run before the database scripts,
	// empty skips the step
	SetupScript string `yaml:"setup_script"`

	// StepTimeout bounds every initialization command, zero means no timeout
	StepTimeout time.Duration `yaml:"step_timeout,omitempty"`

	// Database describes the SQL bootstrap performed on first start
	Database DatabaseConfig `yaml:"database"`

	// Shell is the program handed the process once the gate resolves.
	// Empty means auto-detect, "none" disables the handoff.
	Shell string `yaml:"shell,omitempty"`

	// ShellArgs are passed to the shell after its name
	ShellArgs []string `yaml:"shell_args,omitempty"`
}

// DatabaseConfig holds the database client and endpoint settings
type DatabaseConfig struct {
	// Client is the SQL*Plus binary name or path (default: sqlplus64)
	Client string `yaml:"client"`

	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Service string `yaml:"service"`

	// Scripts are submitted in order, one client invocation each
	Scripts []SQLScript `yaml:"scripts"`
}

// SQLScript is one SQL file submitted under one account
type SQLScript struct {
	// Name identifies the step in logs (e.g. "admin", "app")
	Name string `yaml:"name"`

	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`

	// PasswordEnv names an environment variable holding the password.
	// It takes precedence over Password when set and non-empty.
	PasswordEnv string `yaml:"password_env,omitempty"`

	// Path is the SQL script file
	Path string `yaml:"path"`
}

// ResolvePassword returns the password for this script, reading PasswordEnv first
func (s SQLScript) ResolvePassword() string {
	if s.PasswordEnv != "" {
		if v := os.Getenv(s.PasswordEnv); v != "" {
			return v
		}
	}
	return s.Password
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		MarkerPath:   "/opt/firstrun/.initialized",
		MarkerPolicy: MarkerAlways,
		LogFile:      "/tmp/firstrun-entrypoint.log",
		SetupScript:  "/opt/firstrun/setup.sh",
		Database: DatabaseConfig{
			Client:  "sqlplus64",
			Host:    "localhost",
			Port:    1521,
			Service: "XEPDB1",
			Scripts: []SQLScript{
				{Name: "admin", User: "system", PasswordEnv: "ORACLE_PASSWORD", Path: "/opt/firstrun/sql/admin.sql"},
				{Name: "app", User: "app", PasswordEnv: "APP_PASSWORD", Path: "/opt/firstrun/sql/app.sql"},
			},
		},
	}
}

// ResolveConfigPath returns the config path from the flag value, the
// FIRSTRUN_CONFIG environment variable or the default, in that order.
func ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(ConfigPathEnvVar); v != "" {
		return v
	}
	return DefaultConfigPath
}

// LoadConfig loads the configuration from configPath.
// Returns defaults if the file doesn't exist. Environment overrides are
// applied last and the result is validated.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		zlog.Debug("loaded config file", zap.String("config_path", configPath))
	case os.IsNotExist(err):
		zlog.Debug("no config file found, using defaults", zap.String("config_path", configPath))
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	applyEnvOverrides(config)

	config.MarkerPath = expandPath(config.MarkerPath)
	if config.EnvFile != "" {
		config.EnvFile = expandPath(config.EnvFile)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	zlog.Debug("resolved config",
		zap.String("marker_path", config.MarkerPath),
		zap.String("marker_policy", string(config.MarkerPolicy)),
		zap.String("setup_script", config.SetupScript),
		zap.String("client", config.Database.Client),
		zap.Int("scripts", len(config.Database.Scripts)))

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv(MarkerPathEnvVar); v != "" {
		config.MarkerPath = v
	}
	if v := os.Getenv(MarkerPolicyEnvVar); v != "" {
		config.MarkerPolicy = MarkerPolicy(v)
	}
}

// Validate checks the configuration for values the entrypoint cannot act on
func (c *Config) Validate() error {
	if c.MarkerPath == "" {
		return fmt.Errorf("marker_path must not be empty")
	}

	if c.MarkerPolicy == "" {
		c.MarkerPolicy = MarkerAlways
	}
	if err := c.MarkerPolicy.Validate(); err != nil {
		return err
	}

	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must not be negative")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d out of range 1-65535", c.Database.Port)
	}
	if len(c.Database.Scripts) > 0 && c.Database.Client == "" {
		return fmt.Errorf("database.client must be set when scripts are configured")
	}

	seen := make(map[string]bool, len(c.Database.Scripts))
	for i, s := range c.Database.Scripts {
		if s.Name == "" {
			return fmt.Errorf("database.scripts[%d]: name must not be empty", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("database.scripts[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true

		if s.User == "" {
			return fmt.Errorf("database.scripts[%d] (%s): user must not be empty", i, s.Name)
		}
		if s.Path == "" {
			return fmt.Errorf("database.scripts[%d] (%s): path must not be empty", i, s.Name)
		}
	}

	return nil
}

// Endpoint returns the host:port/service part of the connect string
func (d DatabaseConfig) Endpoint() string {
	return d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Service
}

// Marshal serializes the configuration to YAML with passwords masked
func (c *Config) Marshal() ([]byte, error) {
	masked := *c
	masked.Database.Scripts = make([]SQLScript, len(c.Database.Scripts))
	for i, s := range c.Database.Scripts {
		if s.Password != "" {
			s.Password = maskedSecret
		}
		masked.Database.Scripts[i] = s
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	return data, nil
}

// expandPath expands ~ to home directory and makes path absolute
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
