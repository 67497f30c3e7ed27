package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrConfigNotFound is returned when the config file is not found by Load.
var ErrConfigNotFound = errors.New("configuration file not found")

// Config represents the application configuration
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Keeper   KeeperConfig   `mapstructure:"keeper"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
}

// DeviceConfig holds XML API client settings
type DeviceConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	CommitTimeout      time.Duration `mapstructure:"commit_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// SecurityConfig represents security settings
type SecurityConfig struct {
	BatchMode              bool   `mapstructure:"batch_mode"`
	ProtectionPasswordHash string `mapstructure:"protection_password_hash"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AuditFile string `mapstructure:"audit_file"`
}

// MetricsConfig points at a node_exporter textfile; empty disables metrics
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig configures OTLP/HTTP export; empty endpoint disables tracing
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	URLPath  string `mapstructure:"url_path"`
	Insecure bool   `mapstructure:"insecure"`
}

// KeeperConfig holds the Keeper Secrets Manager config used for keeper:// references
type KeeperConfig struct {
	Config string `mapstructure:"config"`
}

// ProfilesConfig names the stored device used when none is given
type ProfilesConfig struct {
	Default string `mapstructure:"default"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Timeout:       30 * time.Second,
			CommitTimeout: 10 * time.Minute,
			PollInterval:  2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from file
func Load(configFile string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configDir := getConfigDir()
	resolvedConfigFile := configFile

	if configFile == "" || configFile == filepath.Join(configDir, "config.yaml") {
		v.AddConfigPath(configDir)
		if configFile == "" {
			resolvedConfigFile = filepath.Join(configDir, "config.yaml")
		}
	} else {
		v.SetConfigFile(configFile)
	}

	// Stat first so a missing file is reported as ErrConfigNotFound rather than a parse error
	if _, err := os.Stat(resolvedConfigFile); os.IsNotExist(err) {
		return nil, ErrConfigNotFound
	}

	v.SetEnvPrefix("PANOS_IKE")
	v.AutomaticEnv()

	_ = v.BindEnv("security.batch_mode", "PANOS_IKE_BATCH_MODE")
	_ = v.BindEnv("logging.level", "PANOS_IKE_LOG_LEVEL")
	_ = v.BindEnv("logging.format", "PANOS_IKE_LOG_FORMAT")
	_ = v.BindEnv("device.insecure_skip_verify", "PANOS_IKE_INSECURE")
	_ = v.BindEnv("keeper.config", "PANOS_IKE_KEEPER_CONFIG")
	_ = v.BindEnv("profiles.default", "PANOS_IKE_DEVICE")

	if err := v.ReadInConfig(); err != nil {
		var vfnfError viper.ConfigFileNotFoundError
		if errors.As(err, &vfnfError) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file content: %w", err)
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Logging.AuditFile == "" {
		config.Logging.AuditFile = filepath.Join(configDir, "audit.log")
	}

	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(configFile string) error {
	if configFile == "" {
		configFile = filepath.Join(getConfigDir(), "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	v.Set("device.timeout", c.Device.Timeout.String())
	v.Set("device.commit_timeout", c.Device.CommitTimeout.String())
	v.Set("device.poll_interval", c.Device.PollInterval.String())
	v.Set("device.insecure_skip_verify", c.Device.InsecureSkipVerify)
	v.Set("security.batch_mode", c.Security.BatchMode)
	v.Set("security.protection_password_hash", c.Security.ProtectionPasswordHash)
	v.Set("logging.level", c.Logging.Level)
	v.Set("logging.format", c.Logging.Format)
	v.Set("logging.audit_file", c.Logging.AuditFile)
	v.Set("metrics.textfile", c.Metrics.Textfile)
	v.Set("tracing.endpoint", c.Tracing.Endpoint)
	v.Set("tracing.url_path", c.Tracing.URLPath)
	v.Set("tracing.insecure", c.Tracing.Insecure)
	v.Set("keeper.config", c.Keeper.Config)
	v.Set("profiles.default", c.Profiles.Default)

	return v.WriteConfig()
}

// getConfigDir returns the configuration directory
func getConfigDir() string {
	if configDir := os.Getenv("PANOS_IKE_CONFIG_DIR"); configDir != "" {
		return configDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".panos-ike")
	}

	return filepath.Join(homeDir, ".panos-ike")
}

// GetConfigDir returns the configuration directory (exported)
func GetConfigDir() string {
	return getConfigDir()
}

// EnsureConfigDir ensures the configuration directory exists
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// LoadOrCreate loads existing config or writes and returns the defaults
func LoadOrCreate(configFile string) (*Config, error) {
	cfg, err := Load(configFile)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}

	cfg = DefaultConfig()

	finalConfigFile := configFile
	if finalConfigFile == "" {
		finalConfigFile = filepath.Join(getConfigDir(), "config.yaml")
	}
	cfg.Logging.AuditFile = filepath.Join(filepath.Dir(finalConfigFile), "audit.log")

	if errSave := cfg.Save(finalConfigFile); errSave != nil {
		return nil, fmt.Errorf("failed to save default config to %s: %w", finalConfigFile, errSave)
	}
	return cfg, nil
}
