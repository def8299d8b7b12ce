// Package config loads iscsid's configuration from environment variables,
// a YAML file, and defaults, in that descending order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level iscsid configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (ISCSID_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Target configures the iSCSI target itself: its IQN, listen
	// address, and connection policy.
	Target TargetConfig `mapstructure:"target" yaml:"target"`

	// Storage selects and configures the LUN registry backend.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// AdminAPI configures the read-only HTTP admin/metrics surface.
	AdminAPI AdminAPIConfig `mapstructure:"admin_api" yaml:"admin_api"`

	// Telemetry configures OpenTelemetry trace export for SCSI command
	// dispatch. Disabled by default.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout bounds how long the target waits for in-flight
	// connections to drain during a graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior, matching internal/logger.Config
// field for field so Load's output can be passed straight to logger.Init.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TargetConfig configures the iSCSI target's identity, listener, and
// per-connection policy.
type TargetConfig struct {
	// Name is the target's IQN, e.g. "iqn.2026-01.com.example:target0".
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// BindAddress is the interface the target listens on.
	// Default: "0.0.0.0".
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Port is the iSCSI TCP port. Default: 3260.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// RequireCHAP rejects any login that does not authenticate via CHAP.
	// Default: false.
	RequireCHAP bool `mapstructure:"require_chap" yaml:"require_chap"`

	// MaxConnections caps concurrent connections. Default: 256; an unset
	// or zero value is replaced by the default, so there is no unlimited
	// setting.
	MaxConnections int `mapstructure:"max_connections" validate:"omitempty,min=1" yaml:"max_connections"`
}

// StorageConfig selects the LUN registry backend and seeds its initial
// target/LUN layout.
type StorageConfig struct {
	// Backend selects the registry implementation: "memory" or "badger".
	// Default: "memory".
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=memory badger" yaml:"backend"`

	// BadgerPath is the on-disk directory for the Badger-backed registry.
	// Required when Backend is "badger".
	BadgerPath string `mapstructure:"badger_path" validate:"required_if=Backend badger" yaml:"badger_path"`

	// LUNs seeds the target's initial LUN layout at startup.
	LUNs []LUNConfig `mapstructure:"luns" yaml:"luns"`
}

// LUNConfig describes one logical unit to expose at startup, backed by an
// in-memory device (the reference pkg/device.BlockDevice implementation;
// a real block-device-backed implementation is an external collaborator).
type LUNConfig struct {
	// Number is the LUN number, unique within a target.
	Number uint64 `mapstructure:"number" yaml:"number"`

	// SizeBytes is the device capacity in bytes.
	SizeBytes int64 `mapstructure:"size_bytes" validate:"required,gt=0" yaml:"size_bytes"`

	// BlockSize is the device's logical block size in bytes.
	// Default: 512.
	BlockSize int `mapstructure:"block_size" validate:"omitempty,min=512" yaml:"block_size"`
}

// AdminAPIConfig configures the read-only HTTP admin/metrics surface.
// This mirrors adminapi.Config's serializable fields; the runtime
// collaborators (TargetView, Catalog, Registry) are wired by the caller
// after Load, not loaded from file.
type AdminAPIConfig struct {
	// Enabled controls whether the admin server is started. Default: true.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the admin surface. Default: 9260.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// JWTSecret signs admin bearer tokens. Must be at least 32 characters
	// if set; empty disables authentication.
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32" yaml:"jwt_secret"`

	// TokenTTL is how long an issued admin token remains valid.
	// Default: 12h.
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// IsEnabled returns whether the admin server should be started. A nil
// Enabled means "not set", which defaults to true.
func (c *AdminAPIConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// TelemetryConfig configures OpenTelemetry trace export, mirroring
// telemetry.Config's serializable fields.
type TelemetryConfig struct {
	// Enabled turns on span export for SCSI command dispatch. Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP/gRPC collector endpoint. Default: "localhost:4317".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS on the OTLP connection. Default: false.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate, 0.0 to 1.0. Default: 1.0.
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,min=0,max=1" yaml:"sample_rate"`
}

// Load reads configuration from configPath (or the default location if
// empty), overlays environment variables, applies defaults to anything
// still unset, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration the way Load does, but first checks whether
// the target file exists and returns an actionable error pointing at how
// to create one, instead of Load's generic "file not found" wrapping.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"create one first, or pass --config /path/to/config.yaml", DefaultConfigPath())
		}
		configPath = DefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg using the `validate` tags
// declared alongside each field above.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Save writes cfg to path in YAML, creating parent directories as needed.
// File permissions are restricted to owner read/write since JWTSecret may
// be present.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("ISCSID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	dir := defaultConfigDir()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

// durationDecodeHook lets YAML/env values for time.Duration fields be
// written as either a duration string ("30s", "5m") or a raw count of
// nanoseconds, matching how viper/mapstructure natively decode everything
// else that isn't a time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			return time.ParseDuration(data.(string))
		case reflect.Int, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()), nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float()), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "iscsid")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "iscsid")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
