package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Called after loading from file and environment so that zero
// values (0, "", false, nil) left by an absent setting are replaced with
// sensible defaults; explicit values are always preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTargetDefaults(&cfg.Target)
	applyStorageDefaults(&cfg.Storage)
	applyAdminAPIDefaults(&cfg.AdminAPI)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	// Note: no default for Target.Name or Storage.BadgerPath -- an IQN and
	// (when Backend is "badger") a database path must be configured.
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTargetDefaults(cfg *TargetConfig) {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 3260
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 256
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	for i := range cfg.LUNs {
		if cfg.LUNs[i].BlockSize == 0 {
			cfg.LUNs[i].BlockSize = 512
		}
	}
}

func applyAdminAPIDefaults(cfg *AdminAPIConfig) {
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
	if cfg.Port == 0 {
		cfg.Port = 9260
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}
