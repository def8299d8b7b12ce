package adminapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the admin HTTP surface: health, Prometheus metrics,
// and a read-only session listing, guarded by a bearer token.
//
// When Enabled is false, no admin server is started.
type Config struct {
	// Enabled controls whether the admin server is started.
	// Default: true.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port the admin surface listens on.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// JWTSecret signs and validates admin bearer tokens. Must be at least
	// 32 characters. Leaving it empty disables authentication entirely,
	// which is only appropriate when the admin port is bound to loopback
	// or an otherwise trusted network.
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32" yaml:"jwt_secret"`

	// TokenTTL is how long an issued token remains valid. Default: 12h.
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// Target, Catalog, and Registry are runtime collaborators, not
	// serializable settings -- wired by the caller (cmd/iscsid), not by
	// viper/mapstructure.
	Target   TargetView
	Catalog  Catalog
	Registry prometheus.Gatherer
}

// IsEnabled returns whether the admin server is enabled. Defaults to true
// if not explicitly set.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 9260
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
