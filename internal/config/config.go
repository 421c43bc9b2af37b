package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aaafuria/furia-feed/internal/reltime"
)

var validate = validator.New()

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	RelativeTime   RelativeTimeConfig   `yaml:"relative_time"`
	Feed           FeedConfig           `yaml:"feed"`
}

// DiscordConfig holds Discord bot settings. An empty token disables the bot.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	Driver   string `yaml:"driver" validate:"oneof=sqlx ent"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name" validate:"required_if=Enabled true"`
	LeaseNamespace string        `yaml:"lease_namespace" validate:"required_if=Enabled true"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// RelativeTimeConfig selects the bucket table used to render post ages.
// When Buckets is set it replaces the named table.
type RelativeTimeConfig struct {
	Table   string         `yaml:"table" validate:"omitempty,oneof=extended legacy"`
	Buckets []BucketConfig `yaml:"buckets" validate:"dive"`
}

// BucketConfig is one row of a custom relative time table.
type BucketConfig struct {
	Below  time.Duration `yaml:"below" validate:"gt=0"`
	Format string        `yaml:"format" validate:"required"`
	Unit   time.Duration `yaml:"unit" validate:"min=0"`
}

// FeedConfig holds feed listing settings.
type FeedConfig struct {
	PageSize    int `yaml:"page_size" validate:"min=1,max=100"`
	MaxPageSize int `yaml:"max_page_size" validate:"min=1,max=500,gtefield=PageSize"`
}

// BuildTable resolves the configured relative time table.
func (c RelativeTimeConfig) BuildTable() (reltime.Table, error) {
	if len(c.Buckets) == 0 {
		return reltime.TableByName(c.Table)
	}
	buckets := make([]reltime.Bucket, len(c.Buckets))
	for i, b := range c.Buckets {
		buckets[i] = reltime.Bucket{Below: b.Below, Format: b.Format, Unit: b.Unit}
	}
	return reltime.NewTable("custom", buckets...)
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "feedsvc",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "feedsvc-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		RelativeTime: RelativeTimeConfig{
			Table: reltime.TableExtended,
		},
		Feed: FeedConfig{
			PageSize:    30,
			MaxPageSize: 100,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if _, err := c.RelativeTime.BuildTable(); err != nil {
		return fmt.Errorf("relative_time: %w", err)
	}
	if c.LeaderElection.Enabled && c.LeaderElection.RenewDeadline >= c.LeaderElection.LeaseDuration {
		return fmt.Errorf("leader_election: renew_deadline (%s) must be shorter than lease_duration (%s)",
			c.LeaderElection.RenewDeadline, c.LeaderElection.LeaseDuration)
	}
	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
