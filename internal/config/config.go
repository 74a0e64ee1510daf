package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"

	"github.com/concord-kg/concord/pkg/logger"
)

// Config holds all runtime configuration, populated from environment
// variables with sane defaults for local development.
type Config struct {
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3004"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database   DatabaseConfig
	Governance GovernanceConfig
	Standalone StandaloneConfig

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"concord"`
	Password string `env:"DB_PASSWORD" envDefault:"concord"`
	Name     string `env:"DB_NAME" envDefault:"concord"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int    `env:"DB_MAX_CONNS" envDefault:"10"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// GovernanceConfig tunes the mutation pipeline.
type GovernanceConfig struct {
	RulesPath  string `env:"GOVERNANCE_RULES_PATH"`
	PolicyPath string `env:"GOVERNANCE_POLICY_PATH"`

	Workers            int           `env:"GOVERNANCE_WORKERS" envDefault:"8"`
	QueueSize          int           `env:"GOVERNANCE_QUEUE_SIZE" envDefault:"256"`
	MaxConflictRetries int           `env:"GOVERNANCE_MAX_CONFLICT_RETRIES" envDefault:"3"`
	CommitTokenTimeout time.Duration `env:"GOVERNANCE_COMMIT_TOKEN_TIMEOUT" envDefault:"10s"`
	StoreRetryAttempts int           `env:"GOVERNANCE_STORE_RETRY_ATTEMPTS" envDefault:"3"`
	StoreRetryBackoff  time.Duration `env:"GOVERNANCE_STORE_RETRY_BACKOFF" envDefault:"200ms"`
	ReviewMaxAge       time.Duration `env:"GOVERNANCE_REVIEW_MAX_AGE" envDefault:"168h"`
	SubmitRate         float64       `env:"GOVERNANCE_SUBMIT_RATE" envDefault:"50"`
	SubmitBurst        int           `env:"GOVERNANCE_SUBMIT_BURST" envDefault:"100"`
}

// StandaloneConfig selects the in-memory graph store instead of Postgres,
// for development and tests without a database.
type StandaloneConfig struct {
	Enabled bool `env:"STANDALONE_MODE" envDefault:"false"`
}

// IsEnabled reports whether standalone mode is on.
func (s StandaloneConfig) IsEnabled() bool {
	return s.Enabled
}

// NewConfig loads configuration from the environment.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from environment: %w", err)
	}

	log.Info("configuration loaded",
		logger.Scope("config"),
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.Bool("standalone", cfg.Standalone.IsEnabled()),
		slog.Int("workers", cfg.Governance.Workers),
	)
	return cfg, nil
}

// Module provides configuration to the fx graph.
var Module = fx.Module("config",
	fx.Provide(NewConfig),
)
