// Package config loads the issue desk configuration from flags, environment
// variables, an optional YAML file and defaults, in that order of precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"libradesk/internal/apperr"
)

// Config holds the application configuration.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Logger      LoggerConfig      `yaml:"logger"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Circulation CirculationConfig `yaml:"circulation"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Notify      NotifyConfig      `yaml:"notify"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type AppConfig struct {
	Environment string `yaml:"environment"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	// Driver is one of postgres (lib/pq), pgx or sqlite.
	Driver          string `yaml:"driver"`
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	BootstrapSchema bool   `yaml:"bootstrap_schema"`
}

type CirculationConfig struct {
	DefaultLoanDays int `yaml:"default_loan_days"`
}

type SweepConfig struct {
	Enabled       bool `yaml:"enabled"`
	IntervalHours int  `yaml:"interval_hours"`
	DueSoonDays   int  `yaml:"due_soon_days"`
	// OverdueCooldownHours of 0 re-notifies every overdue issue on every sweep.
	OverdueCooldownHours int `yaml:"overdue_cooldown_hours"`
}

// Interval returns the time between scheduled sweeps.
func (s SweepConfig) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

// OverdueCooldown returns the overdue re-notification cooldown.
func (s SweepConfig) OverdueCooldown() time.Duration {
	return time.Duration(s.OverdueCooldownHours) * time.Hour
}

type NotifyConfig struct {
	// Transport is one of log, smtp or kafka.
	Transport     string      `yaml:"transport"`
	Workers       int         `yaml:"workers"`
	QueueSize     int         `yaml:"queue_size"`
	RatePerSecond float64     `yaml:"rate_per_second"`
	SMTP          SMTPConfig  `yaml:"smtp"`
	Kafka         KafkaConfig `yaml:"kafka"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	// TimeoutSeconds bounds one whole SMTP session.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

func (s SMTPConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			MaxOpenConns: 20,
		},
		Circulation: CirculationConfig{DefaultLoanDays: 14},
		Sweep: SweepConfig{
			Enabled:       true,
			IntervalHours: 6,
			DueSoonDays:   5,
		},
		Notify: NotifyConfig{
			Transport:     "log",
			Workers:       2,
			QueueSize:     256,
			RatePerSecond: 5,
			SMTP: SMTPConfig{
				Port:           587,
				From:           "noreply@library.example.com",
				FromName:       "Library Management System",
				TimeoutSeconds: 30,
			},
			Kafka: KafkaConfig{Topic: "library.notifications"},
		},
		Telemetry: TelemetryConfig{ServiceName: "libradesk"},
	}
}

// Load builds the configuration from args (without the program name), the
// process environment and the YAML file named by -config or CONFIG_FILE.
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	fs := flag.NewFlagSet("libradesk", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to a YAML configuration file")
	env := fs.String("env", "", "Environment (development, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	port := fs.String("port", "", "HTTP port (default: 8080)")
	dbDriver := fs.String("db-driver", "", "Database driver (postgres, pgx, sqlite)")
	dbURL := fs.String("database-url", "", "Database connection string")
	interval := fs.String("sweep-interval-hours", "", "Hours between overdue sweeps (default: 6)")
	transport := fs.String("notify-transport", "", "Notification transport (log, smtp, kafka)")
	if err := fs.Parse(args); err != nil {
		return nil, apperr.Config("parse flags: %v", err)
	}

	cfg := Default()

	path := firstNonEmpty(*configFile, envValue(lookup, "CONFIG_FILE"))
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Config("read config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, apperr.Config("parse config file %s: %v", path, err)
		}
	}

	e := envReader{lookup: lookup}
	e.str(&cfg.App.Environment, "ENV")
	e.str(&cfg.Logger.Level, "LOG_LEVEL")
	e.str(&cfg.Logger.Format, "LOG_FORMAT")
	e.str(&cfg.Server.Port, "PORT")
	e.list(&cfg.Server.CORSOrigins, "CORS_ORIGINS")
	e.str(&cfg.Database.Driver, "DB_DRIVER")
	e.str(&cfg.Database.URL, "DATABASE_URL")
	e.int(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	e.bool(&cfg.Database.BootstrapSchema, "DB_BOOTSTRAP_SCHEMA")
	e.int(&cfg.Circulation.DefaultLoanDays, "DEFAULT_LOAN_DAYS")
	e.bool(&cfg.Sweep.Enabled, "SWEEP_ENABLED")
	e.int(&cfg.Sweep.IntervalHours, "SCHEDULER_INTERVAL_HOURS")
	e.int(&cfg.Sweep.DueSoonDays, "DUE_SOON_DAYS")
	e.int(&cfg.Sweep.OverdueCooldownHours, "OVERDUE_COOLDOWN_HOURS")
	e.str(&cfg.Notify.Transport, "NOTIFY_TRANSPORT")
	e.int(&cfg.Notify.Workers, "NOTIFY_WORKERS")
	e.int(&cfg.Notify.QueueSize, "NOTIFY_QUEUE_SIZE")
	e.float(&cfg.Notify.RatePerSecond, "NOTIFY_RATE_PER_SECOND")
	e.str(&cfg.Notify.SMTP.Host, "SMTP_HOST")
	e.int(&cfg.Notify.SMTP.Port, "SMTP_PORT")
	e.str(&cfg.Notify.SMTP.User, "SMTP_USER")
	e.str(&cfg.Notify.SMTP.Password, "SMTP_PASSWORD")
	e.str(&cfg.Notify.SMTP.From, "EMAIL_FROM")
	e.str(&cfg.Notify.SMTP.FromName, "EMAIL_FROM_NAME")
	e.int(&cfg.Notify.SMTP.TimeoutSeconds, "SMTP_TIMEOUT_SECONDS")
	e.list(&cfg.Notify.Kafka.Brokers, "KAFKA_BROKERS")
	e.str(&cfg.Notify.Kafka.Topic, "KAFKA_TOPIC")
	e.str(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	e.str(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	if e.err != nil {
		return nil, e.err
	}

	// Flags win over everything else.
	setIfNotEmpty(&cfg.App.Environment, *env)
	setIfNotEmpty(&cfg.Logger.Level, *logLevel)
	setIfNotEmpty(&cfg.Server.Port, *port)
	setIfNotEmpty(&cfg.Database.Driver, *dbDriver)
	setIfNotEmpty(&cfg.Database.URL, *dbURL)
	setIfNotEmpty(&cfg.Notify.Transport, *transport)
	if *interval != "" {
		n, err := strconv.Atoi(*interval)
		if err != nil {
			return nil, apperr.Config("invalid -sweep-interval-hours %q", *interval)
		}
		cfg.Sweep.IntervalHours = n
	}

	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "text"
		if cfg.App.Environment == "production" {
			cfg.Logger.Format = "json"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or out-of-range settings as a CONFIG error.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite":
	default:
		return apperr.Config("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return apperr.Config("DATABASE_URL is required")
	}
	if c.Circulation.DefaultLoanDays < 1 {
		return apperr.Config("default loan period must be at least 1 day, got %d", c.Circulation.DefaultLoanDays)
	}
	if c.Sweep.IntervalHours < 1 {
		return apperr.Config("sweep interval must be at least 1 hour, got %d", c.Sweep.IntervalHours)
	}
	if c.Sweep.DueSoonDays < 1 {
		return apperr.Config("due-soon window must be at least 1 day, got %d", c.Sweep.DueSoonDays)
	}
	if c.Sweep.OverdueCooldownHours < 0 {
		return apperr.Config("overdue cooldown cannot be negative")
	}
	switch c.Notify.Transport {
	case "log":
	case "smtp":
		if c.Notify.SMTP.Host == "" {
			return apperr.Config("SMTP_HOST is required for the smtp transport")
		}
	case "kafka":
		if len(c.Notify.Kafka.Brokers) == 0 {
			return apperr.Config("KAFKA_BROKERS is required for the kafka transport")
		}
	default:
		return apperr.Config("unsupported notification transport %q", c.Notify.Transport)
	}
	if c.Notify.Workers < 1 || c.Notify.QueueSize < 1 {
		return apperr.Config("notification workers and queue size must be positive")
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) list(dst *[]string, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) int(dst *int, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = apperr.Config("invalid %s %q: not an integer", key, v)
		return
	}
	*dst = n
}

func (e *envReader) float(dst *float64, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.err = apperr.Config("invalid %s %q: not a number", key, v)
		return
	}
	*dst = f
}

func (e *envReader) bool(dst *bool, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = apperr.Config("invalid %s %q: not a boolean", key, v)
		return
	}
	*dst = b
}

func envValue(lookup func(string) (string, bool), key string) string {
	v, _ := lookup(key)
	return v
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%s", s.Port)
}
