package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Dosing      DosingConfig      `yaml:"dosing"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Alerts      AlertsConfig      `yaml:"alerts"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	JWTSecret   string `yaml:"jwt_secret"`
}

type StorageConfig struct {
	Driver   string          `yaml:"driver"` // sqlite, postgres
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type TrackerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	PlanningHorizon time.Duration `yaml:"planning_horizon"`
}

type DosingConfig struct {
	DefaultEster    string  `yaml:"default_ester"`
	DefaultMethod   string  `yaml:"default_method"`
	DefaultDoseMg   float64 `yaml:"default_dose_mg"`
	DefaultInterval float64 `yaml:"default_interval_days"`
	DoseTime        string  `yaml:"dose_time"` // HH:MM, applied to generated doses
	Units           string  `yaml:"units"`
}

type CalibrationConfig struct {
	DecayLambda float64 `yaml:"decay_lambda"`
}

type AlertsConfig struct {
	Enabled  bool                `yaml:"enabled"`
	Rules    []RuleConfig        `yaml:"rules"`
	Channels AlertChannelsConfig `yaml:"channels"`
}

type RuleConfig struct {
	Name     string        `yaml:"name"`
	Min      *float64      `yaml:"min,omitempty"`
	Max      *float64      `yaml:"max,omitempty"`
	Severity string        `yaml:"severity"` // info, warning, critical
	Cooldown time.Duration `yaml:"cooldown"`
}

type AlertChannelsConfig struct {
	Slack   *SlackConfig   `yaml:"slack,omitempty"`
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
	Console bool           `yaml:"console"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	return &cfg, nil
}

func LoadFromEnv() *Config {
	cfg := &Config{}
	setDefaults(cfg)

	// Override from environment
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Storage.Driver = "postgres"
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresConfig{}
		}
		cfg.Storage.Postgres.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Server.JWTSecret = jwtSecret
	}
	if slackWebhook := os.Getenv("SLACK_WEBHOOK_URL"); slackWebhook != "" {
		if cfg.Alerts.Channels.Slack == nil {
			cfg.Alerts.Channels.Slack = &SlackConfig{}
		}
		cfg.Alerts.Channels.Slack.WebhookURL = slackWebhook
	}

	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3007
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLite == nil {
		cfg.Storage.SQLite = &SQLiteConfig{}
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "dosetrack.db"
	}
	if cfg.Storage.Postgres != nil {
		if cfg.Storage.Postgres.MaxConns == 0 {
			cfg.Storage.Postgres.MaxConns = 25
		}
		if cfg.Storage.Postgres.MinConns == 0 {
			cfg.Storage.Postgres.MinConns = 5
		}
	}
	if cfg.Tracker.PollInterval == 0 {
		cfg.Tracker.PollInterval = 5 * time.Minute
	}
	if cfg.Tracker.PlanningHorizon == 0 {
		cfg.Tracker.PlanningHorizon = 90 * 24 * time.Hour
	}
	if cfg.Dosing.DefaultEster == "" {
		cfg.Dosing.DefaultEster = "EEn"
	}
	if cfg.Dosing.DefaultMethod == "" {
		cfg.Dosing.DefaultMethod = "im"
	}
	if cfg.Dosing.DefaultDoseMg == 0 {
		cfg.Dosing.DefaultDoseMg = 4.0
	}
	if cfg.Dosing.DefaultInterval == 0 {
		cfg.Dosing.DefaultInterval = 7.0
	}
	if cfg.Dosing.DoseTime == "" {
		cfg.Dosing.DoseTime = "08:00"
	}
	if cfg.Dosing.Units == "" {
		cfg.Dosing.Units = "pg/mL"
	}
	if cfg.Calibration.DecayLambda == 0 {
		cfg.Calibration.DecayLambda = 0.02
	}
}
