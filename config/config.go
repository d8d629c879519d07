package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	SensorAPI  SensorAPIConfig  `yaml:"sensor_api"`
	LLM        LLMConfig        `yaml:"llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Poller     PollerConfig     `yaml:"poller"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// SensorAPIConfig configures the resilient gateway client.
type SensorAPIConfig struct {
	CandidateURLs  []string `yaml:"candidate_urls"`
	FallbackURL    string   `yaml:"fallback_url"`
	EndpointCache  string   `yaml:"endpoint_cache_file"`
	URLTTLSeconds  int      `yaml:"url_ttl_seconds"`
	ProbeTimeoutMS int      `yaml:"probe_timeout_ms"`

	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`
	ReadTimeoutMS    int `yaml:"read_timeout_ms"`

	MaxAttempts       int `yaml:"max_attempts"`
	HTTPErrorAttempts int `yaml:"http_error_attempts"`
	BackoffBaseMS     int `yaml:"backoff_base_ms"`
	BackoffMaxMS      int `yaml:"backoff_max_ms"`

	URLTTL         time.Duration `yaml:"-"`
	ProbeTimeout   time.Duration `yaml:"-"`
	ConnectTimeout time.Duration `yaml:"-"`
	ReadTimeout    time.Duration `yaml:"-"`
	BackoffBase    time.Duration `yaml:"-"`
	BackoffMax     time.Duration `yaml:"-"`
}

// ModelLimit is the daily quota for one LLM model.
type ModelLimit struct {
	Requests int `yaml:"requests"`
	Tokens   int `yaml:"tokens"`
}

// LLMConfig configures the Groq-hosted answer generator.
type LLMConfig struct {
	APIKey      string                `yaml:"api_key"` // the GROQ_API_KEY env var overrides this
	BaseURL     string                `yaml:"base_url"`
	Model       string                `yaml:"model"`
	MaxTokens   int                   `yaml:"max_tokens"`
	Temperature float64               `yaml:"temperature"`
	TimeoutMS   int                   `yaml:"timeout_ms"`
	Limits      map[string]ModelLimit `yaml:"daily_limits"`

	Timeout time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PollerConfig holds the background poller configuration.
type PollerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	ReadingLimit    int           `yaml:"reading_limit"`
}

// ThresholdRule is a per-sensor-type value band; readings outside it alert.
type ThresholdRule struct {
	SensorType string  `yaml:"sensor_type"`
	High       float64 `yaml:"high"`
	Low        float64 `yaml:"low"`
}

// AlertsConfig holds the alert rule configuration.
type AlertsConfig struct {
	Enabled           bool            `yaml:"enabled"`
	Thresholds        []ThresholdRule `yaml:"thresholds"`
	StaleAfterMinutes int             `yaml:"stale_after_minutes"`
	StaleAfter        time.Duration   `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	s := &cfg.SensorAPI
	if s.URLTTLSeconds <= 0 {
		s.URLTTLSeconds = 300
	}
	if s.ProbeTimeoutMS <= 0 {
		s.ProbeTimeoutMS = 5000
	}
	if s.ConnectTimeoutMS <= 0 {
		s.ConnectTimeoutMS = 5000
	}
	if s.ReadTimeoutMS <= s.ConnectTimeoutMS {
		// A stalled handshake should fail fast while a slow-but-alive
		// server is still given time to stream data.
		s.ReadTimeoutMS = s.ConnectTimeoutMS * 4
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 4
	}
	if s.HTTPErrorAttempts <= 0 {
		s.HTTPErrorAttempts = 2
	}
	if s.BackoffBaseMS <= 0 {
		s.BackoffBaseMS = 500
	}
	if s.BackoffMaxMS <= 0 {
		s.BackoffMaxMS = 15000
	}
	s.URLTTL = time.Duration(s.URLTTLSeconds) * time.Second
	s.ProbeTimeout = time.Duration(s.ProbeTimeoutMS) * time.Millisecond
	s.ConnectTimeout = time.Duration(s.ConnectTimeoutMS) * time.Millisecond
	s.ReadTimeout = time.Duration(s.ReadTimeoutMS) * time.Millisecond
	s.BackoffBase = time.Duration(s.BackoffBaseMS) * time.Millisecond
	s.BackoffMax = time.Duration(s.BackoffMaxMS) * time.Millisecond

	l := &cfg.LLM
	if env := os.Getenv("GROQ_API_KEY"); env != "" {
		l.APIKey = env
	}
	if l.BaseURL == "" {
		l.BaseURL = "https://api.groq.com/openai/v1"
	}
	if l.Model == "" {
		l.Model = "llama-3.1-8b-instant"
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 1000
	}
	if l.Temperature <= 0 {
		l.Temperature = 0.3
	}
	if l.TimeoutMS <= 0 {
		l.TimeoutMS = 30000
	}
	l.Timeout = time.Duration(l.TimeoutMS) * time.Millisecond
	if len(l.Limits) == 0 {
		l.Limits = map[string]ModelLimit{
			l.Model: {Requests: 14400, Tokens: 500000},
		}
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "sensorchat.db"
	}

	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 60
	}
	cfg.Poller.Interval = time.Duration(cfg.Poller.IntervalSeconds) * time.Second
	if cfg.Poller.ReadingLimit <= 0 {
		cfg.Poller.ReadingLimit = 200
	}

	if cfg.Alerts.StaleAfterMinutes <= 0 {
		cfg.Alerts.StaleAfterMinutes = 15
	}
	cfg.Alerts.StaleAfter = time.Duration(cfg.Alerts.StaleAfterMinutes) * time.Minute
	if len(cfg.Alerts.Thresholds) == 0 {
		cfg.Alerts.Thresholds = []ThresholdRule{
			{SensorType: "ntc_entrada", High: 40, Low: 0},
			{SensorType: "ntc_salida", High: 40, Low: 0},
		}
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
