package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		RateLimit int    `yaml:"rate_limit"` // requests per minute per IP, 0 disables
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"` // development, production or nop
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Nats struct {
		URL    string `yaml:"url"`
		Token  string `yaml:"token"`
		Prefix string `yaml:"prefix"`
	} `yaml:"nats"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game struct {
		CanJoinStartedGame bool   `yaml:"can_join_started_game"`
		AnswerGrace        string `yaml:"answer_grace"`
		LockTTL            string `yaml:"lock_ttl"`
	} `yaml:"game"`
	Events struct {
		Backend string `yaml:"backend"` // memory or redis
	} `yaml:"events"`
}

// Load reads YAML config from path after loading a .env file if present.
// Connection settings can be overridden from the environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Log.Mode, "LOG_MODE")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Postgres.URL, "DATABASE_URL")
	override(&cfg.Nats.URL, "NATS_URL")
	override(&cfg.Nats.Token, "NATS_TOKEN")
	override(&cfg.Events.Backend, "EVENTS_BACKEND")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
