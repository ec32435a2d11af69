package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string        `yaml:"port"`
	Environment    string        `yaml:"environment"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	JWTSecret      string        `yaml:"jwtSecret"`
	Store          StoreConfig   `yaml:"store"`
	Redis          RedisConfig   `yaml:"redis"`
	Reunion        ReunionConfig `yaml:"reunion"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StoreConfig selects the room store backend. Backend is "redis" or "memory".
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	RoomTTL time.Duration `yaml:"roomTTL"`
}

// ReunionConfig holds the negotiation policy constants shared by the peer
// side. None of them are protocol requirements; they may be tuned.
type ReunionConfig struct {
	SignalingURL      string        `yaml:"signalingURL"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	OfferTimeout      time.Duration `yaml:"offerTimeout"`
	PresenceThrottle  time.Duration `yaml:"presenceThrottle"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	STUNURLs          []string      `yaml:"stunURLs"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		JWTSecret:      "change-me-in-production",
		Store: StoreConfig{
			Backend: "redis",
			RoomTTL: 24 * time.Hour,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Reunion: ReunionConfig{
			SignalingURL:      "http://localhost:8080",
			PollInterval:      time.Second,
			OfferTimeout:      15 * time.Second,
			PresenceThrottle:  800 * time.Millisecond,
			HeartbeatInterval: 30 * time.Second,
			STUNURLs:          []string{"stun:stun.l.google.com:19302"},
		},
	}
}

func Load() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

// LoadFile reads a YAML file over the defaults and then applies environment
// overrides, so a deployment can keep secrets out of the file.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)

	// Parse allowed origins (comma-separated)
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		cfg.AllowedOrigins = splitList(originsStr)
	}

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.RoomTTL = getDuration("ROOM_TTL", cfg.Store.RoomTTL)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = db
	}

	cfg.Reunion.SignalingURL = getEnv("SIGNALING_URL", cfg.Reunion.SignalingURL)
	cfg.Reunion.PollInterval = getDuration("POLL_INTERVAL", cfg.Reunion.PollInterval)
	cfg.Reunion.OfferTimeout = getDuration("OFFER_TIMEOUT", cfg.Reunion.OfferTimeout)
	cfg.Reunion.PresenceThrottle = getDuration("PRESENCE_THROTTLE", cfg.Reunion.PresenceThrottle)
	cfg.Reunion.HeartbeatInterval = getDuration("HEARTBEAT_INTERVAL", cfg.Reunion.HeartbeatInterval)
	if urls := os.Getenv("STUN_URLS"); urls != "" {
		cfg.Reunion.STUNURLs = splitList(urls)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
