package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	PreferencesFile string        `yaml:"preferences_file"`

	Binance BinanceConfig `yaml:"binance"`
	Stream  StreamConfig  `yaml:"stream"`
	Book    BookConfig    `yaml:"book"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

type BinanceConfig struct {
	RestURL         string `yaml:"rest_url"`
	StreamURL       string `yaml:"stream_url"`
	TickerStreamURL string `yaml:"ticker_stream_url"`
}

type StreamConfig struct {
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type BookConfig struct {
	DefaultSymbol string        `yaml:"default_symbol"`
	DisplayDepth  int           `yaml:"display_depth"`
	SnapshotLimit int           `yaml:"snapshot_limit"`
	SnapshotRetry time.Duration `yaml:"snapshot_retry"`
	ResyncOnGap   bool          `yaml:"resync_on_gap"`
}

type AlertsConfig struct {
	FeedTTL   time.Duration `yaml:"feed_ttl"`
	SoundFile string        `yaml:"sound_file"`
}

// KafkaConfig enables alert publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func defaults() Config {
	return Config{
		Port:            8086,
		LogLevel:        "info",
		RefreshInterval: time.Second,
		PreferencesFile: "./data/preferences.yaml",
		Binance: BinanceConfig{
			RestURL:         "https://api.binance.com",
			StreamURL:       "wss://stream.binance.com:9443",
			TickerStreamURL: "wss://stream.binance.com:9443/ws/!ticker@arr",
		},
		Stream: StreamConfig{
			ReconnectDelay: time.Second,
			ReadTimeout:    time.Minute,
		},
		Book: BookConfig{
			DisplayDepth:  30,
			SnapshotLimit: 1000,
			SnapshotRetry: 5 * time.Second,
		},
		Alerts: AlertsConfig{FeedTTL: time.Hour, SoundFile: "./web/sounds/sonar.ogg"},
		Kafka:  KafkaConfig{Topic: "scanner-alerts"},
	}
}

func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// Validation & normalization
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, errors.New("invalid port")
	}
	if cfg.Book.DisplayDepth < 1 || cfg.Book.DisplayDepth > 1000 {
		return cfg, errors.New("book.display_depth must be within 1..1000")
	}
	if cfg.Book.SnapshotLimit < cfg.Book.DisplayDepth {
		return cfg, errors.New("book.snapshot_limit must be >= book.display_depth")
	}
	if cfg.Stream.ReconnectDelay <= 0 {
		return cfg, errors.New("stream.reconnect_delay must be > 0")
	}
	if cfg.Book.SnapshotRetry <= 0 {
		return cfg, errors.New("book.snapshot_retry must be > 0")
	}
	if cfg.RefreshInterval <= 0 {
		return cfg, errors.New("refresh_interval must be > 0")
	}
	if cfg.Alerts.FeedTTL <= 0 {
		return cfg, errors.New("alerts.feed_ttl must be > 0")
	}
	if cfg.Binance.RestURL == "" || cfg.Binance.StreamURL == "" || cfg.Binance.TickerStreamURL == "" {
		return cfg, errors.New("binance urls must be set")
	}
	if len(cfg.Kafka.Brokers) > 0 && strings.TrimSpace(cfg.Kafka.Topic) == "" {
		return cfg, errors.New("kafka.topic required when kafka.brokers is set")
	}
	cfg.Book.DefaultSymbol = strings.ToUpper(strings.TrimSpace(cfg.Book.DefaultSymbol))
	return cfg, nil
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
