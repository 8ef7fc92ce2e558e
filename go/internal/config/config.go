// Package config loads the settings of the auctionsync session daemon and the
// notification hub: built-in defaults, then an optional YAML file, then
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/auctionsync/go/internal/bidrank"
	"github.com/mcdev12/auctionsync/go/internal/countdown"
	"github.com/mcdev12/auctionsync/go/internal/dbconfig"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/mcdev12/auctionsync/go/internal/notification"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `yaml:"log_level"`
	Session  SessionConfig `yaml:"session"`
	Hub      HubConfig     `yaml:"hub"`
}

// SessionConfig configures one auctionsync session.
type SessionConfig struct {
	Addr            string          `yaml:"addr"`
	APIURL          string          `yaml:"api_url"`
	HubURL          string          `yaml:"hub_url"`
	HubWebsocketURL string          `yaml:"hub_ws_url"`
	Token           string          `yaml:"token"`
	Identity        models.Identity `yaml:"identity"`

	AuctionRefresh time.Duration `yaml:"auction_refresh"`
	TickInterval   time.Duration `yaml:"tick_interval"`

	BidPollInterval time.Duration `yaml:"bid_poll_interval"`
	BidFetchTimeout time.Duration `yaml:"bid_fetch_timeout"`
	BidMaxAttempts  int           `yaml:"bid_max_attempts"`

	DialTimeout          time.Duration `yaml:"dial_timeout"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `yaml:"reconnect_backoff"`
	AckTimeout           time.Duration `yaml:"ack_timeout"`
	SendsPerMinute       int           `yaml:"sends_per_minute"`
}

// HubConfig configures the notification hub.
type HubConfig struct {
	Addr          string        `yaml:"addr"`
	NatsURL       string        `yaml:"nats_url"`
	StreamName    string        `yaml:"stream_name"`
	WonSubject    string        `yaml:"won_subject"`
	ConsumerName  string        `yaml:"consumer_name"`
	NotifyChannel string        `yaml:"notify_channel"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`

	Database dbconfig.Config `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	bids := bidrank.DefaultConfig()
	notes := notification.DefaultConfig()

	return Config{
		LogLevel: "info",
		Session: SessionConfig{
			Addr:                 ":8081",
			APIURL:               "http://localhost:5000",
			HubURL:               "http://localhost:8090",
			HubWebsocketURL:      "ws://localhost:8090/ws",
			AuctionRefresh:       30 * time.Second,
			TickInterval:         countdown.DefaultConfig().TickInterval,
			BidPollInterval:      bids.PollInterval,
			BidFetchTimeout:      bids.FetchTimeout,
			BidMaxAttempts:       bids.MaxAttempts,
			DialTimeout:          notes.DialTimeout,
			MaxReconnectAttempts: notes.MaxReconnectAttempts,
			ReconnectBackoff:     notes.ReconnectBackoff,
			AckTimeout:           notes.AckTimeout,
			SendsPerMinute:       60,
		},
		Hub: HubConfig{
			Addr:          ":8090",
			NatsURL:       "nats://localhost:4222",
			StreamName:    "AUCTION_EVENTS",
			WonSubject:    "auction.events.won",
			ConsumerName:  "notification-hub",
			NotifyChannel: "notifications_created",
			DedupeWindow:  10 * time.Minute,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Hub.Database = dbconfig.NewConfigFromEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	s := &c.Session
	s.Addr = getEnv("SESSION_ADDR", s.Addr)
	s.APIURL = getEnv("MARKETPLACE_API_URL", s.APIURL)
	s.HubURL = getEnv("HUB_URL", s.HubURL)
	s.HubWebsocketURL = getEnv("HUB_WS_URL", s.HubWebsocketURL)
	s.Token = getEnv("AUCTIONSYNC_TOKEN", s.Token)
	s.Identity.Email = getEnv("AUCTIONSYNC_EMAIL", s.Identity.Email)
	s.Identity.UID = getEnv("AUCTIONSYNC_UID", s.Identity.UID)
	s.AuctionRefresh = getEnvAsDuration("AUCTION_REFRESH", s.AuctionRefresh)
	s.BidPollInterval = getEnvAsDuration("BID_POLL_INTERVAL", s.BidPollInterval)
	s.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", s.MaxReconnectAttempts)

	h := &c.Hub
	h.Addr = getEnv("HUB_ADDR", h.Addr)
	h.NatsURL = getEnv("NATS_URL", h.NatsURL)
	h.StreamName = getEnv("AUCTION_STREAM", h.StreamName)
	h.WonSubject = getEnv("AUCTION_WON_SUBJECT", h.WonSubject)
	h.ConsumerName = getEnv("HUB_CONSUMER", h.ConsumerName)
	h.NotifyChannel = getEnv("HUB_NOTIFY_CHANNEL", h.NotifyChannel)
	h.DedupeWindow = getEnvAsDuration("HUB_DEDUPE_WINDOW", h.DedupeWindow)
}

// Countdown returns the countdown engine settings.
func (s SessionConfig) Countdown() countdown.Config {
	return countdown.Config{TickInterval: s.TickInterval}
}

// Bids returns the bid poller settings.
func (s SessionConfig) Bids() bidrank.Config {
	cfg := bidrank.DefaultConfig()
	cfg.PollInterval = s.BidPollInterval
	cfg.FetchTimeout = s.BidFetchTimeout
	cfg.MaxAttempts = s.BidMaxAttempts
	return cfg
}

// Notifications returns the notification channel settings.
func (s SessionConfig) Notifications() notification.Config {
	cfg := notification.DefaultConfig()
	cfg.DialTimeout = s.DialTimeout
	cfg.MaxReconnectAttempts = s.MaxReconnectAttempts
	cfg.ReconnectBackoff = s.ReconnectBackoff
	cfg.AckTimeout = s.AckTimeout
	if s.SendsPerMinute > 0 {
		cfg.SendRate = rate.Every(time.Minute / time.Duration(s.SendsPerMinute))
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
