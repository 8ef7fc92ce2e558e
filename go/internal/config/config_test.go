package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, Default().Session, cfg.Session)
	require.Equal(t, time.Second, cfg.Session.Countdown().TickInterval)
	require.Equal(t, "AUCTION_EVENTS", cfg.Hub.StreamName)
	require.NotEmpty(t, cfg.Hub.Database.DSN())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auctionsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
session:
  api_url: http://api.example.com
  identity:
    email: alice@example.com
  bid_poll_interval: 12s
  max_reconnect_attempts: 9
  sends_per_minute: 6
hub:
  dedupe_window: 1h
`), 0o600))

	t.Setenv("MAX_RECONNECT_ATTEMPTS", "4")
	t.Setenv("HUB_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "http://api.example.com", cfg.Session.APIURL)
	require.Equal(t, "alice@example.com", cfg.Session.Identity.Key())
	require.Equal(t, 12*time.Second, cfg.Session.Bids().PollInterval)
	require.Equal(t, 4, cfg.Session.Notifications().MaxReconnectAttempts)
	require.Equal(t, rate.Every(10*time.Second), cfg.Session.Notifications().SendRate)
	require.Equal(t, time.Hour, cfg.Hub.DedupeWindow)
	require.Equal(t, ":9999", cfg.Hub.Addr)
	// untouched defaults survive a partial file
	require.Equal(t, "ws://localhost:8090/ws", cfg.Session.HubWebsocketURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
