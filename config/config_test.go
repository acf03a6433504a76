package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"LISTEN_ADDR", "LOG_LEVEL", "ALLOWED_ORIGINS", "MAX_MESSAGE_SIZE", "SEND_QUEUE_SIZE", "SERVER_URL", "STUN_SERVER", "STORAGE_TYPE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr: got %s, want %s", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.MaxMessageSize != DefaultMaxMessageSize || cfg.SendQueueSize != DefaultSendQueueSize {
		t.Errorf("Unexpected limits: %d, %d", cfg.MaxMessageSize, cfg.SendQueueSize)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("Expected no extra origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.StorageType != DefaultStorageType {
		t.Errorf("StorageType: got %s, want %s", cfg.StorageType, DefaultStorageType)
	}
}

func TestLoad_Precedence(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STUN_SERVER", "stun:env.example:3478")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SEND_QUEUE_SIZE", "32")

	cfg, err := Load(Options{ListenAddr: ":8000"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8000" {
		t.Errorf("Expected flag to win, got %s", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" || cfg.STUNServer != "stun:env.example:3478" {
		t.Errorf("Expected env values, got %s %s", cfg.LogLevel, cfg.STUNServer)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.SendQueueSize != 32 {
		t.Errorf("SendQueueSize: got %d, want 32", cfg.SendQueueSize)
	}
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"Log level", "LOG_LEVEL", "loud"},
		{"Message size", "MAX_MESSAGE_SIZE", "big"},
		{"Negative queue", "SEND_QUEUE_SIZE", "-1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(Options{}); err == nil {
				t.Errorf("Expected error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestWebSocketURL(t *testing.T) {
	testCases := []struct {
		server string
		want   string
	}{
		{"http://localhost:3002", "ws://localhost:3002/ws"},
		{"https://relay.example", "wss://relay.example/ws"},
	}

	for _, tc := range testCases {
		t.Setenv("SERVER_URL", "")
		cfg, err := Load(Options{ServerURL: tc.server + "/"})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got := cfg.WebSocketURL(); got != tc.want {
			t.Errorf("WebSocketURL(%s): got %s, want %s", tc.server, got, tc.want)
		}
	}
}
