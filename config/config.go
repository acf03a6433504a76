package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	DefaultListenAddr     = ":3002"
	DefaultLogLevel       = "info"
	DefaultMaxMessageSize = 64 * 1024
	DefaultSendQueueSize  = 256
	DefaultServerURL      = "http://localhost:3002"
	DefaultSTUN           = "stun:stun.l.google.com:19302"
	DefaultStorageType    = "memory"
)

// Config holds relay server and client configuration
type Config struct {
	ListenAddr string
	LogLevel   string

	// AllowedOrigins are browser origins accepted besides localhost.
	AllowedOrigins []string
	MaxMessageSize int64
	SendQueueSize  int
	StorageType    string

	// ServerURL is the relay base URL used by the CLI.
	ServerURL  string
	STUNServer string
}

// Options carries CLI flag values. Zero values fall through to the
// environment.
type Options struct {
	ListenAddr string
	LogLevel   string
	ServerURL  string
	STUNServer string
}

// LoadDotEnv reads .env from the working directory if one exists.
// Variables already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables
// 3. Defaults
func Load(opts Options) (*Config, error) {
	maxMessageSize, err := envInt("MAX_MESSAGE_SIZE", DefaultMaxMessageSize)
	if err != nil {
		return nil, err
	}
	queueSize, err := envInt("SEND_QUEUE_SIZE", DefaultSendQueueSize)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:     firstNonEmpty(opts.ListenAddr, os.Getenv("LISTEN_ADDR"), DefaultListenAddr),
		LogLevel:       firstNonEmpty(opts.LogLevel, os.Getenv("LOG_LEVEL"), DefaultLogLevel),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		MaxMessageSize: int64(maxMessageSize),
		SendQueueSize:  queueSize,
		StorageType:    firstNonEmpty(os.Getenv("STORAGE_TYPE"), DefaultStorageType),
		ServerURL:      strings.TrimRight(firstNonEmpty(opts.ServerURL, os.Getenv("SERVER_URL"), DefaultServerURL), "/"),
		STUNServer:     firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return cfg, nil
}

// WebSocketURL returns the relay's /ws endpoint derived from ServerURL.
func (c *Config) WebSocketURL() string {
	u := c.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
