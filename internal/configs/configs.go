/*
Package configs is responsible for loading and parsing the chat client's configuration.

All settings come from operating system environment variables, with defaults
matching the backend's documented protocol parameters (5 second reconnect
delay, 4 second heartbeats in each direction).
*/
package configs

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig contains all configuration parameters required by the chat client.
type AppConfig struct {
	// General Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Transport Settings
	WSEndpoint        string        `env:"CHAT_WS_ENDPOINT" envDefault:"ws://localhost:8080/ws-stomp"`
	APIBaseURL        string        `env:"CHAT_API_BASE_URL" envDefault:"http://localhost:8080"`
	ReconnectDelay    time.Duration `env:"CHAT_RECONNECT_DELAY" envDefault:"5s"`
	HeartbeatOutgoing time.Duration `env:"CHAT_HEARTBEAT_OUTGOING" envDefault:"4s"`
	HeartbeatIncoming time.Duration `env:"CHAT_HEARTBEAT_INCOMING" envDefault:"4s"`
	SendQueueSize     int           `env:"CHAT_SEND_QUEUE_SIZE" envDefault:"256"`

	// Outbound flood guard (events per second / burst).
	SendRate  float64 `env:"CHAT_SEND_RATE" envDefault:"10"`
	SendBurst int     `env:"CHAT_SEND_BURST" envDefault:"20"`

	// Identity Settings (used by the terminal client)
	Token    string `env:"CHAT_TOKEN"`
	UserID   int64  `env:"CHAT_USER_ID"`
	Nickname string `env:"CHAT_NICKNAME"`
}

// LoadConfig reads and parses the client configuration from environment
// variables, applying defaults and validating the values the transport
// depends on. It returns a pointer to the AppConfig struct and any error
// encountered.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment configuration: %w", err)
	}

	if cfg.WSEndpoint == "" {
		return nil, fmt.Errorf("CHAT_WS_ENDPOINT must not be empty")
	}

	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("CHAT_RECONNECT_DELAY must be positive, got %s", cfg.ReconnectDelay)
	}

	if cfg.HeartbeatOutgoing < 0 || cfg.HeartbeatIncoming < 0 {
		return nil, fmt.Errorf("heartbeat intervals must not be negative")
	}

	if cfg.SendQueueSize <= 0 {
		return nil, fmt.Errorf("CHAT_SEND_QUEUE_SIZE must be positive, got %d", cfg.SendQueueSize)
	}

	if cfg.SendRate <= 0 || cfg.SendBurst <= 0 {
		return nil, fmt.Errorf("send rate limit values must be positive")
	}

	return cfg, nil
}
