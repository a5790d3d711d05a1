package config

import (
	"fmt"
	"strings"
	"time"

	"gitlab-insight/pkg/realtime"
)

// ClientConfig holds the settings of the live-update client (insight-cli)
type ClientConfig struct {
	// Endpoints
	APIURL       string `env:"API_URL" default:"http://localhost:8080"`
	WebsocketURL string `env:"WEBSOCKET_URL" default:"ws://localhost:8080/ws"`

	// Reconnection policy
	ReconnectInterval time.Duration `env:"WS_RECONNECT_INTERVAL" default:"1000"` // ms or Go duration
	ReconnectDecay    float64       `env:"WS_RECONNECT_DECAY" default:"1.5"`
	TimeoutInterval   time.Duration `env:"WS_TIMEOUT_INTERVAL" default:"2000"`
	MaxRetries        int           `env:"WS_MAX_RETRIES" default:"5"`
	MinUptime         time.Duration `env:"WS_MIN_UPTIME" default:"5000"`

	// Development
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadClientConfig loads the client configuration from environment variables
func LoadClientConfig() (*ClientConfig, error) {
	loadDotEnv()

	def := realtime.DefaultPolicy()
	config := &ClientConfig{}

	if err := loadEnvString(&config.APIURL, "API_URL", "http://localhost:8080"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.WebsocketURL, "WEBSOCKET_URL", "ws://localhost:8080/ws"); err != nil {
		return nil, err
	}

	if err := loadEnvDuration(&config.ReconnectInterval, "WS_RECONNECT_INTERVAL", def.Interval); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.ReconnectDecay, "WS_RECONNECT_DECAY", def.Decay); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.TimeoutInterval, "WS_TIMEOUT_INTERVAL", def.Timeout); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxRetries, "WS_MAX_RETRIES", def.MaxRetries); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.MinUptime, "WS_MIN_UPTIME", def.MinUptime); err != nil {
		return nil, err
	}

	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate performs validation on the loaded client configuration
func (c *ClientConfig) Validate() error {
	var errors []string

	if !strings.HasPrefix(c.WebsocketURL, "ws://") && !strings.HasPrefix(c.WebsocketURL, "wss://") {
		errors = append(errors, "WEBSOCKET_URL must start with ws:// or wss://")
	}
	if c.ReconnectInterval <= 0 {
		errors = append(errors, "WS_RECONNECT_INTERVAL must be positive")
	}
	if c.ReconnectDecay < 1 {
		errors = append(errors, "WS_RECONNECT_DECAY must be at least 1")
	}
	if c.TimeoutInterval <= 0 {
		errors = append(errors, "WS_TIMEOUT_INTERVAL must be positive")
	}
	if c.MaxRetries == 0 {
		errors = append(errors, "WS_MAX_RETRIES must be positive, or negative to retry forever")
	}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// Policy converts the reconnection settings into a realtime.Policy
func (c *ClientConfig) Policy() realtime.Policy {
	return realtime.Policy{
		Interval:   c.ReconnectInterval,
		Decay:      c.ReconnectDecay,
		MaxRetries: c.MaxRetries,
		Timeout:    c.TimeoutInterval,
		MinUptime:  c.MinUptime,
	}
}
