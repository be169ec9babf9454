package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const defaultAutoReply = "Thank you for your message! We will get back to you shortly."

type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	TwilioAccountSID  string
	TwilioAuthToken   string
	FromNumber        string
	AutoReplyText     string
	HeartbeatInterval time.Duration
	MaxClients        int
	LogLevel          string
	LogFormat         string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "3000"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		FromNumber:       getEnv("FROM_NUMBER", ""),
		AutoReplyText:    getEnv("PUBLIC_MESSAGE", defaultAutoReply),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TwilioAccountSID == "" {
		return nil, fmt.Errorf("TWILIO_ACCOUNT_SID is required")
	}
	if cfg.TwilioAuthToken == "" {
		return nil, fmt.Errorf("TWILIO_AUTH_TOKEN is required")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("FROM_NUMBER is required")
	}

	interval, err := getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("HEARTBEAT_INTERVAL must be positive")
	}
	cfg.HeartbeatInterval = interval

	maxClients, err := getEnvInt("MAX_STREAM_CLIENTS", 100)
	if err != nil {
		return nil, err
	}
	if maxClients <= 0 {
		return nil, fmt.Errorf("MAX_STREAM_CLIENTS must be positive")
	}
	cfg.MaxClients = maxClients

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
