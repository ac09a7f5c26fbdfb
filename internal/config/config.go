package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultTokenFile      = ".kickdeal-token"
)

type Config struct {
	BrokerURL      string
	APIBaseURL     string
	TokenFile      string
	StatsAddr      string
	ConnectTimeout time.Duration
}

func NewConfig(brokerURL, apiBaseURL, tokenFile string) (*Config, error) {
	if brokerURL == "" {
		return nil, fmt.Errorf("broker URL cannot be empty")
	}
	if apiBaseURL == "" {
		return nil, fmt.Errorf("API base URL cannot be empty")
	}
	if tokenFile == "" {
		tokenFile = defaultTokenFile
	}

	return &Config{
		BrokerURL:      brokerURL,
		APIBaseURL:     apiBaseURL,
		TokenFile:      tokenFile,
		ConnectTimeout: defaultConnectTimeout,
	}, nil
}

// FromEnv builds a Config from the environment, loading a .env file first
// if one is present. Missing .env is not an error.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := NewConfig(
		os.Getenv("CHATLINK_BROKER_URL"),
		os.Getenv("CHATLINK_API_URL"),
		os.Getenv("CHATLINK_TOKEN_FILE"),
	)
	if err != nil {
		return nil, err
	}

	cfg.StatsAddr = os.Getenv("CHATLINK_STATS_ADDR")

	if v := os.Getenv("CHATLINK_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse connect timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}

	return cfg, nil
}
