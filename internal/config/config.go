// Package config содержит логику чтения конфигурации кредитного движка.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации кредитного движка.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	NotifyAddress   string        `env:"NOTIFY_ADDRESS"`
	IdentityAddress string        `env:"IDENTITY_ADDRESS"`
	AuthSecret      string        `env:"AUTH_SECRET"`
	JobInterval     time.Duration `env:"JOB_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envNotifyAddress := cfg.NotifyAddress
	envIdentityAddress := cfg.IdentityAddress
	envAuthSecret := cfg.AuthSecret
	envJobInterval := cfg.JobInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "notification service address")
	flag.StringVar(&cfg.IdentityAddress, "i", "", "identity service address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth cookies")
	flag.DurationVar(&cfg.JobInterval, "j", time.Minute, "scheduler tick interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}
	if envIdentityAddress != "" {
		cfg.IdentityAddress = envIdentityAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envJobInterval != 0 {
		cfg.JobInterval = envJobInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.JobInterval <= 0 {
		cfg.JobInterval = time.Minute
	}

	return cfg, nil
}
