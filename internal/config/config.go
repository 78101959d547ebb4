package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/notification-dispatch/internal/provider"
)

type Config struct {
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`

	SMTPHost        string `env:"SMTP_HOST,required=true"`
	SMTPPort        int    `env:"SMTP_PORT,default=587"`
	SMTPSecure      bool   `env:"SMTP_SECURE,default=false"`
	SMTPUser        string `env:"SMTP_USER"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	MailFromName    string `env:"MAIL_FROM_NAME,required=true"`
	MailFromAddress string `env:"MAIL_FROM_ADDRESS,required=true"`

	DKIMSelector   string `env:"SMTP_DKIM_SELECTOR"`
	DKIMDomain     string `env:"SMTP_DKIM_DOMAIN"`
	DKIMPrivateKey string `env:"SMTP_DKIM_PRIVATE_KEY"`
	DKIMKeyPath    string `env:"SMTP_DKIM_KEY_PATH"`

	WebhookURL          string `env:"WEBHOOK_URL"`
	SendRateLimitPerSec int    `env:"SEND_RATE_LIMIT_PER_SEC,default=50"`
	OpsPort             int    `env:"OPS_PORT,default=8081"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SMTP() provider.SMTPConfig {
	return provider.SMTPConfig{
		Host:        strings.TrimSpace(c.SMTPHost),
		Port:        c.SMTPPort,
		Secure:      c.SMTPSecure,
		User:        c.SMTPUser,
		Password:    c.SMTPPassword,
		FromName:    c.MailFromName,
		FromAddress: strings.TrimSpace(c.MailFromAddress),
	}
}

func (c *Config) DKIM() provider.DKIMConfig {
	return provider.DKIMConfig{
		Selector:   strings.TrimSpace(c.DKIMSelector),
		Domain:     strings.TrimSpace(c.DKIMDomain),
		PrivateKey: c.DKIMPrivateKey,
		KeyPath:    strings.TrimSpace(c.DKIMKeyPath),
	}
}
