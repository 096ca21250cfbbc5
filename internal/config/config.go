package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Mailbox MailboxConfig `yaml:"mailbox"`
	Limits  LimitsConfig  `yaml:"limits"`
	Worker  WorkerConfig  `yaml:"worker"`
	Signup  SignupConfig  `yaml:"signup"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type MailboxConfig struct {
	BaseURL   string `yaml:"baseURL"`
	TimeoutMs int    `yaml:"timeoutMs"`
	Provider  string `yaml:"provider"`
}

func (c MailboxConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type LimitsConfig struct {
	// ProviderQPS caps outbound calls to the mailbox provider across all
	// jobs; the provider is a shared free service and bans chatty clients.
	ProviderQPS     float64 `yaml:"providerQPS"`
	ProviderBurst   int     `yaml:"providerBurst"`
	CooldownSeconds int     `yaml:"cooldownSeconds"`
}

func (c LimitsConfig) Cooldown() time.Duration {
	if c.CooldownSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CooldownSeconds) * time.Second
}

type WorkerConfig struct {
	MaxUnitRetries int `yaml:"maxUnitRetries"`
}

type SignupConfig struct {
	SuccessRate float64 `yaml:"successRate"`
	MinDelayMs  int     `yaml:"minDelayMs"`
	MaxDelayMs  int     `yaml:"maxDelayMs"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/account_factory.db"
	}
	if c.Mailbox.BaseURL == "" {
		c.Mailbox.BaseURL = "https://api.mail.tm"
	}
	if c.Mailbox.Provider == "" {
		c.Mailbox.Provider = "mail.tm"
	}
	if c.Limits.ProviderQPS <= 0 {
		c.Limits.ProviderQPS = 1
	}
	if c.Limits.ProviderBurst <= 0 {
		c.Limits.ProviderBurst = 2
	}
	if c.Limits.CooldownSeconds <= 0 {
		c.Limits.CooldownSeconds = 60
	}
	if c.Worker.MaxUnitRetries <= 0 {
		c.Worker.MaxUnitRetries = 3
	}
	if c.Signup.SuccessRate <= 0 || c.Signup.SuccessRate > 1 {
		c.Signup.SuccessRate = 0.95
	}
	if c.Signup.MinDelayMs <= 0 {
		c.Signup.MinDelayMs = 1000
	}
	if c.Signup.MaxDelayMs < c.Signup.MinDelayMs {
		c.Signup.MaxDelayMs = c.Signup.MinDelayMs + 1000
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Mailbox.BaseURL == "" {
		return errors.New("mailbox.baseURL is required")
	}
	return nil
}
