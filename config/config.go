// Package config loads the taskflow-api settings from TASKFLOW_ prefixed
// environment variables.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config struct {
	Debug   bool    `env:"DEBUG" envDefault:"false"`
	HTTP    HTTP    `envPrefix:"HTTP_"`
	Storage Storage `envPrefix:"STORAGE_"`
	Redis   Redis   `envPrefix:"REDIS_"`
	Auth    Auth    `envPrefix:"AUTH_"`
	Events  Events  `envPrefix:"EVENTS_"`
}

type HTTP struct {
	Address        string   `env:"ADDRESS,expand" envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Storage locates the Azure task table and the change events queue.
type Storage struct {
	ConnectionString string `env:"CONNECTION_STRING,required"`
	TasksTable       string `env:"TASKS_TABLE" envDefault:"tasks"`
	EventsQueue      string `env:"EVENTS_QUEUE" envDefault:"task-events"`
	Provision        bool   `env:"PROVISION" envDefault:"false"`
}

type Redis struct {
	// URL is optional; without it the task cache and idempotency checks are off.
	URL      string        `env:"URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	DedupTTL time.Duration `env:"DEDUPE_TTL" envDefault:"24h"`
}

type Auth struct {
	Audience     string        `env:"AUDIENCE"`
	Domain       string        `env:"DOMAIN"`
	TestSecret   string        `env:"TEST_SECRET"`
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"15m"`
}

type Events struct {
	Workers int           `env:"WORKERS" envDefault:"8"`
	Buffer  int           `env:"BUFFER" envDefault:"1024"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
	Handoff time.Duration `env:"HANDOFF" envDefault:"15ms"`
}

// JWKSURL is the key set location of the identity provider.
func (a Auth) JWKSURL() string {
	return "https://" + a.Domain + "/.well-known/jwks.json"
}

// Issuer is the expected token issuer, empty when no domain is configured.
func (a Auth) Issuer() string {
	if a.Domain == "" {
		return ""
	}
	return "https://" + a.Domain + "/"
}

func Parse() (*Config, error) {
	conf, err := env.ParseAsWithOptions[Config](env.Options{
		Prefix: "TASKFLOW_",
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks combinations the struct tags cannot express.
func (c Config) Validate() error {
	if c.Auth.TestSecret == "" && (c.Auth.Audience == "" || c.Auth.Domain == "") {
		return errors.New("auth audience and domain are required unless a test secret is set")
	}
	if c.Events.Workers <= 0 {
		return errors.Errorf("invalid events workers: %d", c.Events.Workers)
	}
	if c.Events.Buffer < 0 {
		return errors.Errorf("invalid events buffer: %d", c.Events.Buffer)
	}
	if c.Redis.DedupTTL <= 0 {
		return errors.Errorf("invalid dedupe ttl: %v", c.Redis.DedupTTL)
	}
	return nil
}
