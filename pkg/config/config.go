package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Environment selects which processor endpoints the adapters talk to.
type Environment string

const (
	EnvironmentTest       Environment = "test"
	EnvironmentProduction Environment = "production"
)

const (
	testBaseUrl = "https://ccapi-stg.paymentez.com"
	prodBaseUrl = "https://ccapi.paymentez.com"
	cresBaseUrl = "https://nuvei-cres-dev-bkh4atahdegxa8dk.eastus-01.azurewebsites.net"
)

// Config carries every credential and tunable the collaborators need.
// It is constructed once and injected; there is no process-wide state.
type Config struct {
	Environment Environment `koanf:"environment" validate:"required"`

	AppCode   string `koanf:"app_code" validate:"required"`
	AppKey    string `koanf:"app_key" validate:"required"`
	ServerCode string `koanf:"server_code" validate:"required"`
	ServerKey  string `koanf:"server_key" validate:"required"`

	CresClientId     string `koanf:"cres_client_id" validate:"required"`
	CresClientSecret string `koanf:"cres_client_secret" validate:"required"`

	// TermUrlTemplate must contain exactly one %s, replaced with the
	// challenge reference id when building the 3DS return url.
	TermUrlTemplate string `koanf:"term_url_template"`

	PollInterval     time.Duration `koanf:"poll_interval"`
	ContinueDelay    time.Duration `koanf:"continue_delay"`
	MaxContinues     int           `koanf:"max_continues"`
	ContinueDeadline time.Duration `koanf:"continue_deadline"`
	HttpTimeout      time.Duration `koanf:"http_timeout"`

	ListenAddress string `koanf:"listen_address"`
}

// BaseUrl resolves the processor endpoint for the selected environment.
func (c Config) BaseUrl() string {
	if c.Environment == EnvironmentProduction {
		return prodBaseUrl
	}
	return testBaseUrl
}

// CresBaseUrl resolves the challenge-service endpoint.
func (c Config) CresBaseUrl() string {
	return cresBaseUrl
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvironmentTest
	}
	if c.TermUrlTemplate == "" {
		c.TermUrlTemplate = c.CresBaseUrl() + "/api/cres/save/%s"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ContinueDelay <= 0 {
		c.ContinueDelay = 5 * time.Second
	}
	if c.MaxContinues <= 0 {
		c.MaxContinues = 10
	}
	if c.ContinueDeadline <= 0 {
		c.ContinueDeadline = 2 * time.Minute
	}
	if c.HttpTimeout <= 0 {
		c.HttpTimeout = 60 * time.Second
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
}

// Load reads configuration from CARDAUTH_-prefixed environment
// variables, applies defaults and validates required credentials.
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider("CARDAUTH_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "CARDAUTH_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		eMsg := "error loading environment variables"
		log.WithError(err).Error(eMsg)
		return nil, errors.Wrap(err, eMsg)
	}

	c := &Config{}
	err = k.Unmarshal("", c)
	if err != nil {
		eMsg := "error unmarshalling configuration"
		log.WithError(err).Error(eMsg)
		return nil, errors.Wrap(err, eMsg)
	}
	c.applyDefaults()

	validate := validator.New()
	err = validate.Struct(c)
	if err != nil {
		eMsg := "configuration validation failed"
		log.WithError(err).Error(eMsg)
		return nil, errors.Wrap(err, eMsg)
	}
	return c, nil
}
