package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/wrale/sso-code-exchange/internal/oauth"
	"github.com/wrale/sso-code-exchange/internal/validation"
)

// Config holds server configuration loaded from environment variables
type Config struct {
	Port     int    `envconfig:"PORT" default:"3000" validate:"min=1"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	ClientID     string `envconfig:"SSO_CLIENT_ID" validate:"required"`
	ClientSecret string `envconfig:"SSO_CLIENT_SECRET" validate:"required"`
	RedirectURL  string `envconfig:"CLIENT_REDIRECT_URL" validate:"required,url"`
	APIURL       string `envconfig:"SSO_API_URL" validate:"required,url"`
	AuthorizeURL string `envconfig:"SSO_AUTHORIZE_URL" validate:"omitempty,url"`

	CookieSecure bool   `envconfig:"COOKIE_SECURE" default:"false"`
	RedisURL     string `envconfig:"REDIS_URL"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// loadConfig reads an optional .env file, then the environment
func loadConfig(envFile string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("loading %s: %w", envFile, err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("processing environment: %w", err)
	}
	if err := cfg.Validate(validation.New()); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate reports every missing or malformed setting at once
func (c Config) Validate(v *validation.Validator) error {
	if err := v.Check(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Production reports whether the server runs in production
func (c Config) Production() bool {
	return c.AppEnv == "production"
}

// OAuth returns the client registration with the SSO provider
func (c Config) OAuth() oauth.Config {
	return oauth.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURL,
		BaseURL:      c.APIURL,
		AuthorizeURL: c.AuthorizeURL,
	}
}
