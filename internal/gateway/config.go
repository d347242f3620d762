package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Config is the gateway.http module section.
//
//	modules:
//	  gateway.http:
//	    bind: 127.0.0.1:8080
//	    auth:
//	      bearer_token: ${GATEWAY_TOKEN}
//	    webhook_secrets:
//	      github: ${GITHUB_HOOK_SECRET}
//	    timeouts:
//	      read: 10s
type Config struct {
	Bind string     `yaml:"bind"`
	Auth AuthConfig `yaml:"auth"`
	// WebhookSecrets maps a /webhooks/{source} name to the HMAC secret its
	// X-Signature-256 header is checked against. Telegram checks its own
	// secret header and needs no entry here.
	WebhookSecrets map[string]string `yaml:"webhook_secrets"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes"`
	Timeouts       Timeouts          `yaml:"timeouts"`
}

// Timeouts bound the HTTP server.
type Timeouts struct {
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Shutdown time.Duration `yaml:"shutdown"`
}

const (
	defaultBind         = "127.0.0.1:8080"
	defaultMaxBodyBytes = 1 << 20
)

func (c Config) withDefaults() Config {
	if c.Bind == "" {
		c.Bind = defaultBind
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Timeouts.Read <= 0 {
		c.Timeouts.Read = 10 * time.Second
	}
	if c.Timeouts.Write <= 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Shutdown <= 0 {
		c.Timeouts.Shutdown = 5 * time.Second
	}
	return c
}

// validate reports every problem in c, joined.
func (c Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
	}
	if c.Auth.BasicUser != "" && c.Auth.BasicPass == "" {
		errs = append(errs, errors.New("gateway: auth.basic_pass is required with auth.basic_user"))
	}
	for source, secret := range c.WebhookSecrets {
		if secret == "" {
			errs = append(errs, fmt.Errorf("gateway: webhook_secrets.%s is empty", source))
		}
	}
	return errors.Join(errs...)
}

// AuthConfig protects /status and /api.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether any auth method is set. The admin routes are
// only mounted when it is.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
