package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pitabwire/frame"
)

const (
	MpesaEnvSandbox    = "sandbox"
	MpesaEnvProduction = "production"

	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

type SubscriptionConfig struct {
	frame.ConfigurationDefault

	MpesaConsumerKey    string `env:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret string `env:"MPESA_CONSUMER_SECRET"`
	MpesaShortCode      string `env:"MPESA_SHORTCODE"`
	MpesaPassKey        string `env:"MPESA_PASSKEY"`
	MpesaEnv            string `envDefault:"sandbox" env:"MPESA_ENV"`
	// MpesaBaseURL overrides the URL derived from MpesaEnv.
	MpesaBaseURL          string `env:"MPESA_BASE_URL"`
	MpesaCallbackURL      string `env:"MPESA_CALLBACK_URL"`
	MpesaAccountReference string `envDefault:"Murang'a Marketplace" env:"MPESA_ACCOUNT_REFERENCE"`

	APIPrefix string `envDefault:"/api/payment" env:"API_PREFIX"`

	PollInterval    time.Duration `envDefault:"5s" env:"POLL_INTERVAL"`
	PollMaxAttempts int           `envDefault:"12" env:"POLL_MAX_ATTEMPTS"`
	SweepInterval   time.Duration `envDefault:"1m" env:"SWEEP_INTERVAL"`
	SweepStaleAfter time.Duration `envDefault:"2m" env:"SWEEP_STALE_AFTER"`

	RedisURL  string `env:"REDIS_URL"`
	JwtSecret string `env:"JWT_SECRET"`

	SubscriptionEventsTopic string `envDefault:"subscription.activated" env:"SUBSCRIPTION_EVENTS_TOPIC"`
	SubscriptionEventsURL   string `envDefault:"mem://subscription.activated" env:"SUBSCRIPTION_EVENTS_URL"`

	SeedPlans bool `envDefault:"true" env:"SEED_PLANS"`
}

// ConfigurationError reports settings that must be present before the service can start.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid environment variables: %s", strings.Join(e.Invalid, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Validate returns a *ConfigurationError when provider credentials or polling bounds are unusable.
func (c *SubscriptionConfig) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"MPESA_CONSUMER_KEY", c.MpesaConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.MpesaConsumerSecret},
		{"MPESA_SHORTCODE", c.MpesaShortCode},
		{"MPESA_PASSKEY", c.MpesaPassKey},
		{"MPESA_CALLBACK_URL", c.MpesaCallbackURL},
	}

	cfgErr := &ConfigurationError{}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cfgErr.Missing = append(cfgErr.Missing, r.name)
		}
	}

	if c.MpesaBaseURL == "" && c.MpesaEnv != MpesaEnvSandbox && c.MpesaEnv != MpesaEnvProduction {
		cfgErr.Invalid = append(cfgErr.Invalid, "MPESA_ENV")
	}
	if c.PollInterval <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "POLL_INTERVAL")
	}
	if c.PollMaxAttempts <= 0 {
		cfgErr.Invalid = append(cfgErr.Invalid, "POLL_MAX_ATTEMPTS")
	}

	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return cfgErr
	}
	return nil
}

// GetMpesaBaseURL resolves the Daraja host for the configured environment.
func (c *SubscriptionConfig) GetMpesaBaseURL() string {
	if c.MpesaBaseURL != "" {
		return strings.TrimRight(c.MpesaBaseURL, "/")
	}
	if c.MpesaEnv == MpesaEnvProduction {
		return productionBaseURL
	}
	return sandboxBaseURL
}
