// Package config loads service settings from the environment.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Environment string `mapstructure:"APP_ENV"`

	FirebaseCredentialsJSON string `mapstructure:"FIREBASE_CREDENTIALS_JSON"`
	FirebaseCredentialsFile string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`

	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`
	TwilioWebhookURL string `mapstructure:"TWILIO_WEBHOOK_URL"`
	MessagingDryRun  bool   `mapstructure:"MESSAGING_DRY_RUN"`

	AutomationTimeZone    string `mapstructure:"AUTOMATION_TZ"`
	AutomationCron        string `mapstructure:"AUTOMATION_CRON"`
	AutomationJobDisabled bool   `mapstructure:"AUTOMATION_JOB_DISABLED"`
	AutomationCatchUp     bool   `mapstructure:"AUTOMATION_CATCH_UP"`

	RedisURL  string `mapstructure:"REDIS_URL"`
	SentryDSN string `mapstructure:"SENTRY_DSN"`

	MetricsUser    string  `mapstructure:"METRICS_USER"`
	MetricsPass    string  `mapstructure:"METRICS_PASS"`
	CORSOrigins    string  `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "APP_ENV",
	"FIREBASE_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_PROJECT_ID",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "TWILIO_WEBHOOK_URL", "MESSAGING_DRY_RUN",
	"AUTOMATION_TZ", "AUTOMATION_CRON", "AUTOMATION_JOB_DISABLED", "AUTOMATION_CATCH_UP",
	"REDIS_URL", "SENTRY_DSN",
	"METRICS_USER", "METRICS_PASS", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("PORT", "3333")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("GOOGLE_APPLICATION_CREDENTIALS", "./serviceAccountKey.json")
	viper.SetDefault("AUTOMATION_TZ", "America/Caracas")
	viper.SetDefault("AUTOMATION_CRON", "0 9 * * *")
	viper.SetDefault("CORS_ORIGINS", "*")
	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 30)
	viper.AutomaticEnv()

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if !config.MessagingDryRun && config.TwilioAccountSID != "" && config.TwilioAuthToken == "" {
		return nil, fmt.Errorf("TWILIO_AUTH_TOKEN is required when TWILIO_ACCOUNT_SID is set")
	}
	if config.RateLimitBurst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
	}

	return &config, nil
}

// TwilioEnabled reports whether real WhatsApp delivery is configured.
func (c *Config) TwilioEnabled() bool {
	return !c.MessagingDryRun && c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}
