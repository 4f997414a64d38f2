package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the logbook API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	DatabaseURL       string
	RedisURL          string
	NatsURL           string
	JWTSecret         string
	LMSBaseURL        string
	LMSToken          string
	LMSTimeout        time.Duration
	GradeSyncInterval time.Duration
	EventChannelBase  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LOGBOOK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Logbook API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("lms.timeout", "10s")
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("events.channel_base", "logbook")

	lmsTimeout, err := time.ParseDuration(v.GetString("lms.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid lms timeout: %w", err)
	}

	// A zero interval disables the periodic runner; sync can still be
	// triggered over the API.
	syncInterval, err := time.ParseDuration(v.GetString("sync.interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid sync interval: %w", err)
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NatsURL:           v.GetString("nats.url"),
		JWTSecret:         v.GetString("jwt.secret"),
		LMSBaseURL:        v.GetString("lms.base_url"),
		LMSToken:          v.GetString("lms.api_token"),
		LMSTimeout:        lmsTimeout,
		GradeSyncInterval: syncInterval,
		EventChannelBase:  v.GetString("events.channel_base"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.LMSBaseURL == "" || cfg.LMSToken == "" {
		return Config{}, fmt.Errorf("lms base url and api token must be provided")
	}

	return cfg, nil
}
