package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env           string
	Port          string
	DatabaseURL   string
	RedisURL      string
	SessionSecret string
	LogLevel      string
	LogPretty     bool

	HealthAdminKey string
	CORSOrigins    []string

	SensorSecret   string        // SENSOR_SECRET; approved sensor hash is sha256(secret + partId)
	AdapterTimeout time.Duration // upper bound for every content-store / chain call

	SamplerInterval   time.Duration // 0 disables the dev IoT sampler
	SamplerProducerID string

	LeaderboardSchedule string
	LeaderboardSize     int
	ReconcileSchedule   string
	ReconcileAfter      time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SENSOR_SECRET", "superSecretKey123")
	v.SetDefault("ADAPTER_TIMEOUT", "5s")
	v.SetDefault("SAMPLER_INTERVAL", "0s")
	v.SetDefault("LEADERBOARD_SCHEDULE", "@every 1m")
	v.SetDefault("LEADERBOARD_SIZE", 10)
	v.SetDefault("RECONCILE_SCHEDULE", "@every 30s")
	v.SetDefault("RECONCILE_AFTER", "1m")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	env := v.GetString("APP_ENV")

	return &Config{
		Env:                 env,
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		SessionSecret:       v.GetString("SESSION_SECRET"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogPretty:           v.GetBool("LOG_PRETTY") || env == "development",
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
		CORSOrigins:         splitList(v.GetString("CORS_ORIGINS")),
		SensorSecret:        v.GetString("SENSOR_SECRET"),
		AdapterTimeout:      v.GetDuration("ADAPTER_TIMEOUT"),
		SamplerInterval:     v.GetDuration("SAMPLER_INTERVAL"),
		SamplerProducerID:   strings.TrimSpace(v.GetString("SAMPLER_PRODUCER_ID")),
		LeaderboardSchedule: v.GetString("LEADERBOARD_SCHEDULE"),
		LeaderboardSize:     v.GetInt("LEADERBOARD_SIZE"),
		ReconcileSchedule:   v.GetString("RECONCILE_SCHEDULE"),
		ReconcileAfter:      v.GetDuration("RECONCILE_AFTER"),
		RateLimitRPS:        v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:      v.GetInt("RATE_LIMIT_BURST"),
	}, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
