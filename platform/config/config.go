// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RateLimitConfig provides settings for the API rate limiter.
type RateLimitConfig interface {
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// RemoteConfig provides settings for the system-of-record client.
type RemoteConfig interface {
	GetRemoteBaseURL() string
	GetRemoteTimeout() time.Duration
	GetRemoteReadRetries() int
	GetRemoteRetryBackoff() time.Duration
}

// SessionConfig provides settings for agent sessions.
type SessionConfig interface {
	GetSessionIdleTTL() time.Duration
	GetDefaultTimezone() string
}

// LeadConfig provides settings for the lead tracker.
type LeadConfig interface {
	GetPhoneRegion() string
}

// CallPolicyConfig provides settings for the call task scheduler.
type CallPolicyConfig interface {
	GetClosedLeadCallPolicy() string
	IsRemoteCancelEnabled() bool
}

// RedisConfig provides settings for the cross-replica change fan-out.
type RedisConfig interface {
	GetRedisURL() string
	GetFanoutChannel() string
	IsFanoutEnabled() bool
}

// DatabaseConfig provides settings for the command journal store.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetJournalSQLitePath() string
}

// SchedulerConfig provides settings for the prospectus queue and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetSchedulerConcurrency() int
	GetAsynqQueueName() string
	GetRemoteServiceToken() string
	IsProspectusQueueEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Closed-lead call policies.
const (
	ClosedLeadCallsAllow = "allow"
	ClosedLeadCallsBlock = "block"
)

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	RateLimitRPS         float64
	RateLimitBurst       int
	JWTAccessSecret      string
	RemoteBaseURL        string
	RemoteTimeout        time.Duration
	RemoteReadRetries    int
	RemoteRetryBackoff   time.Duration
	RemoteServiceToken   string
	RemoteCancelEnabled  bool
	ClosedLeadCallPolicy string
	SessionIdleTTL       time.Duration
	DefaultTimezone      string
	PhoneRegion          string
	RedisURL             string
	FanoutChannel        string
	FanoutEnabled        bool
	DatabaseURL          string
	JournalSQLitePath    string
	SchedulerConcurrency int
	AsynqQueueName       string
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetRateLimitRPS() float64 { return c.RateLimitRPS }
func (c *Config) GetRateLimitBurst() int   { return c.RateLimitBurst }

func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetRemoteBaseURL() string             { return c.RemoteBaseURL }
func (c *Config) GetRemoteTimeout() time.Duration      { return c.RemoteTimeout }
func (c *Config) GetRemoteReadRetries() int            { return c.RemoteReadRetries }
func (c *Config) GetRemoteRetryBackoff() time.Duration { return c.RemoteRetryBackoff }
func (c *Config) GetRemoteServiceToken() string        { return c.RemoteServiceToken }

func (c *Config) GetSessionIdleTTL() time.Duration { return c.SessionIdleTTL }
func (c *Config) GetDefaultTimezone() string       { return c.DefaultTimezone }

func (c *Config) GetPhoneRegion() string { return c.PhoneRegion }

func (c *Config) GetClosedLeadCallPolicy() string { return c.ClosedLeadCallPolicy }
func (c *Config) IsRemoteCancelEnabled() bool     { return c.RemoteCancelEnabled }

func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetFanoutChannel() string { return c.FanoutChannel }
func (c *Config) IsFanoutEnabled() bool    { return c.FanoutEnabled && c.RedisURL != "" }

func (c *Config) GetDatabaseURL() string       { return c.DatabaseURL }
func (c *Config) GetJournalSQLitePath() string { return c.JournalSQLitePath }

func (c *Config) GetSchedulerConcurrency() int { return c.SchedulerConcurrency }
func (c *Config) GetAsynqQueueName() string    { return c.AsynqQueueName }

// IsProspectusQueueEnabled reports whether prospectus requests go through the queue.
func (c *Config) IsProspectusQueueEnabled() bool { return c.RedisURL != "" }

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RateLimitRPS:         mustFloat(getEnv("RATE_LIMIT_RPS", "10")),
		RateLimitBurst:       int(mustInt64(getEnv("RATE_LIMIT_BURST", "20"))),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		RemoteBaseURL:        strings.TrimRight(getEnv("REMOTE_BASE_URL", ""), "/"),
		RemoteTimeout:        mustDuration(getEnv("REMOTE_TIMEOUT", "10s")),
		RemoteReadRetries:    int(mustInt64(getEnv("REMOTE_READ_RETRIES", "2"))),
		RemoteRetryBackoff:   mustDuration(getEnv("REMOTE_RETRY_BACKOFF", "200ms")),
		RemoteServiceToken:   getEnv("REMOTE_SERVICE_TOKEN", ""),
		RemoteCancelEnabled:  strings.EqualFold(getEnv("REMOTE_CANCEL_ENABLED", "false"), "true"),
		ClosedLeadCallPolicy: strings.ToLower(getEnv("CALL_POLICY_CLOSED_LEADS", ClosedLeadCallsAllow)),
		SessionIdleTTL:       mustDuration(getEnv("SESSION_IDLE_TTL", "12h")),
		DefaultTimezone:      getEnv("APP_TIMEZONE", "UTC"),
		PhoneRegion:          strings.ToUpper(getEnv("PHONE_REGION", "US")),
		RedisURL:             getEnv("REDIS_URL", ""),
		FanoutChannel:        getEnv("FANOUT_CHANNEL", "workbench:changes"),
		FanoutEnabled:        strings.EqualFold(getEnv("FANOUT_ENABLED", "true"), "true"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JournalSQLitePath:    getEnv("JOURNAL_SQLITE_PATH", "workbench-journal.db"),
		SchedulerConcurrency: int(mustInt64(getEnv("SCHEDULER_CONCURRENCY", "5"))),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "prospectus"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTAccessSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET is required"))
	}
	if c.RemoteBaseURL == "" {
		errs = append(errs, fmt.Errorf("REMOTE_BASE_URL is required"))
	}
	if c.RemoteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REMOTE_TIMEOUT must be a positive duration"))
	}
	if c.RemoteReadRetries < 0 {
		errs = append(errs, fmt.Errorf("REMOTE_READ_RETRIES cannot be negative"))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TTL must be a positive duration"))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}
	if c.ClosedLeadCallPolicy != ClosedLeadCallsAllow && c.ClosedLeadCallPolicy != ClosedLeadCallsBlock {
		errs = append(errs, fmt.Errorf("CALL_POLICY_CLOSED_LEADS must be %q or %q", ClosedLeadCallsAllow, ClosedLeadCallsBlock))
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		errs = append(errs, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
