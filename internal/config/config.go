package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port          string
	SecureCookies bool
	LogLevel      string

	// Remote API
	APIBaseURL     string
	GatewayBackend string

	// Database
	SQLiteDBPath string

	// Sessions
	RedisURL          string
	SessionSecret     string
	SessionTTL        time.Duration
	InactivityTimeout time.Duration
	LogoutGrace       time.Duration

	// Abuse protection
	IdempotencyTTL    time.Duration
	LoginMaxPerMinute int
	TOTPIssuer        string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	WorkerAPIToken   string
	HydrateBatchSize int
	HydrateInterval  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8081"),
		SecureCookies: getEnvBool("SECURE_COOKIES", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		APIBaseURL:     getEnv("API_BASE_URL", "http://127.0.0.1:8000"),
		GatewayBackend: getEnv("GATEWAY_BACKEND", "rest"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cashtimachann.db"),

		RedisURL:          getEnv("REDIS_URL", ""),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionTTL:        getEnvDuration("SESSION_TTL", 12*time.Hour),
		InactivityTimeout: getEnvDuration("INACTIVITY_TIMEOUT", 10*time.Minute),
		LogoutGrace:       getEnvDuration("LOGOUT_GRACE", 30*time.Second),

		IdempotencyTTL:    getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		LoginMaxPerMinute: getEnvInt("LOGIN_MAX_PER_MINUTE", 5),
		TOTPIssuer:        getEnv("TOTP_ISSUER", "Cash Ti Machann"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cashtimachann"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "dashboard_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Tranzaksyon"),

		WorkerAPIToken:   getEnv("WORKER_API_TOKEN", ""),
		HydrateBatchSize: getEnvInt("HYDRATE_BATCH_SIZE", 20),
		HydrateInterval:  getEnvDuration("HYDRATE_INTERVAL", 5*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate gateway backend
	validBackends := []string{"rest", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.GatewayBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid gateway backend '%s': must be one of %v", c.GatewayBackend, validBackends))
	}

	if c.GatewayBackend == "rest" {
		if parsedURL, err := url.Parse(c.APIBaseURL); err != nil || c.APIBaseURL == "" {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s'", c.APIBaseURL))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.RedisURL != "" {
		if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
	}

	// Session secret seals backend tokens; an empty value means a random per-process key.
	if c.SessionSecret != "" && len(c.SessionSecret) < 32 {
		errors = append(errors, "SESSION_SECRET must be at least 32 characters")
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.InactivityTimeout < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid inactivity timeout %v: must be at least 10 seconds", c.InactivityTimeout))
	}
	if c.LogoutGrace < 0 || c.LogoutGrace > c.InactivityTimeout {
		errors = append(errors, fmt.Sprintf("invalid logout grace %v: must be between 0 and the inactivity timeout", c.LogoutGrace))
	}
	if c.IdempotencyTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid idempotency TTL %v: must be at least 1 minute", c.IdempotencyTTL))
	}
	if c.LoginMaxPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid login limit %d: must be at least 1", c.LoginMaxPerMinute))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
	}

	// Validate worker configuration
	if c.HydrateBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid hydrate batch size %d: must be at least 1", c.HydrateBatchSize))
	} else if c.HydrateBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid hydrate batch size %d: must be at most 1000", c.HydrateBatchSize))
	}

	if c.HydrateInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid hydrate interval %v: must be at least 1 second", c.HydrateInterval))
	} else if c.HydrateInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid hydrate interval %v: must be at most 24 hours", c.HydrateInterval))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SessionIdleLimit is how long a session may stay idle before it is destroyed.
func (c *Config) SessionIdleLimit() time.Duration {
	return c.InactivityTimeout + c.LogoutGrace
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
