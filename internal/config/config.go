package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	TelegramToken string

	// HTTP health server
	Port string

	// Backend selection
	DataBackend string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// SQLite ledger, primary or mirror
	SQLiteDBPath string
	// MemorySeedDir holds seed_ledger.csv for the memory backend
	MemorySeedDir string

	// AMQP ledger events; empty URL disables them
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Domain
	Timezone        string
	ActionCacheSize int
	UndoWindow      time.Duration
	CategoryLocale  string
	Currency        string

	// Speech-to-text; empty URL disables voice notes
	SpeechURL        string
	SpeechLanguage   string
	MaxVoiceDuration time.Duration

	// Ledger retries
	RetryAttempts int
	RetryDelay    time.Duration

	RateLimitPerMinute int

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		TelegramToken: getEnv("TELEGRAM_TOKEN", ""),
		Port:          getEnv("PORT", "10000"),
		DataBackend:   getEnv("DATA_BACKEND", "memory"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Sheet1"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/findot.db"),
		MemorySeedDir: getEnv("MEMORY_SEED_DIR", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "findot"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		Timezone:        getEnv("TIMEZONE", "Europe/Kyiv"),
		ActionCacheSize: getEnvInt("ACTION_CACHE_SIZE", 50),
		UndoWindow:      getEnvDuration("UNDO_WINDOW", 10*time.Minute),
		CategoryLocale:  getEnv("CATEGORY_LOCALE", "uk"),
		Currency:        getEnv("CURRENCY", "грн"),

		SpeechURL:        getEnv("SPEECH_URL", ""),
		SpeechLanguage:   getEnv("SPEECH_LANGUAGE", "uk-UA"),
		MaxVoiceDuration: getEnvDuration("MAX_VOICE_DURATION", 60*time.Second),

		RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:    getEnvDuration("RETRY_DELAY", 2*time.Second),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Location resolves Timezone, falling back to the host zone.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.Local
}

// Validate checks settings shared by every binary and returns all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sheets", "sqlite"}
	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

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

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if c.ActionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid action cache size %d: must be at least 1", c.ActionCacheSize))
	}
	if c.UndoWindow <= 0 {
		errors = append(errors, fmt.Sprintf("invalid undo window %v: must be positive", c.UndoWindow))
	}
	if c.SpeechURL != "" {
		if u, err := url.Parse(c.SpeechURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid speech URL '%s': must be http or https", c.SpeechURL))
		}
	}
	if c.MaxVoiceDuration <= 0 {
		errors = append(errors, fmt.Sprintf("invalid max voice duration %v: must be positive", c.MaxVoiceDuration))
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid retry attempts %d: must be between 1 and 10", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid retry delay %v: must not be negative", c.RetryDelay))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	if !contains([]string{"text", "json"}, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateBot adds the checks only the bot binary needs.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.TelegramToken) == "" {
		return fmt.Errorf("configuration validation failed:\n- TELEGRAM_TOKEN is required")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
