package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken  string
	TelegramChatID int64 // Recipient chat for alerts; also gates bot commands.
	DatabaseURL    string
	SourceURL      string

	FetchTimeout  time.Duration
	NotifyTimeout time.Duration

	// Active window: the weekday/hour range during which polling uses the
	// short interval. Hours are inclusive on both ends.
	ActiveDayStart  time.Weekday
	ActiveDayEnd    time.Weekday
	ActiveHourStart int
	ActiveHourEnd   int

	ShortPollInterval time.Duration // inside the active window
	LongPollInterval  time.Duration // outside it
	ErrorCooldown     time.Duration // after an unexpected cycle failure

	BulkSummaryThreshold int // new records in one cycle above which a summary is also sent

	// The feed has shipped the headline under two different keys over time.
	// "desc" is the current production field, "headline" the older variant.
	SourceTitleField string
	// Optional path to a JSON array of symbols (e.g. the Nifty 500 list).
	// When set, announcements from other symbols are skipped.
	SymbolAllowlistFile string

	NotifyRatePerSec int // Telegram send rate limit

	// Optional cron spec for one extra fetch after market close. Empty
	// disables the job.
	PostMarketCronSpec string

	HTTPListenAddr string

	LogLevel    string
	Environment string
}

const defaultSourceURL = "https://www.nseindia.com/api/corporate-announcements?index=equities"

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
	if chatIDStr == "" {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is not set")
	}
	cfg.TelegramChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.SourceURL = os.Getenv("SOURCE_URL")
	if cfg.SourceURL == "" {
		cfg.SourceURL = defaultSourceURL
	}

	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = durationEnv("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.ActiveDayStart, cfg.ActiveDayEnd, err = weekdayRangeEnv("ACTIVE_DAYS", time.Monday, time.Friday); err != nil {
		return nil, err
	}
	if cfg.ActiveHourStart, err = intEnv("ACTIVE_HOUR_START", 9); err != nil {
		return nil, err
	}
	if cfg.ActiveHourEnd, err = intEnv("ACTIVE_HOUR_END", 18); err != nil {
		return nil, err
	}
	if cfg.ActiveHourStart < 0 || cfg.ActiveHourEnd > 23 || cfg.ActiveHourStart > cfg.ActiveHourEnd {
		return nil, fmt.Errorf("invalid active hour range %d-%d", cfg.ActiveHourStart, cfg.ActiveHourEnd)
	}

	if cfg.ShortPollInterval, err = durationEnv("SHORT_POLL_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LongPollInterval, err = durationEnv("LONG_POLL_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ErrorCooldown, err = durationEnv("ERROR_COOLDOWN", time.Minute); err != nil {
		return nil, err
	}

	if cfg.BulkSummaryThreshold, err = intEnv("BULK_SUMMARY_THRESHOLD", 5); err != nil {
		return nil, err
	}

	cfg.SourceTitleField = strings.ToLower(os.Getenv("SOURCE_TITLE_FIELD"))
	if cfg.SourceTitleField == "" {
		cfg.SourceTitleField = "desc"
	}
	if cfg.SourceTitleField != "desc" && cfg.SourceTitleField != "headline" {
		return nil, fmt.Errorf("SOURCE_TITLE_FIELD must be 'desc' or 'headline', got %q", cfg.SourceTitleField)
	}

	cfg.SymbolAllowlistFile = os.Getenv("SYMBOL_ALLOWLIST_FILE")

	if cfg.NotifyRatePerSec, err = intEnv("NOTIFY_RATE_PER_SEC", 4); err != nil {
		return nil, err
	}

	if spec, ok := os.LookupEnv("POST_MARKET_CRON_SPEC"); ok {
		cfg.PostMarketCronSpec = spec // empty value disables the job
	} else {
		cfg.PostMarketCronSpec = "0 16 * * 1-5" // 16:00 Mon-Fri
	}

	cfg.HTTPListenAddr = os.Getenv("HTTP_LISTEN_ADDR")
	if cfg.HTTPListenAddr == "" {
		cfg.HTTPListenAddr = ":5001"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// weekdayRangeEnv parses values like "Mon-Fri". A single day ("Sat") means a
// one-day range.
func weekdayRangeEnv(key string, defStart, defEnd time.Weekday) (time.Weekday, time.Weekday, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defStart, defEnd, nil
	}
	parts := strings.SplitN(raw, "-", 2)
	start, ok := parseWeekday(parts[0])
	if !ok {
		return 0, 0, fmt.Errorf("invalid %s: unknown weekday %q", key, parts[0])
	}
	end := start
	if len(parts) == 2 {
		end, ok = parseWeekday(parts[1])
		if !ok {
			return 0, 0, fmt.Errorf("invalid %s: unknown weekday %q", key, parts[1])
		}
	}
	if start > end {
		return 0, 0, fmt.Errorf("invalid %s: range %s is reversed", key, raw)
	}
	return start, end, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	d, ok := weekdayNames[s[:3]]
	return d, ok
}
