package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"basket-booking/internal/sheets"
	"basket-booking/internal/util"
)

const (
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

type Config struct {
	StoreBackend             string
	SpreadsheetID            string
	GoogleServiceAccountJSON string

	AdminPass     string
	SigningSecret string

	HTTPAddr      string
	BasePublicURL string
	CSRFSecure    bool

	CacheTTL       time.Duration
	FamilyCacheTTL time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Serialize      bool

	ChannelMiniURL   string
	ChannelGrandeURL string

	TelegramToken string
	AdminTGIDs    map[int64]bool
	NotifyChatID  int64

	ArchiveAccountID       string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
	ArchiveBucket          string
	ArchivePublicBaseURL   string

	LogLevel  string
	LogFormat string
	Location  *time.Location
}

// Load reads a .env file when present and then the environment.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the process environment. Every
// problem found is reported in one joined error.
func FromEnv() (Config, error) {
	var (
		c    Config
		errs []error
	)

	c.StoreBackend = strings.ToLower(str("STORE_BACKEND", BackendSheets))
	c.SpreadsheetID = str("SHEETS_SPREADSHEET_ID", "")
	if c.SpreadsheetID == "" {
		c.SpreadsheetID = sheets.SpreadsheetIDFromURL(str("SHEETS_SPREADSHEET_URL", ""))
	}
	c.GoogleServiceAccountJSON = str("GOOGLE_SERVICE_ACCOUNT_JSON", "")

	c.AdminPass = str("ADMIN_PASS", "")
	c.SigningSecret = str("SIGNING_SECRET", "")
	if c.SigningSecret == "" && c.AdminPass != "" {
		c.SigningSecret = util.HMACSHA256Hex(c.AdminPass, "basket-booking:signing")
	}

	c.HTTPAddr = str("HTTP_ADDR", ":8080")
	c.BasePublicURL = strings.TrimRight(str("BASE_PUBLIC_URL", ""), "/")
	c.CSRFSecure = boolean("CSRF_SECURE", true, &errs)

	c.CacheTTL = duration("CACHE_TTL", 60*time.Second, &errs)
	c.FamilyCacheTTL = duration("FAMILY_CACHE_TTL", 300*time.Second, &errs)
	c.RetryAttempts = integer("RETRY_ATTEMPTS", 5, &errs)
	c.RetryBaseDelay = duration("RETRY_BASE_DELAY", 1500*time.Millisecond, &errs)
	c.Serialize = boolean("ADMISSION_SERIALIZE", false, &errs)

	c.ChannelMiniURL = str("CHANNEL_MINI_URL", "")
	c.ChannelGrandeURL = str("CHANNEL_GRANDE_URL", "")

	c.TelegramToken = str("TELEGRAM_BOT_TOKEN", "")
	c.AdminTGIDs = parseAdminIDs(os.Getenv("ADMIN_TG_IDS"))
	if raw := str("TELEGRAM_NOTIFY_CHAT_ID", ""); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_NOTIFY_CHAT_ID: %w", err))
		}
		c.NotifyChatID = id
	}

	c.ArchiveAccountID = str("ARCHIVE_ACCOUNT_ID", "")
	c.ArchiveAccessKeyID = str("ARCHIVE_ACCESS_KEY_ID", "")
	c.ArchiveSecretAccessKey = str("ARCHIVE_SECRET_ACCESS_KEY", "")
	c.ArchiveBucket = str("ARCHIVE_BUCKET", "")
	c.ArchivePublicBaseURL = str("ARCHIVE_PUBLIC_BASE_URL", "")

	c.LogLevel = strings.ToLower(str("LOG_LEVEL", "info"))
	c.LogFormat = strings.ToLower(str("LOG_FORMAT", "text"))

	tz := str("TIMEZONE", "Europe/Madrid")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
		loc = time.UTC
	}
	c.Location = loc

	errs = append(errs, c.validate()...)
	return c, errors.Join(errs...)
}

func (c Config) validate() []error {
	var errs []error
	switch c.StoreBackend {
	case BackendSheets:
		if c.SpreadsheetID == "" {
			errs = append(errs, errors.New("SHEETS_SPREADSHEET_ID or SHEETS_SPREADSHEET_URL is required"))
		}
		if c.GoogleServiceAccountJSON == "" {
			errs = append(errs, errors.New("GOOGLE_SERVICE_ACCOUNT_JSON is empty"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend))
	}
	if c.AdminPass == "" {
		errs = append(errs, errors.New("ADMIN_PASS is empty"))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS: must not be negative, got %d", c.RetryAttempts))
	}
	if c.CacheTTL <= 0 || c.FamilyCacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL and FAMILY_CACHE_TTL must be positive"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unknown format %q", c.LogFormat))
	}
	if c.archivePartial() {
		errs = append(errs, errors.New("ARCHIVE_*: set all five variables or none"))
	}
	return errs
}

// ArchiveEnabled reports whether confirmation archiving is configured.
func (c Config) ArchiveEnabled() bool {
	return c.ArchiveAccountID != "" && c.ArchiveAccessKeyID != "" && c.ArchiveSecretAccessKey != "" &&
		c.ArchiveBucket != "" && c.ArchivePublicBaseURL != ""
}

func (c Config) archivePartial() bool {
	set := c.ArchiveAccountID != "" || c.ArchiveAccessKeyID != "" || c.ArchiveSecretAccessKey != "" ||
		c.ArchiveBucket != "" || c.ArchivePublicBaseURL != ""
	return set && !c.ArchiveEnabled()
}

func (c Config) TelegramEnabled() bool { return c.TelegramToken != "" }

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration, errs *[]error) time.Duration {
	raw := str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// Bare numbers are seconds.
		if n, nerr := strconv.ParseFloat(raw, 64); nerr == nil {
			return time.Duration(n * float64(time.Second))
		}
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func integer(key string, def int, errs *[]error) int {
	raw := str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func boolean(key string, def bool, errs *[]error) bool {
	raw := str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
