package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"magicbag/internal/common"

	"github.com/joho/godotenv"
)

// Config holds all process configuration. It is built once in main and
// handed to constructors.
type Config struct {
	// Database
	DBName      string
	DatabaseURL string

	// Chat platform
	DiscordToken  string
	CommandPrefix string

	// Marketplace
	MarketplaceEmail string
	MarketplaceURL   string
	Credentials      MarketplaceCredentials
	SearchRadiusKM   float64
	PageSize         int
	PageTimeout      time.Duration
	FetchTimeout     time.Duration
	RatePerSecond    float64

	// Geocoding
	NominatimURL string
	UserAgent    string

	// Redis; empty address selects the in-memory cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Polling
	PollInterval    time.Duration
	DedupeLocations bool

	// HTTP surface
	HTTPAddr string
}

// MarketplaceCredentials are pre-issued marketplace tokens. When AccessToken
// is set the email handshake is skipped.
type MarketplaceCredentials struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Cookie       string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CommandPrefix:  "!",
		MarketplaceURL: "https://apptoogoodtogo.com/api/",
		SearchRadiusKM: 5,
		PageSize:       400,
		PageTimeout:    15 * time.Second,
		FetchTimeout:   2 * time.Minute,
		RatePerSecond:  1,
		NominatimURL:   "https://nominatim.openstreetmap.org",
		UserAgent:      "magicbag/1.0",
		PollInterval:   5 * time.Minute,
		HTTPAddr:       ":8080",
	}
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is not an error.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Every missing required variable is
// reported in a single error wrapping common.ErrConfiguration.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	var missing, invalid []string

	required := func(name string) string {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	cfg.DBName = required("DB_NAME")
	cfg.DiscordToken = required("DISCORD_TOKEN")
	cfg.MarketplaceEmail = required("TGTG_EMAIL")

	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	} else if cfg.DBName != "" {
		cfg.DatabaseURL = buildDatabaseURL(getenv, cfg.DBName)
	}

	cfg.Credentials = MarketplaceCredentials{
		AccessToken:  getenv("TGTG_ACCESS_TOKEN"),
		RefreshToken: getenv("TGTG_REFRESH_TOKEN"),
		UserID:       getenv("TGTG_USER_ID"),
		Cookie:       getenv("TGTG_COOKIE"),
	}
	if v := getenv("TGTG_API_URL"); v != "" {
		cfg.MarketplaceURL = v
	}
	if v := getenv("NOMINATIM_URL"); v != "" {
		cfg.NominatimURL = v
	}
	if v := getenv("COMMAND_PREFIX"); v != "" {
		cfg.CommandPrefix = v
	}
	if v := getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	cfg.RedisAddr = getenv("REDIS_ADDR")
	cfg.RedisPassword = getenv("REDIS_PASSWORD")

	parseInt := func(name string, dst *int) {
		if v := getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				invalid = append(invalid, name)
				return
			}
			*dst = n
		}
	}
	parseFloat := func(name string, dst *float64) {
		if v := getenv(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				invalid = append(invalid, name)
				return
			}
			*dst = f
		}
	}
	parseDuration := func(name string, dst *time.Duration) {
		if v := getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				invalid = append(invalid, name)
				return
			}
			*dst = d
		}
	}

	parseInt("REDIS_DB", &cfg.RedisDB)
	parseInt("PAGE_SIZE", &cfg.PageSize)
	parseFloat("SEARCH_RADIUS_KM", &cfg.SearchRadiusKM)
	parseFloat("TGTG_RATE_PER_SECOND", &cfg.RatePerSecond)
	parseDuration("PAGE_TIMEOUT", &cfg.PageTimeout)
	parseDuration("FETCH_TIMEOUT", &cfg.FetchTimeout)
	parseDuration("POLL_INTERVAL", &cfg.PollInterval)

	if v := getenv("LOCATION_DEDUPE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, "LOCATION_DEDUPE")
		} else {
			cfg.DedupeLocations = b
		}
	}
	if cfg.PageSize == 0 {
		invalid = append(invalid, "PAGE_SIZE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required environment variables: %s",
			common.ErrConfiguration, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: invalid values for: %s",
			common.ErrConfiguration, strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func buildDatabaseURL(getenv func(string) string, dbName string) string {
	host := getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	u := &url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + port,
		Path:     "/" + dbName,
		RawQuery: "sslmode=disable",
	}
	if user := getenv("DB_USER"); user != "" {
		if pw := getenv("DB_PASSWORD"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	if mode := getenv("DB_SSLMODE"); mode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(mode)
	}
	return u.String()
}
