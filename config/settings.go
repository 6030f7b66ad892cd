// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Consistency checks across related values

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	API   APIConfig
	Feeds FeedConfig
	Dev   DevConfig
	LLM   LLMConfig
	Log   LogConfig
}

// APIConfig describes how to reach the Clonr API.
type APIConfig struct {
	BaseURL      string
	SessionToken string
	CookieName   string
	Timeout      time.Duration
	RPS          float64
	Burst        int
}

// FeedConfig holds page sizes for the paginated feeds and the search delay.
type FeedConfig struct {
	ClonesLimit        int
	SidebarLimit       int
	SidebarConvoLimit  int
	ConversationsLimit int
	MessagesLimit      int
	SearchDebounce     time.Duration
}

// DevConfig configures the local development backend.
type DevConfig struct {
	Addr             string
	DBPath           string
	FreeMessageLimit int
}

// LLMConfig selects the provider the dev backend uses for clone replies.
// An empty Provider means replies are echoed.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// Supported log levels.
var logLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// New creates settings, loading values from environment variables.
// Returns an error if environment variables contain invalid values.
func New() (Settings, error) {
	timeout, err := getEnvDuration("CLONR_API_TIMEOUT", 30*time.Second)
	if err != nil {
		return Settings{}, err
	}
	rps, err := getEnvFloat64("CLONR_API_RPS", 0)
	if err != nil {
		return Settings{}, err
	}
	burst, err := getEnvInt("CLONR_API_BURST", 1)
	if err != nil {
		return Settings{}, err
	}

	feeds, err := loadFeeds()
	if err != nil {
		return Settings{}, err
	}

	freeLimit, err := getEnvInt("CLONR_FREE_MESSAGE_LIMIT", 20)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 512)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	level := strings.ToLower(getEnvString("CLONR_LOG_LEVEL", "info"))
	if !logLevels[level] {
		return Settings{}, fmt.Errorf("invalid value for CLONR_LOG_LEVEL: %q", level)
	}

	s := Settings{
		API: APIConfig{
			BaseURL:      strings.TrimRight(getEnvString("CLONR_API_URL", "http://localhost:8000"), "/"),
			SessionToken: os.Getenv("CLONR_SESSION_TOKEN"),
			CookieName:   getEnvString("CLONR_SESSION_COOKIE", "clonr_session"),
			Timeout:      timeout,
			RPS:          rps,
			Burst:        burst,
		},
		Feeds: feeds,
		Dev: DevConfig{
			Addr:             getEnvString("CLONR_DEV_ADDR", ":8000"),
			DBPath:           getEnvString("CLONR_DEV_DB", ".clonr/dev.db"),
			FreeMessageLimit: freeLimit,
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(os.Getenv("CLONR_LLM_PROVIDER")),
			Model:       os.Getenv("CLONR_LLM_MODEL"),
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Log: LogConfig{Level: level},
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustNew creates settings from the environment.
// Panics if environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// MaxPageLimit is the largest page size the Clonr API serves.
const MaxPageLimit = 100

func loadFeeds() (FeedConfig, error) {
	var f FeedConfig
	var err error
	limits := []struct {
		key      string
		def      int
		min, max int
		dst      *int
	}{
		{"CLONR_CLONES_LIMIT", 12, 1, MaxPageLimit, &f.ClonesLimit},
		{"CLONR_SIDEBAR_LIMIT", 10, 1, MaxPageLimit, &f.SidebarLimit},
		// 0 shows every conversation with each clone.
		{"CLONR_SIDEBAR_CONVO_LIMIT", 3, 0, MaxPageLimit, &f.SidebarConvoLimit},
		{"CLONR_CONVERSATIONS_LIMIT", 10, 1, MaxPageLimit, &f.ConversationsLimit},
		{"CLONR_MESSAGES_LIMIT", 20, 1, MaxPageLimit, &f.MessagesLimit},
	}
	for _, l := range limits {
		if *l.dst, err = getEnvInt(l.key, l.def); err != nil {
			return FeedConfig{}, err
		}
		if *l.dst < l.min || *l.dst > l.max {
			return FeedConfig{}, fmt.Errorf("invalid value for %s: must be between %d and %d", l.key, l.min, l.max)
		}
	}
	if f.SearchDebounce, err = getEnvDuration("CLONR_SEARCH_DEBOUNCE", 500*time.Millisecond); err != nil {
		return FeedConfig{}, err
	}
	return f, nil
}

func (s Settings) validate() error {
	if !strings.HasPrefix(s.API.BaseURL, "http://") && !strings.HasPrefix(s.API.BaseURL, "https://") {
		return fmt.Errorf("invalid value for CLONR_API_URL: %q: must be an http(s) URL", s.API.BaseURL)
	}
	if s.API.RPS < 0 {
		return fmt.Errorf("invalid value for CLONR_API_RPS: must not be negative")
	}
	if s.API.RPS > 0 && s.API.Burst < 1 {
		return fmt.Errorf("invalid value for CLONR_API_BURST: must be at least 1 when rate limiting")
	}
	if s.Dev.FreeMessageLimit < 0 {
		return fmt.Errorf("invalid value for CLONR_FREE_MESSAGE_LIMIT: must not be negative")
	}
	return nil
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for %s: %q: must not be negative", key, val)
	}
	return d, nil
}
