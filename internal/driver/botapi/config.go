package botapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"

	defaultRetryThreshold = 60 * time.Second
	defaultRetryCount     = 3
	pollGrace             = 10 * time.Second
)

// Config describes one Bot API connection.
type Config struct {
	// Token is the bot token issued by BotFather.
	Token string
	// BaseURL overrides the API host; only scheme and host are used.
	BaseURL string
	// TestEnvironment routes calls to the test data center.
	TestEnvironment bool
	// HTTPClient is used for every request. Requests carry their own deadlines,
	// so a client-level Timeout shorter than the poll timeout breaks long polling.
	HTTPClient *http.Client
	// RetryThreshold is the longest "retry after" delay retried automatically;
	// zero means 60s.
	RetryThreshold time.Duration
	// RetryCount bounds automatic retries of rate-limited calls; zero means 3.
	RetryCount int
	// DisableRetry returns rate-limited responses to the caller without
	// retrying. RetryThreshold and RetryCount are then ignored.
	DisableRetry bool
}

// normalize validates cfg and fills defaults.
func (cfg Config) normalize() (Config, error) {
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return Config{}, fmt.Errorf("token is required")
	}
	if strings.ContainsAny(cfg.Token, "/ ?#") {
		return Config{}, fmt.Errorf("token contains invalid characters")
	}

	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return Config{}, err
	}
	cfg.BaseURL = baseURL

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.RetryThreshold < 0 {
		return Config{}, fmt.Errorf("parse retry_threshold: must be >= 0")
	}
	if cfg.RetryThreshold == 0 {
		cfg.RetryThreshold = defaultRetryThreshold
	}
	if cfg.RetryCount < 0 {
		return Config{}, fmt.Errorf("parse retry_count: must be >= 0")
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = defaultRetryCount
	}

	return cfg, nil
}

// normalizeBaseURL keeps only scheme and host, dropping path, query and fragment.
func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("parse base_url: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("parse base_url: missing host")
	}

	return parsed.Scheme + "://" + parsed.Host, nil
}

// methodURL builds the endpoint for one API method.
func (cfg Config) methodURL(method string) string {
	if cfg.TestEnvironment {
		return fmt.Sprintf("%s/bot%s/test/%s", cfg.BaseURL, cfg.Token, method)
	}

	return fmt.Sprintf("%s/bot%s/%s", cfg.BaseURL, cfg.Token, method)
}
