package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Portal    PortalConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Upload    UploadConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // PORT, then TCEES_PORT; default: 5001
	Mode string // "debug", "release", "test"; default: "release"

	// Workers is the number of scrapes allowed in flight at once. Each one
	// owns a browser session for its whole duration.
	Workers int // default: 2

	// RequestTimeout bounds a whole request, retries included. When it
	// expires the browser session is killed.
	RequestTimeout time.Duration // default: 120s
}

// BrowserConfig controls how browser sessions are started.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in containers).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path. Read from
	// TCEES_BROWSER_BIN, CHROME_BIN, GOOGLE_CHROME_BIN or CHROMIUM_BIN.
	BrowserBin string

	// CDPURL connects to an already running browser (DevTools endpoint)
	// instead of launching one per session.
	CDPURL string

	// Proxy is the proxy server handed to the browser.
	Proxy string

	// DisableProxy forces a direct connection (--no-proxy-server).
	DisableProxy bool // default: false

	// Stealth injects anti-automation-detection JS into every page.
	Stealth bool // default: false

	// ReuseSessions keeps healthy sessions around for the next request
	// instead of killing them after every scrape.
	ReuseSessions bool // default: false

	// MaxSessionUses retires a reused session after this many scrapes.
	MaxSessionUses int // default: 20

	// BlockedResourceTypes lists resource types the page never loads.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// ScraperConfig controls the orchestration of a single fetch.
type ScraperConfig struct {
	// NavigationTimeout is the max time for page navigation alone.
	NavigationTimeout time.Duration // default: 25s

	// ElementWait is the budget for a required element to show up.
	ElementWait time.Duration // default: 15s

	// PollInterval is the delay between two probes of the page.
	PollInterval time.Duration // default: 2s

	// SettleTimeout is how long the conformity result may take to settle.
	SettleTimeout time.Duration // default: 55s

	// QuickSettleTimeout replaces SettleTimeout for quick requests.
	QuickSettleTimeout time.Duration // default: 30s

	// Retries is the number of full re-attempts after a transient failure.
	Retries int // default: 2

	// InitialBackoff is the delay before the first retry; it doubles after
	// every attempt up to MaxBackoff.
	InitialBackoff time.Duration // default: 500ms
	MaxBackoff     time.Duration // default: 8s

	// Jitter randomises each backoff between 50% and 150%.
	Jitter bool // default: true

	// SaveDebugHTML writes the final page HTML of every fetch to ArtifactDir.
	SaveDebugHTML bool // default: false

	// ArtifactDir receives debug HTML and failure screenshots. Empty
	// disables screenshots.
	ArtifactDir string
}

// PortalConfig locates the TCE-ES pages.
type PortalConfig struct {
	// ConformityURL is the PDF conformity checker.
	ConformityURL string // default: "https://conformidadepdf.tcees.tc.br/"

	// RecordURL is the record lookup template; {id} is replaced by the
	// target identifier and {name} by the matching request parameter.
	RecordURL string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string

	// Secret is the shared secret expected in X-API-Secret.
	Secret string
}

// Keys returns every accepted credential.
func (a AuthConfig) Keys() []string {
	keys := make([]string, 0, len(a.APIKeys)+1)
	keys = append(keys, a.APIKeys...)
	if a.Secret != "" {
		keys = append(keys, a.Secret)
	}
	return keys
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the validated-record cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached records.
	MaxEntries int // default: 500
}

// UploadConfig controls PDF uploads.
type UploadConfig struct {
	// MaxFileMB is the largest accepted upload.
	MaxFileMB int // default: 20

	// TempDir holds uploads while they are being checked.
	TempDir string // default: os.TempDir()

	// MaxBatchFiles caps the number of files in one batch.
	MaxBatchFiles int // default: 3
}

// WebhookConfig controls batch completion callbacks.
type WebhookConfig struct {
	// Secret signs webhook bodies (X-TCEES-Signature). Empty disables signing.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           envOr("TCEES_HOST", "0.0.0.0"),
			Port:           envIntOr("PORT", envIntOr("TCEES_PORT", 5001)),
			Mode:           envOr("TCEES_MODE", "release"),
			Workers:        envIntOr("TCEES_WORKERS", 2),
			RequestTimeout: envDurationOr("TCEES_REQUEST_TIMEOUT", 120*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("TCEES_HEADLESS", true),
			NoSandbox:      envBoolOr("TCEES_NO_SANDBOX", true),
			BrowserBin:     firstEnv("TCEES_BROWSER_BIN", "CHROME_BIN", "GOOGLE_CHROME_BIN", "CHROMIUM_BIN"),
			CDPURL:         os.Getenv("TCEES_CDP_URL"),
			Proxy:          os.Getenv("TCEES_PROXY"),
			DisableProxy:   envBoolOr("TCEES_DISABLE_CHROME_PROXY", false),
			Stealth:        envBoolOr("TCEES_STEALTH", false),
			ReuseSessions:  envBoolOr("TCEES_REUSE_SESSIONS", false),
			MaxSessionUses: envIntOr("TCEES_MAX_SESSION_USES", 20),
			BlockedResourceTypes: envSliceOr("TCEES_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Scraper: ScraperConfig{
			NavigationTimeout:  envDurationOr("TCEES_NAV_TIMEOUT", 25*time.Second),
			ElementWait:        envDurationOr("TCEES_ELEMENT_WAIT", 15*time.Second),
			PollInterval:       envDurationOr("TCEES_POLL_INTERVAL", 2*time.Second),
			SettleTimeout:      envDurationOr("TCEES_SETTLE_TIMEOUT", 55*time.Second),
			QuickSettleTimeout: envDurationOr("TCEES_QUICK_SETTLE_TIMEOUT", 30*time.Second),
			Retries:            envIntOr("TCEES_RETRIES", 2),
			InitialBackoff:     envDurationOr("TCEES_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:         envDurationOr("TCEES_MAX_BACKOFF", 8*time.Second),
			Jitter:             envBoolOr("TCEES_BACKOFF_JITTER", true),
			SaveDebugHTML:      os.Getenv("TCEES_SAVE_DEBUG_HTML") == "1",
			ArtifactDir:        os.Getenv("TCEES_ARTIFACT_DIR"),
		},
		Portal: PortalConfig{
			ConformityURL: envOr("TCEES_URL", "https://conformidadepdf.tcees.tc.br/"),
			RecordURL:     envOr("TCEES_RECORD_URL", "https://www.tcees.tc.br/consultas/processo/{id}"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("TCEES_AUTH_ENABLED", true),
			APIKeys: envSliceOr("TCEES_API_KEYS", nil),
			Secret:  os.Getenv("TCEES_API_SECRET"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("TCEES_RATE_RPS", 1.0),
			Burst:             envIntOr("TCEES_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("TCEES_CACHE_MAX_ENTRIES", 500),
		},
		Upload: UploadConfig{
			MaxFileMB:     envIntOr("TCEES_MAX_FILE_MB", 20),
			TempDir:       envOr("TCEES_TEMP_DIR", os.TempDir()),
			MaxBatchFiles: envIntOr("TCEES_MAX_BATCH_FILES", 3),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("TCEES_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("TCEES_LOG_LEVEL", "info"),
			Format: envOr("TCEES_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
