package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser  BrowserConfig
	Capture  CaptureConfig
	Download DownloadConfig
	Robots   RobotsConfig
	Webhook  WebhookConfig
	Log      LogConfig
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL applied to the whole browser.
	Proxy string

	// ViewportWidth/ViewportHeight fix the page viewport so tiles have a
	// stable geometry across the scroll pass.
	ViewportWidth  int // default: 1920
	ViewportHeight int // default: 1080

	// BlockAds drops requests to known ad/tracking hosts. Page images are
	// never blocked; the capture needs them.
	BlockAds bool // default: true
}

// CaptureConfig controls the per-page capture pipeline.
type CaptureConfig struct {
	// MaxConcurrentSessions bounds how many page tasks run at once.
	MaxConcurrentSessions int // default: 3

	// NavigationTimeout is the hard deadline for reaching network idle.
	// Expiry is recoverable: the task proceeds with whatever loaded.
	NavigationTimeout time.Duration // default: 60s

	// StepDelay is the wait after each scroll step when the network does
	// not go idle sooner.
	StepDelay time.Duration // default: 500ms

	// ScrollStallThreshold ends the scroll pass after this many
	// consecutive steps with unchanged scroll-height.
	ScrollStallThreshold int // default: 2

	// MaxScrollSteps is the hard ceiling against infinite lazy content.
	MaxScrollSteps int // default: 40

	// MaxExpansionClicks bounds the expansion pass.
	MaxExpansionClicks int // default: 50

	// ScreenshotQuality is the JPEG quality of the composite (1-100).
	ScreenshotQuality int // default: 75

	// MaxCompositeHeight caps the stitched image; excess rows are
	// dropped and the result is degraded, not failed.
	MaxCompositeHeight int // default: 15000

	// MaxCompositeWidth downscales wider composites, preserving aspect.
	// Zero disables.
	MaxCompositeWidth int // default: 1280

	// TaskAttempts is how many times a failing task is run with fresh
	// state before its failure is final.
	TaskAttempts int // default: 2
}

// DownloadConfig controls the asset downloader.
type DownloadConfig struct {
	// Concurrency is the fixed worker limit of the per-task fetch pool.
	Concurrency int // default: 4

	// Timeout is the per-item fetch deadline.
	Timeout time.Duration // default: 30s

	// MaxBytes caps a single asset body.
	MaxBytes int64 // default: 25 MiB

	// PerHostRPS throttles fetches per target host.
	PerHostRPS float64 // default: 8

	// PerHostBurst is the limiter burst per host.
	PerHostBurst int // default: 4
}

// RobotsConfig controls the robots.txt pre-check.
type RobotsConfig struct {
	// Respect skips pages whose URL is disallowed for our user agent.
	Respect bool // default: false

	// UserAgent is the token matched against robots.txt groups.
	UserAgent string // default: "pagesnap"
}

// WebhookConfig controls the batch-completion notification.
type WebhookConfig struct {
	URL    string // empty disables delivery
	Secret string // HMAC-SHA256 signing key, optional
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:       envBoolOr("PAGESNAP_HEADLESS", true),
			NoSandbox:      envBoolOr("PAGESNAP_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("PAGESNAP_BROWSER_BIN"),
			Proxy:          os.Getenv("PAGESNAP_PROXY"),
			ViewportWidth:  envIntOr("PAGESNAP_VIEWPORT_WIDTH", 1920),
			ViewportHeight: envIntOr("PAGESNAP_VIEWPORT_HEIGHT", 1080),
			BlockAds:       envBoolOr("PAGESNAP_BLOCK_ADS", true),
		},
		Capture: CaptureConfig{
			MaxConcurrentSessions: envIntOr("PAGESNAP_MAX_SESSIONS", 3),
			NavigationTimeout:     envDurationOr("PAGESNAP_NAV_TIMEOUT", 60*time.Second),
			StepDelay:             envDurationOr("PAGESNAP_STEP_DELAY", 500*time.Millisecond),
			ScrollStallThreshold:  envIntOr("PAGESNAP_SCROLL_STALL", 2),
			MaxScrollSteps:        envIntOr("PAGESNAP_MAX_SCROLL_STEPS", 40),
			MaxExpansionClicks:    envIntOr("PAGESNAP_MAX_EXPANSION_CLICKS", 50),
			ScreenshotQuality:     envIntOr("PAGESNAP_SCREENSHOT_QUALITY", 75),
			MaxCompositeHeight:    envIntOr("PAGESNAP_MAX_COMPOSITE_HEIGHT", 15000),
			MaxCompositeWidth:     envIntOr("PAGESNAP_MAX_COMPOSITE_WIDTH", 1280),
			TaskAttempts:          envIntOr("PAGESNAP_TASK_ATTEMPTS", 2),
		},
		Download: DownloadConfig{
			Concurrency:  envIntOr("PAGESNAP_DOWNLOAD_CONCURRENCY", 4),
			Timeout:      envDurationOr("PAGESNAP_DOWNLOAD_TIMEOUT", 30*time.Second),
			MaxBytes:     envInt64Or("PAGESNAP_DOWNLOAD_MAX_BYTES", 25*1024*1024),
			PerHostRPS:   envFloatOr("PAGESNAP_DOWNLOAD_HOST_RPS", 8.0),
			PerHostBurst: envIntOr("PAGESNAP_DOWNLOAD_HOST_BURST", 4),
		},
		Robots: RobotsConfig{
			Respect:   envBoolOr("PAGESNAP_RESPECT_ROBOTS", false),
			UserAgent: envOr("PAGESNAP_ROBOTS_AGENT", "pagesnap"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("PAGESNAP_WEBHOOK_URL"),
			Secret: os.Getenv("PAGESNAP_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("PAGESNAP_LOG_LEVEL", "info"),
			Format: envOr("PAGESNAP_LOG_FORMAT", "json"),
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

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
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
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
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
