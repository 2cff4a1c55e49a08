// Package browser owns the Chromium lifecycle and per-task sessions:
// navigation, readiness waits, and popup dismissal.
package browser

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/models"
)

// Browser manages the global browser process and the page pool.
// It is safe for concurrent use; each task borrows one page at a time.
type Browser struct {
	browser  *rod.Browser
	pagePool rod.Pool[rod.Page]
	cfg      config.BrowserConfig
	memory   *popupMemory
}

// New launches a headless browser and initialises the reusable page pool
// sized to the session limit.
func New(cfg config.BrowserConfig, maxSessions int) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeBrowserCrash,
			"failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewCaptureError(models.ErrCodeBrowserCrash,
			"failed to connect to browser", err)
	}

	if maxSessions < 1 {
		maxSessions = 1
	}
	pool := rod.NewPagePool(maxSessions)
	slog.Info("page pool created", "maxSessions", maxSessions)

	return &Browser{
		browser:  b,
		pagePool: pool,
		cfg:      cfg,
		memory:   newPopupMemory(24 * time.Hour),
	}, nil
}

// acquirePage borrows a tab from the pool, creating one on demand with
// the configured fixed viewport.
func (b *Browser) acquirePage() (*rod.Page, error) {
	page, err := b.pagePool.Get(func() (*rod.Page, error) {
		p, err := b.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, err
		}
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.ViewportWidth,
			Height:            b.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			_ = p.Close()
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeBrowserCrash,
			"failed to acquire page from pool", err)
	}
	return page, nil
}

// Close drains the page pool and kills the browser process.
// Call this on shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down: draining page pool")
	b.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	b.browser.MustClose()
	b.memory.Stop()
	slog.Info("browser shutdown complete")
}
