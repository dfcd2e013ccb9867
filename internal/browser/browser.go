package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/catalog-enricher/internal/parser"
	"github.com/maltedev/catalog-enricher/internal/ratelimit"
	"github.com/maltedev/catalog-enricher/internal/scraper"
)

// Browser owns the playwright driver and one chromium process. Lookups get
// their own BrowserContext through NewSession.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-IN,en;q=0.9",
		TimezoneID:     "Asia/Kolkata",
		Locale:         "en-IN",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// NewSession opens an isolated BrowserContext with a single page. Cookies and
// storage never leak between sessions.
func (b *Browser) NewSession(ctx context.Context) (scraper.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(b.opts.ExtraHeaders)+1)
	for k, v := range b.opts.ExtraHeaders {
		headers[k] = v
	}
	if b.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = b.opts.AcceptLanguage
	}

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(b.opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(b.opts.Locale),
		TimezoneId:        playwright.String(b.opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &Session{
		bctx:    bctx,
		page:    page,
		timeout: b.opts.Timeout,
		logger:  b.logger,
	}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Session is a scraper.Session backed by one playwright BrowserContext.
type Session struct {
	bctx    playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
	logger  *slog.Logger
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if err := s.checkBotProtection(ctx); err != nil {
		return err
	}

	s.humanize(ctx)
	return nil
}

func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	loc := s.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("waiting for %s: %w", selector, err)
	}

	if err := loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return nil
}

func (s *Session) ClearInput(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	loc := s.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("waiting for %s: %w", selector, err)
	}

	if err := loc.Fill(""); err != nil {
		return fmt.Errorf("clearing %s: %w", selector, err)
	}
	return nil
}

func (s *Session) TypeKey(ctx context.Context, selector, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().PressSequentially(key)
}

func (s *Session) FocusLatest(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	pages := s.bctx.Pages()
	if len(pages) == 0 {
		return false, errors.New("browser context has no pages")
	}

	latest := pages[len(pages)-1]
	if latest == s.page {
		return false, nil
	}

	if err := latest.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		return false, fmt.Errorf("waiting for new tab: %w", err)
	}
	latest.SetDefaultTimeout(float64(s.timeout.Milliseconds()))
	s.page = latest
	return true, nil
}

// Snapshot waits for the detail page to render and captures its DOM for the
// extractor.
func (s *Session) Snapshot(ctx context.Context) (parser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		return nil, fmt.Errorf("waiting for detail page: %w", err)
	}

	if err := s.page.Locator("#productTitle, #title").First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(s.timeout.Milliseconds())),
	}); err != nil {
		s.logger.Debug("title element not found on detail page", "url", s.page.URL(), "error", err)
	}

	content, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	if verdict := DetectBotCheck(content); verdict == BotCheckCaptcha {
		return nil, scraper.ErrBlocked
	}

	return parser.NewDocument(content, s.page.URL())
}

// Close tears down the context and every page opened in it.
func (s *Session) Close() error {
	if s.bctx == nil {
		return nil
	}
	if err := s.bctx.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}

type BotCheck int

const (
	BotCheckNone BotCheck = iota
	// BotCheckInterstitial is the "continue shopping" page that goes away
	// after a click.
	BotCheckInterstitial
	BotCheckCaptcha
)

var (
	captchaMarkers = []string{
		"/errors/validateCaptcha",
		"Type the characters you see in this image",
		"Enter the characters you see below",
	}
	interstitialMarkers = []string{
		"Click the button below to continue shopping",
	}
	continueButtons = []string{
		`button:has-text("Continue shopping")`,
		`input[type="submit"][value*="Continue"]`,
		`.a-button-primary`,
		`button.a-button-text`,
	}
)

// DetectBotCheck classifies a rendered page.
func DetectBotCheck(content string) BotCheck {
	for _, m := range captchaMarkers {
		if strings.Contains(content, m) {
			return BotCheckCaptcha
		}
	}
	for _, m := range interstitialMarkers {
		if strings.Contains(content, m) {
			return BotCheckInterstitial
		}
	}
	return BotCheckNone
}

func (s *Session) checkBotProtection(ctx context.Context) error {
	content, err := s.page.Content()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}

	switch DetectBotCheck(content) {
	case BotCheckNone:
		return nil
	case BotCheckCaptcha:
		s.logger.Warn("captcha page detected", "url", s.page.URL())
		return scraper.ErrBlocked
	}

	s.logger.Info("bot protection detected, attempting bypass")

	for _, selector := range continueButtons {
		button := s.page.Locator(selector).First()

		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		if err := button.Click(); err != nil {
			s.logger.Error("failed to click button", "selector", selector, "error", err)
			continue
		}

		if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		}); err != nil {
			continue
		}

		newContent, err := s.page.Content()
		if err == nil && DetectBotCheck(newContent) == BotCheckNone {
			s.logger.Info("bypassed bot protection", "selector", selector)
			return nil
		}
	}

	return fmt.Errorf("%w: could not get past interstitial", scraper.ErrBlocked)
}

// humanize moves the mouse and scrolls a little. Failures are ignored.
func (s *Session) humanize(ctx context.Context) {
	for i := 0; i < 3; i++ {
		x := float64(100 + i*200)
		y := float64(100 + i*150)
		s.page.Mouse().Move(x, y)
		if err := ratelimit.Sleep(ctx, time.Duration(200+i*100)*time.Millisecond); err != nil {
			return
		}
	}

	s.page.Evaluate(`window.scrollBy(0, Math.random() * 300)`)
}
