package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/bookharvest/internal/config"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod.
// Pages are fetched one at a time; a single tab is reused.
type BrowserFetcher struct {
	browser  *rod.Browser
	page     *rod.Page
	cfg      *config.Config
	stealth    bool
	proxyMgr   *ProxyManager
	userAgents *userAgentRotator
	logger     *slog.Logger
	mu         sync.Mutex
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithStealth applies go-rod/stealth evasions to the browsing tab.
func WithStealth() BrowserOption {
	return func(bf *BrowserFetcher) { bf.stealth = true }
}

// WithBrowserProxy sets the proxy manager used at launch. pm may be nil.
func WithBrowserProxy(pm *ProxyManager) BrowserOption {
	return func(bf *BrowserFetcher) { bf.proxyMgr = pm }
}

// NewBrowserFetcher launches Chromium and opens the browsing tab.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:        cfg,
		userAgents: newUserAgentRotator(cfg.Engine.UserAgents),
		logger:     logger.With("component", "browser_fetcher"),
	}
	for _, opt := range opts {
		opt(bf)
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	if proxyURL := bf.proxyMgr.Next(); proxyURL != nil {
		l = l.Proxy(proxyURL.String())
	}

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	if bf.stealth {
		bf.page, err = stealth.Page(browser)
	} else {
		bf.page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	bf.logger.Info("browser fetcher ready", "stealth", bf.stealth)
	return bf, nil
}

// Fetch navigates to a URL and returns the rendered page content.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	timeout := bf.cfg.Engine.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	start := time.Now()
	page := bf.page.Context(ctx).Timeout(timeout)

	ua := bf.userAgentFor(req)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		bf.logger.Warn("failed to set user agent", "error", err)
	}

	if err := page.Navigate(req.URLString()); err != nil {
		return nil, bf.fetchError(ctx, req, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, bf.fetchError(ctx, req, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, bf.fetchError(ctx, req, err)
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	// Rod does not expose the document status code.
	resp := types.NewBrowserResponse(req, 200, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)
	return resp, nil
}

// userAgentFor returns the request's own User-Agent header, or the next one
// from the configured rotation.
func (bf *BrowserFetcher) userAgentFor(req *types.Request) string {
	if ua := req.Headers.Get("User-Agent"); ua != "" {
		return ua
	}
	return bf.userAgents.next()
}

func (bf *BrowserFetcher) fetchError(ctx context.Context, req *types.Request, err error) error {
	timeout := ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
	return &types.FetchError{
		URL:       req.URLString(),
		Err:       err,
		Retryable: ctx.Err() == nil,
		Timeout:   timeout,
	}
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	if bf.page != nil {
		_ = bf.page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}
