package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// loginPage is the page capability plus keyboard input used during login.
type loginPage interface {
	crawler.Page
	Type(ctx context.Context, selector, text string) error
}

// browserHandle is one launched browser with one tab.
type browserHandle interface {
	Page() loginPage
	// Bind returns a context that drives the tab and ends when parent does.
	Bind(parent context.Context) (context.Context, context.CancelFunc)
	Alive() bool
	Close()
}

type launcher func(ctx context.Context, cfg Config) (browserHandle, error)

type chromeHandle struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	page        *chromePage
}

func launchChrome(ctx context.Context, cfg Config) (browserHandle, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	h := &chromeHandle{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		page:        &chromePage{navTimeout: cfg.NavTimeout},
	}

	setupCtx, cancel := h.Bind(ctx)
	defer cancel()
	if err := chromedp.Run(setupCtx, stealthSetup(cfg)); err != nil {
		h.Close()
		return nil, fmt.Errorf("browser setup: %w", err)
	}
	return h, nil
}

func stealthSetup(cfg Config) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := network.SetBlockedURLs(blockedURLs).Do(ctx); err != nil {
			return fmt.Errorf("set blocked urls: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx); err != nil {
			return fmt.Errorf("inject webdriver override: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(viewportWidth, viewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (h *chromeHandle) Page() loginPage { return h.page }

func (h *chromeHandle) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(h.tabCtx)
	stop := forwardCancel(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (h *chromeHandle) Alive() bool {
	return h.tabCtx.Err() == nil
}

func (h *chromeHandle) Close() {
	h.tabCancel()
	h.allocCancel()
}

// forwardCancel cancels a tab-derived context when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
