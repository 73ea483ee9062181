// Package session owns the single authenticated browser used for LinkedIn
// extraction. A Manager lazily launches and logs in a browser, caches it,
// and serializes every use of its one page.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

const screenshotTimeout = 10 * time.Second

// Manager implements crawler.Session over chromedp.
type Manager struct {
	cfg    Config
	blobs  crawler.BlobStore
	logger *zap.Logger
	launch launcher
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	pageMu sync.Mutex
	mu     sync.Mutex
	handle browserHandle
}

var _ crawler.Session = (*Manager)(nil)

// New constructs a Manager. Nothing is launched until first use.
func New(cfg Config, blobs crawler.BlobStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg.withDefaults(),
		blobs:  blobs,
		logger: logger,
		launch: launchChrome,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Open launches and authenticates the browser unless a live one is cached.
func (m *Manager) Open(ctx context.Context) error {
	_, err := m.acquire(ctx)
	return err
}

// IsValid reports whether a live authenticated browser is cached.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil && m.handle.Alive()
}

// Invalidate drops the cached browser so the next use logs in again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		m.logger.Info("invalidating browser session")
		m.handle.Close()
		m.handle = nil
	}
}

// Close tears the browser down unless KeepOpen is set.
func (m *Manager) Close() error {
	if m.cfg.KeepOpen {
		m.logger.Info("leaving browser open for debugging")
		return nil
	}
	m.Invalidate()
	return nil
}

// WithPage runs fn with exclusive use of the session page. The page is reset
// to a blank document first so an abandoned earlier attempt cannot leak state.
func (m *Manager) WithPage(ctx context.Context, fn func(ctx context.Context, page crawler.Page) error) error {
	m.pageMu.Lock()
	defer m.pageMu.Unlock()

	h, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	pageCtx, release := h.Bind(ctx)
	defer release()

	page := h.Page()
	if err := page.Reset(pageCtx); err != nil {
		m.dropIfDead(h)
		return err
	}
	err = fn(pageCtx, page)
	if err != nil && !errors.Is(err, context.Canceled) {
		m.capture(h, "extract-failed")
	}
	m.dropIfDead(h)
	return err
}

func (m *Manager) acquire(ctx context.Context) (browserHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		if m.handle.Alive() {
			return m.handle, nil
		}
		m.logger.Warn("cached browser is gone, logging in again")
		m.handle.Close()
		m.handle = nil
	}
	h, err := m.login(ctx)
	if err != nil {
		return nil, err
	}
	m.handle = h
	return h, nil
}

func (m *Manager) dropIfDead(h browserHandle) {
	if h.Alive() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == h {
		h.Close()
		m.handle = nil
	}
}

func (m *Manager) login(ctx context.Context) (browserHandle, error) {
	if m.cfg.Email == "" || m.cfg.Password == "" {
		metrics.ObserveLogin(false)
		return nil, fmt.Errorf("%w: browser credentials are not configured", crawler.ErrAuthentication)
	}
	var lastErr error
	for attempt := 1; attempt <= m.cfg.LoginMaxAttempts; attempt++ {
		h, err := m.launch(ctx, m.cfg)
		if err == nil {
			err = m.authenticate(ctx, h)
			if err == nil {
				metrics.ObserveLogin(true)
				m.logger.Info("browser login succeeded", zap.Int("attempt", attempt))
				return h, nil
			}
			m.capture(h, "login-failed")
			h.Close()
		}
		metrics.ObserveLogin(false)
		lastErr = err
		m.logger.Warn("browser login attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			return nil, fmt.Errorf("login canceled: %w", ctx.Err())
		}
		if attempt < m.cfg.LoginMaxAttempts {
			wait := time.Duration(1<<attempt) * time.Second
			if err := m.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("login canceled: %w", err)
			}
		}
	}
	return nil, fmt.Errorf("%w: after %d attempts: %v", crawler.ErrAuthentication, m.cfg.LoginMaxAttempts, lastErr)
}

func (m *Manager) authenticate(ctx context.Context, h browserHandle) error {
	pageCtx, release := h.Bind(ctx)
	defer release()
	page := h.Page()

	if err := page.Navigate(pageCtx, m.cfg.LoginURL); err != nil {
		return err
	}
	if err := m.pause(pageCtx, 1500*time.Millisecond, 3000*time.Millisecond); err != nil {
		return err
	}
	if err := m.typeHuman(pageCtx, page, "#username", m.cfg.Email); err != nil {
		return err
	}
	if err := m.typeHuman(pageCtx, page, "#password", m.cfg.Password); err != nil {
		return err
	}
	for range 3 {
		x := 100 + rand.Float64()*(viewportWidth-200)
		y := 100 + rand.Float64()*(viewportHeight-200)
		if err := page.MoveMouse(pageCtx, x, y); err != nil {
			return err
		}
	}
	if err := page.Click(pageCtx, `button[type="submit"]`); err != nil {
		return err
	}
	// The feed search box shows up once the post-login redirect settles.
	if err := page.WaitVisible(pageCtx, loggedInMarker, m.cfg.NavTimeout); err != nil {
		m.logger.Debug("logged-in marker not seen", zap.Error(err))
	}
	loc, err := page.Location(pageCtx)
	if err != nil {
		return err
	}
	if loginRejected(loc) {
		return fmt.Errorf("login redirected to %s", loc)
	}
	return nil
}

func loginRejected(location string) bool {
	return strings.Contains(location, "/login") || strings.Contains(location, "/checkpoint")
}

func (m *Manager) typeHuman(ctx context.Context, page loginPage, selector, text string) error {
	for _, r := range text {
		if err := page.Type(ctx, selector, string(r)); err != nil {
			return err
		}
		if err := m.pause(ctx, m.cfg.TypeMinDelay, m.cfg.TypeMaxDelay); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) pause(ctx context.Context, lo, hi time.Duration) error {
	return m.sleep(ctx, jitter(lo, hi))
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// capture stores a screenshot of h's page. Failures are only logged.
func (m *Manager) capture(h browserHandle, label string) {
	if m.blobs == nil || !h.Alive() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), screenshotTimeout)
	defer cancel()
	pageCtx, release := h.Bind(ctx)
	defer release()

	shot, err := h.Page().Screenshot(pageCtx)
	if err != nil {
		m.logger.Warn("screenshot failed", zap.String("label", label), zap.Error(err))
		return
	}
	path := screenshotPath(label, m.now())
	uri, err := m.blobs.PutObject(ctx, path, "image/png", shot)
	if err != nil {
		m.logger.Warn("screenshot upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	m.logger.Info("captured screenshot", zap.String("label", label), zap.String("uri", uri))
}

func screenshotPath(label string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("screenshots/%s/%s-%d.png", at.Format("2006-01-02"), label, at.Unix())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
