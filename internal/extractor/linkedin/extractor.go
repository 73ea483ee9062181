// Package linkedin extracts profile data by driving the shared browser
// session and parsing the rendered page.
package linkedin

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

const (
	markerSelector = "h1, .pv-top-card, .text-heading-xlarge"
	markerTries    = 3
	contactButtons = `a[data-control-name="contact_see_more"], button[data-control-name="contact_see_more"], ` +
		`.pv-top-card__contact-info, a#top-card-text-details-contact-info`
	warnNameMissing = "profile name not found"

	contactClickTimeout = 3 * time.Second
)

// Extractor implements crawler.Extractor over a crawler.Session. All page
// work happens inside Session.WithPage, so calls are serialized.
type Extractor struct {
	session       crawler.Session
	logger        *zap.Logger
	markerTimeout time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

var _ crawler.Extractor = (*Extractor)(nil)

// New builds an Extractor. markerTimeout bounds each wait for the profile
// marker; zero means 30s.
func New(session crawler.Session, markerTimeout time.Duration, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if markerTimeout <= 0 {
		markerTimeout = 30 * time.Second
	}
	return &Extractor{
		session:       session,
		logger:        logger,
		markerTimeout: markerTimeout,
		sleep:         sleepContext,
	}
}

// NormalizeURL adds an https scheme when none is present.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + strings.TrimPrefix(raw, "//")
}

// Extract navigates to profileURL and parses the profile.
func (e *Extractor) Extract(ctx context.Context, profileURL string) (crawler.Extraction, error) {
	target := NormalizeURL(profileURL)
	if !strings.Contains(target, "linkedin.com") {
		return crawler.Extraction{}, fmt.Errorf("%w: %q is not a linkedin profile", crawler.ErrInvalidSourceURL, profileURL)
	}
	var out crawler.Extraction
	err := e.session.WithPage(ctx, func(ctx context.Context, page crawler.Page) error {
		res, err := e.scrape(ctx, page, target)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return crawler.Extraction{}, err
	}
	return out, nil
}

func (e *Extractor) scrape(ctx context.Context, page crawler.Page, target string) (crawler.Extraction, error) {
	var warnings []string
	if err := page.Navigate(ctx, target); err != nil {
		return crawler.Extraction{}, err
	}
	if err := e.pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return crawler.Extraction{}, err
	}
	if err := checkChallenge(ctx, page); err != nil {
		return crawler.Extraction{}, err
	}

	found, err := e.waitForMarker(ctx, page)
	if err != nil {
		return crawler.Extraction{}, err
	}
	if err := checkChallenge(ctx, page); err != nil {
		return crawler.Extraction{}, err
	}
	if !found {
		e.logger.Warn("profile marker not found, continuing best-effort", zap.String("url", target))
		warnings = append(warnings, crawler.ErrMarkerNotFound.Error())
	}

	if err := e.humanize(ctx, page); err != nil {
		return crawler.Extraction{}, err
	}
	e.openContactInfo(ctx, page)

	html, err := page.HTML(ctx)
	if err != nil {
		return crawler.Extraction{}, err
	}
	profile, err := Parse(html)
	if err != nil {
		return crawler.Extraction{}, err
	}
	if profile.Name == "" {
		warnings = append(warnings, warnNameMissing)
	}
	return crawler.Extraction{Data: profile, Warnings: warnings}, nil
}

func checkChallenge(ctx context.Context, page crawler.Page) error {
	loc, err := page.Location(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(loc, "checkpoint") || strings.Contains(loc, "authwall") {
		return fmt.Errorf("%w: redirected to %s", crawler.ErrChallenge, loc)
	}
	return nil
}

func (e *Extractor) waitForMarker(ctx context.Context, page crawler.Page) (bool, error) {
	for i := range markerTries {
		err := page.WaitVisible(ctx, markerSelector, e.markerTimeout)
		if err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		e.logger.Debug("profile marker missing", zap.Int("try", i+1), zap.Error(err))
		if err := page.Reload(ctx); err != nil {
			e.logger.Debug("reload failed", zap.Int("try", i+1), zap.Error(err))
		}
		step := time.Duration(i) * time.Second
		if err := e.pause(ctx, 2*time.Second+step, 3500*time.Millisecond+step); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (e *Extractor) humanize(ctx context.Context, page crawler.Page) error {
	for range 2 + rand.IntN(3) {
		if err := page.Scroll(ctx, 200+rand.IntN(400)); err != nil {
			return err
		}
		if err := e.pause(ctx, 300*time.Millisecond, 900*time.Millisecond); err != nil {
			return err
		}
	}
	for range 3 {
		if err := page.MoveMouse(ctx, 100+rand.Float64()*1100, 100+rand.Float64()*500); err != nil {
			return err
		}
	}
	return e.pause(ctx, 1500*time.Millisecond, 3*time.Second)
}

func (e *Extractor) openContactInfo(ctx context.Context, page crawler.Page) {
	clickCtx, cancel := context.WithTimeout(ctx, contactClickTimeout)
	defer cancel()
	if err := page.Click(clickCtx, contactButtons); err != nil {
		e.logger.Debug("contact info not opened", zap.Error(err))
		return
	}
	if err := e.sleep(ctx, 800*time.Millisecond); err != nil {
		e.logger.Debug("contact info wait interrupted", zap.Error(err))
	}
}

func (e *Extractor) pause(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d += rand.N(hi - lo)
	}
	return e.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
