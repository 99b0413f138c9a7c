package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pennytrack/apperrors"
	"pennytrack/config"
	"pennytrack/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	storeCookieName   = "THD_STORES"
	storeCookieDomain = ".homedepot.com"
)

// StealthProfile opens the session's page inside a browser context
type StealthProfile interface {
	NewPage(browser *rod.Browser) (*rod.Page, error)
}

// RodStealth applies the go-rod/stealth evasion script to new pages
type RodStealth struct{}

func (RodStealth) NewPage(browser *rod.Browser) (*rod.Page, error) {
	return stealth.Page(browser)
}

// PlainProfile opens a page with no evasions
type PlainProfile struct{}

func (PlainProfile) NewPage(browser *rod.Browser) (*rod.Page, error) {
	return browser.Page(proto.TargetCreateTarget{})
}

// Session is one launched browser with one incognito context and one page.
// It is not safe for concurrent use.
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	context  *rod.Browser
	page     *rod.Page
	driver   *RodPage

	closeOnce sync.Once
	closeErr  error
}

var _ PageSession = (*Session)(nil)

// OpenSession launches Chromium and prepares a page for storeID. On any
// failure the partially built session is torn down before returning.
func OpenSession(ctx context.Context, cfg config.BrowserConfig, storeID string, profile StealthProfile) (s *Session, err error) {
	log := logger.ForScraper()
	s = &Session{}
	defer func() {
		if err != nil {
			if closeErr := s.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("Partial session teardown failed")
			}
			s = nil
		}
	}()

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		return s, apperrors.NewNavigation("launch", "chromium", "browser launch failed", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return s, apperrors.NewNavigation("launch", controlURL, "browser connect failed", err)
	}
	s.browser = browser

	incognito, err := browser.Incognito()
	if err != nil {
		return s, apperrors.NewNavigation("launch", "incognito", "create browser context failed", err)
	}
	s.context = incognito

	if profile == nil {
		profile = RodStealth{}
	}
	page, err := profile.NewPage(incognito)
	if err != nil {
		return s, apperrors.NewNavigation("launch", "page", "open page failed", err)
	}
	s.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return s, apperrors.NewNavigation("launch", "viewport", "set viewport failed", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
		return s, apperrors.NewNavigation("launch", "user-agent", "set user agent failed", err)
	}
	if err := page.SetCookies([]*proto.NetworkCookieParam{{
		Name:   storeCookieName,
		Value:  storeID,
		Domain: storeCookieDomain,
		Path:   "/",
	}}); err != nil {
		return s, apperrors.NewNavigation("launch", "cookie", "set store cookie failed", err)
	}

	s.driver = NewRodPage(page)
	log.Debug().Str("store_id", storeID).Bool("headless", cfg.Headless).Msg("Browser session opened")
	return s, nil
}

// Page returns the session's only page
func (s *Session) Page() PageDriver {
	return s.driver
}

// Close releases page, context, browser and launcher in that order. Every
// step runs even when an earlier one fails; the errors are joined.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if s.context != nil {
			if err := s.context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser context: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// RodSessions opens a new browser session per call
type RodSessions struct {
	Browser config.BrowserConfig
	StoreID string
	Profile StealthProfile
}

var _ SessionFactory = (*RodSessions)(nil)

func (f *RodSessions) Open(ctx context.Context) (PageSession, error) {
	s, err := OpenSession(ctx, f.Browser, f.StoreID, f.Profile)
	if err != nil {
		return nil, err
	}
	return s, nil
}
