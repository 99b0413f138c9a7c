package scraper

import (
	"context"
	"time"

	"pennytrack/apperrors"
	"pennytrack/config"
	"pennytrack/logger"
	"pennytrack/models"
)

// CatalogFetcher finds clearance candidates on category listing pages
type CatalogFetcher struct {
	sessions  SessionFactory
	chain     *Chain
	storeID   string
	browser   config.BrowserConfig
	discovery config.DiscoveryConfig
	log       *logger.Logger
}

// NewCatalogFetcher builds a discovery fetcher for storeID
func NewCatalogFetcher(sessions SessionFactory, storeID string, browser config.BrowserConfig, discovery config.DiscoveryConfig) *CatalogFetcher {
	return &CatalogFetcher{
		sessions:  sessions,
		chain:     NewListingChain(),
		storeID:   storeID,
		browser:   browser,
		discovery: discovery,
		log:       logger.ForScraper(),
	}
}

// Discover scans one category in its own session
func (c *CatalogFetcher) Discover(ctx context.Context, categoryURL string, maxItems int) ([]models.ClearanceCandidate, error) {
	session, err := c.sessions.Open(ctx)
	if err != nil {
		return nil, asNavigation("open_session", categoryURL, err)
	}
	defer c.closeSession(session)

	return c.DiscoverWith(ctx, session.Page(), categoryURL, maxItems)
}

// DiscoverWith scans one category's clearance view on an open page. An
// empty listing is not an error.
func (c *CatalogFetcher) DiscoverWith(ctx context.Context, page PageDriver, categoryURL string, maxItems int) ([]models.ClearanceCandidate, error) {
	url := ClearanceURL(categoryURL)

	if err := page.Navigate(ctx, url, c.browser.NavigationTimeout); err != nil {
		return nil, apperrors.NewNavigation("navigate", url, "category page failed to load", err)
	}
	if err := c.loadLazyContent(ctx, page); err != nil {
		return nil, apperrors.NewNavigation("navigate", url, "cancelled while loading listing", err)
	}

	found := c.chain.ExtractListing(ctx, page, maxItems, c.storeID)
	c.log.Info().Str("url", url).Int("found", len(found)).Msg("Category scanned")
	return found, nil
}

// loadLazyContent scrolls the virtualized result grid so later rows render
func (c *CatalogFetcher) loadLazyContent(ctx context.Context, page PageDriver) error {
	for _, script := range []string{ScriptScrollToBottom, ScriptScrollToTop} {
		if _, err := page.Evaluate(ctx, script); err != nil {
			c.log.Debug().Err(err).Msg("Scroll script failed")
		}
		if err := sleep(ctx, c.discovery.LazyLoadWait); err != nil {
			return err
		}
	}
	return nil
}

// DiscoverAll scans every category in one session, pausing CategoryDelay
// between categories. A failing category is recorded in the report and the
// scan moves on. Candidates are de-duplicated across categories.
func (c *CatalogFetcher) DiscoverAll(ctx context.Context, categories []models.Category, maxItems int) (*models.DiscoveryReport, error) {
	report := &models.DiscoveryReport{Candidates: []models.ClearanceCandidate{}}
	if len(categories) == 0 {
		return report, nil
	}

	session, err := c.sessions.Open(ctx)
	if err != nil {
		return nil, asNavigation("open_session", "discovery", err)
	}
	defer c.closeSession(session)
	page := session.Page()

	seen := make(map[string]bool)
	for i, cat := range categories {
		if i > 0 {
			if err := sleep(ctx, c.discovery.CategoryDelay); err != nil {
				return report, err
			}
		}

		start := time.Now()
		found, err := c.DiscoverWith(ctx, page, cat.URL, maxItems)
		report.CategoriesScanned++
		if err != nil {
			c.log.Warn().Err(err).Str("category", cat.Name).Msg("Category scan failed")
			report.Failures = append(report.Failures, models.ItemFailure{
				Key:   cat.URL,
				Kind:  string(apperrors.KindOf(err)),
				Error: err.Error(),
			})
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			continue
		}

		for _, cand := range found {
			if seen[cand.SKU] {
				continue
			}
			seen[cand.SKU] = true
			report.Candidates = append(report.Candidates, cand)
		}
		c.log.Debug().
			Str("category", cat.Name).
			Int("found", len(found)).
			Dur("elapsed", time.Since(start)).
			Msg("Category done")
	}

	report.Found = len(report.Candidates)
	return report, nil
}

func (c *CatalogFetcher) closeSession(session PageSession) {
	if err := session.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Session close reported errors")
	}
}
