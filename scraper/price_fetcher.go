package scraper

import (
	"context"
	"strings"
	"time"

	"pennytrack/apperrors"
	"pennytrack/config"
	"pennytrack/logger"
	"pennytrack/models"
)

// MethodProductPage labels prices read from the product detail page
const MethodProductPage = "product_page"

// pricingContainers are waited on before extraction so the chain runs on a
// rendered price block
var pricingContainers = PriceSelectors[:5]

// PriceFetcher reads the current price of one SKU from its product page
type PriceFetcher struct {
	sessions SessionFactory
	chain    *Chain
	detector *BotDetector
	cfg      config.BrowserConfig
	log      *logger.Logger
}

// NewPriceFetcher builds a fetcher that opens one session per call
func NewPriceFetcher(sessions SessionFactory, cfg config.BrowserConfig) *PriceFetcher {
	return &PriceFetcher{
		sessions: sessions,
		chain:    NewPriceChain(cfg.SelectorTimeout),
		detector: NewBotDetector(),
		cfg:      cfg,
		log:      logger.ForScraper(),
	}
}

// WithChain swaps the extraction chain
func (f *PriceFetcher) WithChain(chain *Chain) *PriceFetcher {
	f.chain = chain
	return f
}

// FetchPrice opens a session, reads the price for sku and closes the session.
// An exhausted chain returns an error matching apperrors.ErrNotFound; launch
// and navigation faults return a KindNavigation error.
func (f *PriceFetcher) FetchPrice(ctx context.Context, sku string) (*models.FetchResult, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, apperrors.NewValidation("fetch_price", "sku is required")
	}

	session, err := f.sessions.Open(ctx)
	if err != nil {
		return nil, asNavigation("open_session", sku, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			f.log.Warn().Err(cerr).Str("sku", sku).Msg("Session close reported errors")
		}
	}()

	return f.FetchWith(ctx, session.Page(), sku)
}

// FetchWith reads the price for sku using an already open page
func (f *PriceFetcher) FetchWith(ctx context.Context, page PageDriver, sku string) (*models.FetchResult, error) {
	url := ProductURL(sku)
	start := time.Now()

	if err := page.Navigate(ctx, url, f.cfg.NavigationTimeout); err != nil {
		return nil, apperrors.NewNavigation("navigate", url, "product page failed to load", err)
	}

	if !f.waitForPricing(ctx, page) {
		if err := sleep(ctx, f.cfg.SettleDelay); err != nil {
			return nil, apperrors.NewNavigation("navigate", url, "cancelled while waiting for page", err)
		}
	}

	price, strategy, ok := f.chain.ExtractPrice(ctx, page)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewNavigation("extract", url, "cancelled during extraction", err)
		}
		signal := f.detector.Inspect(ctx, page)
		if signal.Blocked {
			f.log.Warn().Str("sku", sku).Str("block", signal.Kind).Float64("score", signal.Score).Msg("Product page blocked")
			return nil, apperrors.NewBlocked("fetch_price", sku, signal.Kind+": "+signal.Reason())
		}
		reason := "all extraction strategies exhausted"
		if signal.Kind == BlockDelisted {
			reason = "product page reports item unavailable"
		}
		return nil, apperrors.NewNotFound("fetch_price", sku, reason)
	}

	f.log.Info().
		Str("sku", sku).
		Str("price", price.StringFixed(2)).
		Str("strategy", strategy).
		Dur("elapsed", time.Since(start)).
		Msg("Price fetched")

	return &models.FetchResult{
		SKU:       sku,
		Price:     price,
		SourceURL: url,
		Method:    MethodProductPage,
		FetchedAt: time.Now(),
	}, nil
}

// waitForPricing is best effort; false means no pricing container appeared
func (f *PriceFetcher) waitForPricing(ctx context.Context, page PageDriver) bool {
	for _, sel := range pricingContainers {
		if ctx.Err() != nil {
			return false
		}
		if _, err := page.WaitVisible(ctx, sel, f.cfg.PricingWaitTimeout); err == nil {
			return true
		}
	}
	return false
}

func asNavigation(op, subject string, err error) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	return apperrors.NewNavigation(op, subject, "browser session unavailable", err)
}
