package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pennytrack/logger"
	"pennytrack/models"

	"github.com/shopspring/decimal"
)

// Mode selects what a chain extracts
type Mode string

const (
	ModePrice   Mode = "price"
	ModeListing Mode = "listing"
)

// PriceSelectors are ranked price containers, most specific first
var PriceSelectors = []string{
	`[data-testid="pricing"]`,
	`[data-automation-id="pricing"]`,
	`.pricing`,
	`[class*="pricing"]`,
	`[id*="pricing"]`,
	`span[data-testid="price"]`,
	`[data-automation-id="product-price"]`,
	`.price__dollars`,
	`[class*="price"]`,
}

// renderedPriceSelectors are tried without waiting, after PriceSelectors
var renderedPriceSelectors = []string{
	`span.price`,
	`[class*="price__"]`,
}

const (
	productHeaderSelector = `[data-testid="product-header"]`
	productTitleSelector  = `[data-testid="product-title"], .product-title, h2, h3`
	productLinkSelector   = `a[href*="/p/"]`
	productDataSelector   = `[data-product-id], [data-itemid], [data-sku]`
)

// Request carries per-run parameters to a strategy
type Request struct {
	Mode     Mode
	MaxItems int
	StoreID  string
	// Seen holds identifiers already collected by earlier listing strategies
	Seen map[string]bool
}

// Result is what a strategy found. Only the field for the request's mode is set.
type Result struct {
	Price      decimal.Decimal
	Candidates []models.ClearanceCandidate
}

// Strategy is one extraction technique. Try never returns an error: a miss
// of any kind is reported as ok=false.
type Strategy interface {
	Name() string
	Try(ctx context.Context, page PageDriver, req Request) (Result, bool)
}

// Chain runs strategies in order. In price mode the first hit wins; in
// listing mode hits are merged and de-duplicated until MaxItems is reached.
type Chain struct {
	mode       Mode
	strategies []Strategy
	log        *logger.Logger
}

// NewChain builds a chain over an explicit strategy list
func NewChain(mode Mode, strategies ...Strategy) *Chain {
	return &Chain{mode: mode, strategies: strategies, log: logger.ForScraper()}
}

// NewPriceChain is the standard product-page chain
func NewPriceChain(selectorTimeout time.Duration) *Chain {
	return NewChain(ModePrice,
		&WaitSelectorStrategy{Selectors: PriceSelectors, Timeout: selectorTimeout},
		&QuerySelectorStrategy{Selectors: append(append([]string{}, PriceSelectors...), renderedPriceSelectors...)},
		&PageTextStrategy{},
	)
}

// NewListingChain is the standard category-listing chain
func NewListingChain() *Chain {
	return NewChain(ModeListing,
		&ProductHeaderStrategy{},
		&ProductLinkStrategy{},
		&DataAttributeStrategy{},
	)
}

// Strategies returns the chain's strategy names in order
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// ExtractPrice returns the first price any strategy finds and the strategy name
func (c *Chain) ExtractPrice(ctx context.Context, page PageDriver) (decimal.Decimal, string, bool) {
	req := Request{Mode: ModePrice}
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			break
		}
		res, ok := c.try(ctx, s, page, req)
		if ok {
			c.log.Debug().Str("strategy", s.Name()).Str("price", res.Price.StringFixed(2)).Msg("Price extracted")
			return res.Price, s.Name(), true
		}
	}
	return decimal.Zero, "", false
}

// ExtractListing merges candidates from every strategy, at most maxItems,
// one per identifier
func (c *Chain) ExtractListing(ctx context.Context, page PageDriver, maxItems int, storeID string) []models.ClearanceCandidate {
	if maxItems <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []models.ClearanceCandidate

	for _, s := range c.strategies {
		if len(out) >= maxItems || ctx.Err() != nil {
			break
		}
		req := Request{Mode: ModeListing, MaxItems: maxItems - len(out), StoreID: storeID, Seen: seen}
		res, ok := c.try(ctx, s, page, req)
		if !ok {
			continue
		}
		added := 0
		for _, cand := range res.Candidates {
			if len(out) >= maxItems {
				break
			}
			if seen[cand.SKU] {
				continue
			}
			seen[cand.SKU] = true
			out = append(out, cand)
			added++
		}
		c.log.Debug().Str("strategy", s.Name()).Int("added", added).Int("total", len(out)).Msg("Listing strategy finished")
	}
	return out
}

func (c *Chain) try(ctx context.Context, s Strategy, page PageDriver, req Request) (res Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Str("strategy", s.Name()).Str("panic", fmt.Sprint(r)).Msg("Strategy aborted")
			res, ok = Result{}, false
		}
	}()
	return s.Try(ctx, page, req)
}

// WaitSelectorStrategy waits for each selector to become visible and parses its text
type WaitSelectorStrategy struct {
	Selectors []string
	Timeout   time.Duration
}

func (s *WaitSelectorStrategy) Name() string { return "wait_selector" }

func (s *WaitSelectorStrategy) Try(ctx context.Context, page PageDriver, req Request) (Result, bool) {
	for _, sel := range s.Selectors {
		if ctx.Err() != nil {
			return Result{}, false
		}
		el, err := page.WaitVisible(ctx, sel, s.Timeout)
		if err != nil {
			continue
		}
		if price, ok := elementPrice(el); ok {
			return Result{Price: price}, true
		}
	}
	return Result{}, false
}

// QuerySelectorStrategy reads the first match of each selector without waiting
type QuerySelectorStrategy struct {
	Selectors []string
}

func (s *QuerySelectorStrategy) Name() string { return "query_selector" }

func (s *QuerySelectorStrategy) Try(ctx context.Context, page PageDriver, req Request) (Result, bool) {
	for _, sel := range s.Selectors {
		if ctx.Err() != nil {
			return Result{}, false
		}
		els, err := page.QueryAll(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		if price, ok := elementPrice(els[0]); ok {
			return Result{Price: price}, true
		}
	}
	return Result{}, false
}

// PageTextStrategy scans the whole page source for the first plausible price
type PageTextStrategy struct{}

func (s *PageTextStrategy) Name() string { return "page_text" }

func (s *PageTextStrategy) Try(ctx context.Context, page PageDriver, req Request) (Result, bool) {
	content, err := page.Content(ctx)
	if err != nil {
		return Result{}, false
	}
	for _, m := range FindPrices(content) {
		if price, err := ParsePrice(m); err == nil {
			return Result{Price: price}, true
		}
	}
	return Result{}, false
}

func elementPrice(el Element) (decimal.Decimal, bool) {
	text, err := el.Text()
	if err != nil {
		return decimal.Zero, false
	}
	price, err := ParsePrice(text)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

// ProductHeaderStrategy reads product cards: id from data attributes or the
// card's link, name from its title element
type ProductHeaderStrategy struct{}

func (s *ProductHeaderStrategy) Name() string { return "product_header" }

func (s *ProductHeaderStrategy) Try(ctx context.Context, page PageDriver, req Request) (Result, bool) {
	headers, err := page.QueryAll(ctx, productHeaderSelector)
	if err != nil {
		return Result{}, false
	}

	var out []models.ClearanceCandidate
	for _, h := range headers {
		if len(out) >= req.MaxItems {
			break
		}
		id, href, ok := headerIdentifier(h)
		if !ok || req.Seen[id] {
			continue
		}
		out = append(out, candidate(id, headerName(h), href, req.StoreID))
	}
	return Result{Candidates: out}, len(out) > 0
}

func headerIdentifier(h Element) (id, href string, ok bool) {
	for _, attr := range []string{"data-productid", "data-sku"} {
		if v, found, err := h.Attribute(attr); err == nil && found {
			if id, ok := validIdentifier(v); ok {
				return id, "", true
			}
		}
	}
	links, err := h.QueryAll("a")
	if err != nil || len(links) == 0 {
		return "", "", false
	}
	href, found, err := links[0].Attribute("href")
	if err != nil || !found {
		return "", "", false
	}
	id, ok = ExtractIdentifier(href)
	return id, href, ok
}

func headerName(h Element) string {
	titles, err := h.QueryAll(productTitleSelector)
	if err != nil || len(titles) == 0 {
		return ""
	}
	text, err := titles[0].Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// ProductLinkStrategy collects every anchor pointing at a product page
type ProductLinkStrategy struct{}

func (s *ProductLinkStrategy) Name() string { return "product_link" }

func (s *ProductLinkStrategy) Try(ctx context.Context, page PageDriver, req Request) (Result, bool) {
	links, err := page.QueryAll(ctx, productLinkSelector)
	if err != nil {
		return Result{}, false
	}

	local := make(map[string]bool)
	var out []models.ClearanceCandidate
	for _, a := range links {
		if len(out) >= req.MaxItems {
			break
		}
		href, found, err := a.Attribute("href")
		if err != nil || !found {
			continue
		}
		id, ok := ExtractIdentifier(href)
		if !ok || req.Seen[id] || local[id] {
			continue
		}
		local[id] = true
		name, _ := a.Text()
		out = append(out, candidate(id, strings.TrimSpace(name), href, req.StoreID))
	}
	return Result{Candidates: out}, len(out) > 0
}

// DataAttributeStrategy is the last resort: any element carrying a
// product-id-like data attribute
type DataAttributeStrategy struct{}

func (s *DataAttributeStrategy) Name() string { return "data_attribute" }

func (s *DataAttributeStrategy) Try(ctx context.Context, page PageDriver, req Request) (Result, bool) {
	els, err := page.QueryAll(ctx, productDataSelector)
	if err != nil {
		return Result{}, false
	}

	local := make(map[string]bool)
	var out []models.ClearanceCandidate
	for _, el := range els {
		if len(out) >= req.MaxItems {
			break
		}
		for _, attr := range []string{"data-product-id", "data-itemid", "data-sku"} {
			v, found, err := el.Attribute(attr)
			if err != nil || !found {
				continue
			}
			id, ok := validIdentifier(v)
			if !ok {
				continue
			}
			if !req.Seen[id] && !local[id] {
				local[id] = true
				out = append(out, candidate(id, headerName(el), "", req.StoreID))
			}
			break
		}
	}
	return Result{Candidates: out}, len(out) > 0
}

func candidate(id, name, href, storeID string) models.ClearanceCandidate {
	if name == "" {
		name = "Product " + id
	}
	source := ProductURL(id)
	if strings.HasPrefix(href, "http") {
		source = href
	} else if strings.HasPrefix(href, "/") {
		source = "https://" + RetailerHost + href
	}
	return models.ClearanceCandidate{SKU: id, Name: name, StoreID: storeID, SourceURL: source}
}
