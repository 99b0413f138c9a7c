package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"pennytrack/apperrors"
	"pennytrack/cache"
	"pennytrack/classifier"
	"pennytrack/logger"
	"pennytrack/models"
	"pennytrack/publisher"
	"pennytrack/repository"
	"pennytrack/scraper"
)

// PriceSource reads the current price of one SKU
type PriceSource interface {
	FetchPrice(ctx context.Context, sku string) (*models.FetchResult, error)
}

// Discoverer scans catalog categories for clearance candidates
type Discoverer interface {
	DiscoverAll(ctx context.Context, categories []models.Category, maxItems int) (*models.DiscoveryReport, error)
}

// TrackerConfig holds the pacing and scope of tracking cycles
type TrackerConfig struct {
	StoreID        string
	ItemDelay      time.Duration
	BlockedDelay   time.Duration
	Categories     []models.Category
	MaxPerCategory int
}

// CheckResult is the outcome of checking one SKU on demand
type CheckResult struct {
	Fetch          *models.FetchResult          `json:"fetch"`
	Classification models.ClassificationResult `json:"classification"`
	Tracked        bool                        `json:"tracked"`
}

// HistoryResult is a SKU's sorted price history with its statistics
type HistoryResult struct {
	SKU          string                    `json:"sku"`
	Observations []models.PriceObservation `json:"observations"`
	Summary      *models.HistorySummary    `json:"summary"`
}

// Tracker runs discovery and price cycles against the store. Browser-driving
// operations are serialized so only one session is live at a time.
type Tracker struct {
	store      repository.Store
	prices     PriceSource
	discoverer Discoverer
	classifier *classifier.Classifier
	publisher  publisher.Publisher
	cooldown   *cache.Cooldown
	cfg        TrackerConfig
	log        *logger.Logger

	run sync.Mutex

	mu         sync.Mutex
	lastFailed []string
	lastResult *models.BatchResult
}

// NewTracker wires a tracker; a nil publisher discards alerts and a nil
// cooldown never slows a sync
func NewTracker(store repository.Store, prices PriceSource, discoverer Discoverer, c *classifier.Classifier, pub publisher.Publisher, cooldown *cache.Cooldown, cfg TrackerConfig) *Tracker {
	if pub == nil {
		pub = publisher.Nop{}
	}
	if c == nil {
		c = classifier.NewDefault()
	}
	return &Tracker{
		store:      store,
		prices:     prices,
		discoverer: discoverer,
		classifier: c,
		publisher:  pub,
		cooldown:   cooldown,
		cfg:        cfg,
		log:        logger.ForScheduler(),
	}
}

// SyncAll fetches every tracked SKU in turn. One item's failure never stops
// the batch; the tally lists each failure.
func (t *Tracker) SyncAll(ctx context.Context) (*models.BatchResult, error) {
	items, err := t.store.ListTracked(ctx)
	if err != nil {
		return nil, err
	}
	return t.syncItems(ctx, items)
}

// SyncSKUs fetches only the listed SKUs that are still tracked
func (t *Tracker) SyncSKUs(ctx context.Context, skus []string) (*models.BatchResult, error) {
	items, err := t.store.ListTracked(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(skus))
	for _, s := range skus {
		wanted[s] = true
	}
	selected := items[:0]
	for _, it := range items {
		if wanted[it.SKU] {
			selected = append(selected, it)
		}
	}
	return t.syncItems(ctx, selected)
}

func (t *Tracker) syncItems(ctx context.Context, items []models.TrackedItem) (*models.BatchResult, error) {
	t.run.Lock()
	defer t.run.Unlock()

	result := &models.BatchResult{Total: len(items)}
	start := time.Now()
	t.log.Info().Int("items", len(items)).Msg("Price sync started")

	for i, item := range items {
		if i > 0 {
			if err := sleepCtx(ctx, t.cfg.ItemDelay); err != nil {
				t.recordRemaining(result, items[i:], "cancelled", err.Error())
				break
			}
		}

		// A bot wall only slows the batch down; every item is still attempted
		if active, reason := t.cooldown.Active(scraper.RetailerHost); active && t.cfg.BlockedDelay > 0 {
			t.log.Debug().Str("sku", item.SKU).Str("reason", reason).Dur("delay", t.cfg.BlockedDelay).Msg("Retailer cooling down, slowing sync")
			if err := sleepCtx(ctx, t.cfg.BlockedDelay); err != nil {
				t.recordRemaining(result, items[i:], "cancelled", err.Error())
				break
			}
		}

		if err := t.syncItem(ctx, item); err != nil {
			kind := string(apperrors.KindOf(err))
			if kind == "" {
				kind = "unknown"
			}
			result.Failed++
			result.Failures = append(result.Failures, models.ItemFailure{Key: item.SKU, Kind: kind, Error: err.Error()})
			if apperrors.IsBlocked(err) {
				t.cooldown.Trip(scraper.RetailerHost, err.Error())
			}
			continue
		}
		result.Updated++
	}

	t.mu.Lock()
	t.lastFailed = result.FailedKeys()
	t.lastResult = result
	t.mu.Unlock()

	t.log.Info().
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Dur("elapsed", time.Since(start)).
		Msg("Price sync finished")
	return result, nil
}

func (t *Tracker) recordRemaining(result *models.BatchResult, items []models.TrackedItem, kind, reason string) {
	for _, it := range items {
		result.Failed++
		result.Failures = append(result.Failures, models.ItemFailure{Key: it.SKU, Kind: kind, Error: reason})
	}
}

func (t *Tracker) syncItem(ctx context.Context, item models.TrackedItem) error {
	res, err := t.prices.FetchPrice(ctx, item.SKU)
	if err != nil {
		if apperrors.IsNotFound(err) {
			t.log.Info().Str("sku", item.SKU).Err(err).Msg("No price this cycle")
		} else {
			t.log.Warn().Str("sku", item.SKU).Err(err).Msg("Price fetch failed")
		}
		return err
	}

	if err := t.store.ApplyFetchResult(ctx, item.SKU, res.Price, res.FetchedAt); err != nil {
		t.log.Error().Str("sku", item.SKU).Err(err).Msg("Failed to save price")
		return err
	}

	result := t.classifier.Classify(res.Price)
	event := t.log.Info().
		Str("sku", item.SKU).
		Str("price", models.FormatPrice(res.Price)).
		Str("alert_level", string(result.AlertLevel))
	if item.LastPrice.Valid && !item.LastPrice.Decimal.Equal(res.Price) {
		event = event.Str("previous", models.FormatPrice(item.LastPrice.Decimal))
	}
	event.Msg("Price updated")

	if result.Actionable() {
		t.publish(item, res, result)
	}
	return nil
}

func (t *Tracker) publish(item models.TrackedItem, res *models.FetchResult, result models.ClassificationResult) {
	alert := publisher.Alert{
		SKU:            item.SKU,
		Name:           item.Name,
		StoreID:        item.StoreID,
		Price:          res.Price,
		PreviousPrice:  item.LastPrice,
		SourceURL:      res.SourceURL,
		Classification: result,
		ObservedAt:     res.FetchedAt,
	}
	if err := t.publisher.Publish(alert); err != nil {
		t.log.Warn().Str("sku", item.SKU).Err(err).Msg("Failed to publish alert")
		return
	}
	t.log.Info().Str("sku", item.SKU).Str("alert_level", string(result.AlertLevel)).Msg("Markdown alert published")
}

// LastFailures returns the SKUs that failed in the most recent sync
func (t *Tracker) LastFailures() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lastFailed...)
}

// LastResult returns the tally of the most recent sync, if any
func (t *Tracker) LastResult() *models.BatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastResult
}

// DiscoverAndTrack scans the configured categories and tracks new SKUs
func (t *Tracker) DiscoverAndTrack(ctx context.Context) (*models.DiscoveryReport, error) {
	if t.discoverer == nil {
		return nil, apperrors.NewConfiguration("discovery is not configured", nil)
	}

	t.run.Lock()
	report, err := t.discoverer.DiscoverAll(ctx, t.cfg.Categories, t.cfg.MaxPerCategory)
	t.run.Unlock()
	if err != nil && report == nil {
		return nil, err
	}

	before, serr := t.store.ListTracked(ctx)
	if serr != nil {
		return report, serr
	}
	known := make(map[string]bool, len(before))
	for _, it := range before {
		known[it.SKU] = true
	}

	inserted, serr := t.store.UpsertCandidates(ctx, report.Candidates)
	if serr != nil {
		return report, serr
	}
	report.NewSKUs = inserted
	report.TotalTracked = len(before) + inserted
	for _, c := range report.Candidates {
		if c.SKU != "" && !known[c.SKU] {
			known[c.SKU] = true
			report.Added = append(report.Added, c.SKU)
		}
	}

	t.log.Info().
		Int("categories", report.CategoriesScanned).
		Int("found", report.Found).
		Int("new", report.NewSKUs).
		Int("total", report.TotalTracked).
		Msg("Discovery finished")
	return report, err
}

// CheckOne fetches and classifies sku now. A tracked SKU is also updated.
func (t *Tracker) CheckOne(ctx context.Context, sku string) (*CheckResult, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, apperrors.NewValidation("check", "sku is required")
	}

	t.run.Lock()
	res, err := t.prices.FetchPrice(ctx, sku)
	t.run.Unlock()
	if err != nil {
		if apperrors.IsBlocked(err) {
			t.cooldown.Trip(scraper.RetailerHost, err.Error())
		}
		return nil, err
	}

	out := &CheckResult{Fetch: res, Classification: t.classifier.Classify(res.Price)}
	err = t.store.ApplyFetchResult(ctx, sku, res.Price, res.FetchedAt)
	switch {
	case err == nil:
		out.Tracked = true
	case apperrors.IsNotFound(err):
	default:
		return out, err
	}
	return out, nil
}

// AddItem tracks a SKU explicitly; false means it was already tracked
func (t *Tracker) AddItem(ctx context.Context, req models.AddItemRequest) (*models.TrackedItem, bool, error) {
	req.Normalize()
	if len(req.SKU) < 4 {
		return nil, false, apperrors.NewValidation("add_item", "sku must be at least 4 characters")
	}
	if req.StoreID == "" {
		req.StoreID = t.cfg.StoreID
	}
	if req.Name == "" {
		req.Name = "Product " + req.SKU
	}

	item := models.TrackedItem{SKU: req.SKU, StoreID: req.StoreID, Name: req.Name}
	added, err := t.store.AddTracked(ctx, item)
	if err != nil {
		return nil, false, err
	}
	if !added {
		t.log.Warn().Str("sku", req.SKU).Msg("SKU already tracked")
		existing, err := t.store.GetTracked(ctx, req.SKU)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	t.log.Info().Str("sku", req.SKU).Str("name", req.Name).Msg("SKU added")
	return &item, true, nil
}

// RemoveItem stops tracking sku; its history is kept
func (t *Tracker) RemoveItem(ctx context.Context, sku string) error {
	return t.store.RemoveTracked(ctx, strings.TrimSpace(sku))
}

// ListItems returns every tracked item with the classification of its last price
func (t *Tracker) ListItems(ctx context.Context) ([]models.TrackedItemView, error) {
	items, err := t.store.ListTracked(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.TrackedItemView, 0, len(items))
	for _, it := range items {
		view := models.TrackedItemView{Item: it}
		if it.LastPrice.Valid {
			c := t.classifier.Classify(it.LastPrice.Decimal)
			view.Classification = &c
		}
		views = append(views, view)
	}
	return views, nil
}

// History returns sku's observations sorted by time
func (t *Tracker) History(ctx context.Context, sku string) (*HistoryResult, error) {
	obs, err := t.store.History(ctx, sku)
	if err != nil {
		return nil, err
	}
	models.SortObservations(obs)
	if obs == nil {
		obs = []models.PriceObservation{}
	}
	return &HistoryResult{SKU: sku, Observations: obs, Summary: models.SummarizeHistory(obs)}, nil
}

// TrimAlerts caps the alert stream at its configured length
func (t *Tracker) TrimAlerts() error {
	return t.publisher.TrimStreams()
}

// Classifier exposes the active markdown policy
func (t *Tracker) Classifier() *classifier.Classifier {
	return t.classifier
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
