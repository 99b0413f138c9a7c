package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the layout used for timestamps in flat-file storage
const TimestampLayout = "2006-01-02 15:04:05"

// TrackedItem is a product being monitored, keyed by SKU
type TrackedItem struct {
	SKU         string              `json:"sku" db:"sku"`
	StoreID     string              `json:"store_id" db:"store_id"`
	Name        string              `json:"name" db:"name"`
	LastPrice   decimal.NullDecimal `json:"last_price" db:"last_price"`
	LastUpdated *time.Time          `json:"last_updated" db:"last_updated"`
}

// HasPrice reports whether the item was ever fetched successfully
func (t *TrackedItem) HasPrice() bool {
	return t.LastPrice.Valid
}

// MarshalJSON renders a missing price as null rather than "0"
func (t TrackedItem) MarshalJSON() ([]byte, error) {
	type Alias TrackedItem
	var price *string
	if t.LastPrice.Valid {
		s := t.LastPrice.Decimal.StringFixed(2)
		price = &s
	}
	return json.Marshal(&struct {
		Alias
		LastPrice *string `json:"last_price"`
	}{
		Alias:     Alias(t),
		LastPrice: price,
	})
}

// PriceObservation is one append-only history row
type PriceObservation struct {
	SKU       string          `json:"sku" db:"sku"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Timestamp time.Time       `json:"timestamp" db:"observed_at"`
}

// SortObservations orders history by timestamp; storage order is not guaranteed
func SortObservations(obs []PriceObservation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})
}

// ClearanceCandidate is a product found by discovery, not yet tracked
type ClearanceCandidate struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	StoreID   string `json:"store_id"`
	SourceURL string `json:"source_url,omitempty"`
}

// Category is a catalog listing to scan for clearance items
type Category struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// FetchResult is a successfully extracted price
type FetchResult struct {
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	SourceURL string          `json:"source_url"`
	Method    string          `json:"method"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ItemFailure records why one item in a batch did not update
type ItemFailure struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// BatchResult is the tally of a bulk update
type BatchResult struct {
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Total    int           `json:"total"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// FailedKeys lists the SKUs that failed in this batch
func (b *BatchResult) FailedKeys() []string {
	keys := make([]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		keys = append(keys, f.Key)
	}
	return keys
}

// DiscoveryReport summarizes a discovery pass across categories
type DiscoveryReport struct {
	CategoriesScanned int                  `json:"categories_scanned"`
	Found             int                  `json:"found"`
	NewSKUs           int                  `json:"new_skus"`
	Added             []string             `json:"added,omitempty"`
	TotalTracked      int                  `json:"total_tracked"`
	Candidates        []ClearanceCandidate `json:"candidates"`
	Failures          []ItemFailure        `json:"failures,omitempty"`
}

// AddItemRequest is the body for explicitly tracking a SKU
type AddItemRequest struct {
	SKU     string `json:"sku"`
	Name    string `json:"name"`
	StoreID string `json:"store_id"`
}

// Normalize trims input fields
func (r *AddItemRequest) Normalize() {
	r.SKU = strings.TrimSpace(r.SKU)
	r.Name = strings.TrimSpace(r.Name)
	r.StoreID = strings.TrimSpace(r.StoreID)
}

// HistorySummary holds the statistics shown alongside a price history
type HistorySummary struct {
	CurrentPrice  decimal.Decimal `json:"current_price"`
	FirstPrice    decimal.Decimal `json:"first_price"`
	TotalChange   decimal.Decimal `json:"total_change"`
	PercentChange decimal.Decimal `json:"percent_change"`
	DataPoints    int             `json:"data_points"`
}

// SummarizeHistory computes change statistics over obs; obs must be sorted
func SummarizeHistory(obs []PriceObservation) *HistorySummary {
	if len(obs) == 0 {
		return nil
	}
	first := obs[0].Price
	last := obs[len(obs)-1].Price
	change := last.Sub(first)

	percent := decimal.Zero
	if !first.IsZero() {
		percent = change.Div(first).Mul(decimal.NewFromInt(100)).Round(1)
	}

	return &HistorySummary{
		CurrentPrice:  last,
		FirstPrice:    first,
		TotalChange:   change,
		PercentChange: percent,
		DataPoints:    len(obs),
	}
}

// FormatPrice renders p as $1,234.56
func FormatPrice(p decimal.Decimal) string {
	sign := ""
	if p.IsNegative() {
		sign = "-"
		p = p.Abs()
	}
	fixed := p.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}
