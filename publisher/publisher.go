package publisher

import (
	"time"

	"pennytrack/models"

	"github.com/shopspring/decimal"
)

// Alert announces a tracked item whose price ending predicts a markdown
type Alert struct {
	SKU            string                     `json:"sku"`
	Name           string                     `json:"name"`
	StoreID        string                     `json:"store_id"`
	Price          decimal.Decimal            `json:"price"`
	PreviousPrice  decimal.NullDecimal        `json:"previous_price"`
	SourceURL      string                     `json:"source_url"`
	Classification models.ClassificationResult `json:"classification"`
	ObservedAt     time.Time                  `json:"observed_at"`
}

// Publisher represents a service for publishing alerts
type Publisher interface {
	// Publish appends an alert to the stream
	Publish(alert Alert) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

// Nop discards alerts; used when no stream is configured
type Nop struct{}

func (Nop) Publish(Alert) error { return nil }
func (Nop) TrimStreams() error   { return nil }
func (Nop) Close() error         { return nil }
