package models

import "time"

// AlertLevel grades how close an item looks to a penny drop
type AlertLevel string

const (
	AlertExtreme  AlertLevel = "extreme"
	AlertHigh     AlertLevel = "high"
	AlertModerate AlertLevel = "moderate"
	AlertLow      AlertLevel = "low"
)

// Valid reports whether l is one of the known levels
func (l AlertLevel) Valid() bool {
	switch l {
	case AlertExtreme, AlertHigh, AlertModerate, AlertLow:
		return true
	}
	return false
}

// ClassificationResult is derived from a price on every read and never stored
type ClassificationResult struct {
	Probability   float64    `json:"probability"`
	AlertLevel    AlertLevel `json:"alert_level"`
	Confidence    string     `json:"confidence"`
	Reasoning     string     `json:"reasoning"`
	PriceEnding   string     `json:"price_ending"`
	DaysUntilDrop *int       `json:"days_until_drop"`
	NextDropDate  *time.Time `json:"next_drop_date"`
	Timeline      string     `json:"timeline"`
	PolicyVersion string     `json:"policy_version"`
}

// Actionable reports whether the result is worth notifying about
func (c *ClassificationResult) Actionable() bool {
	return c.AlertLevel == AlertExtreme || c.AlertLevel == AlertHigh
}

// TrackedItemView pairs an item with the classification of its last price
type TrackedItemView struct {
	Item           TrackedItem           `json:"item"`
	Classification *ClassificationResult `json:"classification,omitempty"`
}
