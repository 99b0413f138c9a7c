package classifier

import (
	"strings"
	"time"

	"pennytrack/models"

	"github.com/shopspring/decimal"
)

const dateLayout = "January 02, 2006"

// Classifier maps a price to its position in the markdown cycle
type Classifier struct {
	policy Policy
	now    func() time.Time
}

// New returns a classifier over policy
func New(policy Policy) *Classifier {
	return &Classifier{policy: policy, now: time.Now}
}

// NewDefault returns a classifier over DefaultPolicy
func NewDefault() *Classifier {
	return New(DefaultPolicy())
}

// WithClock replaces the time source used for projected dates
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// PolicyVersion identifies the active table
func (c *Classifier) PolicyVersion() string {
	return c.policy.Version
}

// Ending returns the two cents digits of price; sub-cent digits are dropped
func Ending(price decimal.Decimal) string {
	s := price.Abs().Truncate(2).StringFixed(2)
	return s[len(s)-2:]
}

// Classify is total: every price maps to exactly one rule
func (c *Classifier) Classify(price decimal.Decimal) models.ClassificationResult {
	cents := Ending(price)
	rule := c.policy.lookup(cents)

	result := models.ClassificationResult{
		Probability:   rule.Probability,
		AlertLevel:    rule.AlertLevel,
		Confidence:    rule.Confidence,
		PriceEnding:   cents,
		PolicyVersion: c.policy.Version,
	}

	date := ""
	if rule.DaysUntilDrop != nil {
		d := *rule.DaysUntilDrop
		next := c.now().AddDate(0, 0, d)
		result.DaysUntilDrop = &d
		result.NextDropDate = &next
		date = next.Format(dateLayout)
	}

	r := strings.NewReplacer("{cents}", cents, "{date}", date)
	result.Reasoning = r.Replace(rule.Reasoning)
	result.Timeline = r.Replace(rule.Timeline)
	return result
}

var defaultClassifier = NewDefault()

// Classify runs price through the default policy
func Classify(price decimal.Decimal) models.ClassificationResult {
	return defaultClassifier.Classify(price)
}
