package scraper

import (
	"regexp"
	"strings"

	"pennytrack/apperrors"

	"github.com/shopspring/decimal"
)

var (
	// MinPrice and MaxPrice bound what a scraped fragment may plausibly be
	MinPrice = decimal.RequireFromString("0.01")
	MaxPrice = decimal.RequireFromString("100000.00")

	pagePricePattern = regexp.MustCompile(`\$?\s*(\d+(?:,\d+)*\.\d{2})`)
)

// ParsePrice keeps only digits and '.', then accepts the number if it lies
// within [MinPrice, MaxPrice]. Anything else is ErrMalformedPrice.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)

	if cleaned == "" {
		return decimal.Zero, apperrors.NewMalformedPrice(text)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, apperrors.NewMalformedPrice(text)
	}
	if price.LessThan(MinPrice) || price.GreaterThan(MaxPrice) {
		return decimal.Zero, apperrors.NewMalformedPrice(text)
	}
	return price, nil
}

// FindPrices returns every price-shaped substring of content in document order
func FindPrices(content string) []string {
	matches := pagePricePattern.FindAllStringSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
