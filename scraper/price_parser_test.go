package scraper

import (
	"errors"
	"testing"

	"pennytrack/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$19.02", "19.02"},
		{"$1,234.56", "1234.56"},
		{"  $ 0.01 ", "0.01"},
		{"$100,000.00", "100000"},
		{"Now $7.03 each", "7.03"},
		{"42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParsePriceRejects(t *testing.T) {
	for _, in := range []string{"", "Free", "$0.00", "$0.001", "$100,000.01", "SKU 1002345678", "1.2.3", "..."} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePrice(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedPrice))
			assert.Equal(t, apperrors.KindMalformedPrice, apperrors.KindOf(err))
		})
	}
}

func TestParsePriceRoundTrip(t *testing.T) {
	for _, s := range []string{"0.01", "0.99", "19.02", "999.99", "1000.00", "12345.67", "99999.99", "100000.00"} {
		p := decimal.RequireFromString(s)
		got, err := ParsePrice(formatWithSeparators(p))
		require.NoError(t, err, s)
		assert.True(t, got.Equal(p), "%s parsed as %s", s, got)
	}
}

func formatWithSeparators(p decimal.Decimal) string {
	fixed := p.StringFixed(2)
	whole, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]
	out := ""
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out += ","
		}
		out += string(r)
	}
	return "$" + out + "." + frac
}

func TestFindPrices(t *testing.T) {
	content := `<div>Was $1,299.00</div><span class="x">now 7.03</span> sku 12345 rating 4.5`
	assert.Equal(t, []string{"1,299.00", "7.03"}, FindPrices(content))
	assert.Empty(t, FindPrices("no prices here"))
	assert.Equal(t, []string{"1234.56"}, FindPrices("Now $1234.56"))
	assert.Equal(t, []string{"12,34.50"}, FindPrices("odd grouping $12,34.50"))
}
