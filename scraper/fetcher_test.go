package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pennytrack/apperrors"
	"pennytrack/config"
	"pennytrack/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBrowserConfig() config.BrowserConfig {
	return config.BrowserConfig{
		NavigationTimeout:  time.Second,
		SelectorTimeout:    time.Millisecond,
		PricingWaitTimeout: time.Millisecond,
		SettleDelay:        0,
	}
}

type brokenSessions struct{}

func (brokenSessions) Open(context.Context) (PageSession, error) {
	return nil, errors.New("chromium not found")
}

func TestFetchPrice(t *testing.T) {
	site := NewStaticSite(map[string]string{
		ProductURL("205594063"): `<html><body>
			<h1>Pre-Lit Spruce Tree</h1>
			<div data-testid="pricing"><span>$</span>0<span>.</span>03</div>
		</body></html>`,
	})
	sessions := &StaticSessions{Page: site}

	res, err := NewPriceFetcher(sessions, testBrowserConfig()).FetchPrice(context.Background(), " 205594063 ")
	require.NoError(t, err)
	assert.Equal(t, "205594063", res.SKU)
	assert.True(t, res.Price.Equal(decimal.RequireFromString("0.03")))
	assert.Equal(t, "https://www.homedepot.com/p/205594063", res.SourceURL)
	assert.Equal(t, MethodProductPage, res.Method)
	assert.False(t, res.FetchedAt.IsZero())

	opened, closed := sessions.Counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestFetchPriceNotFound(t *testing.T) {
	site := NewStaticSite(map[string]string{
		ProductURL("1000001"): `<html><body><h1>Garden Hose</h1><p>` +
			strings.Repeat("Kink resistant hose for everyday watering. ", 50) + `</p></body></html>`,
		ProductURL("1000002"): `<html><body><p>Sorry, the product you are trying to view is not currently available.</p></body></html>`,
	})
	fetcher := NewPriceFetcher(&StaticSessions{Page: site}, testBrowserConfig())

	for _, sku := range []string{"1000001", "1000002"} {
		_, err := fetcher.FetchPrice(context.Background(), sku)
		require.Error(t, err, sku)
		assert.True(t, apperrors.IsNotFound(err), sku)
		assert.False(t, apperrors.IsBlocked(err), sku)
	}
}

func TestFetchPriceBlocked(t *testing.T) {
	site := NewStaticSite(map[string]string{
		ProductURL("205594063"): `<html><head><title>Access Denied</title></head>
			<body>You don't have permission to access this page. Reference #18.4f2a</body></html>`,
	})

	_, err := NewPriceFetcher(&StaticSessions{Page: site}, testBrowserConfig()).FetchPrice(context.Background(), "205594063")
	require.Error(t, err)
	assert.True(t, apperrors.IsBlocked(err))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFetchPriceNavigationFailure(t *testing.T) {
	sessions := &StaticSessions{Page: NewStaticSite(map[string]string{})}

	_, err := NewPriceFetcher(sessions, testBrowserConfig()).FetchPrice(context.Background(), "205594063")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNavigation, apperrors.KindOf(err))
	assert.False(t, apperrors.IsNotFound(err))

	_, closed := sessions.Counts()
	assert.Equal(t, 1, closed)
}

func TestFetchPriceLaunchFailure(t *testing.T) {
	_, err := NewPriceFetcher(brokenSessions{}, testBrowserConfig()).FetchPrice(context.Background(), "205594063")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNavigation, apperrors.KindOf(err))
}

func TestFetchPriceRequiresSKU(t *testing.T) {
	_, err := NewPriceFetcher(brokenSessions{}, testBrowserConfig()).FetchPrice(context.Background(), "  ")
	assert.True(t, apperrors.IsValidation(err))
}

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{MaxPerCategory: 10}
}

func TestDiscover(t *testing.T) {
	category := "https://www.homedepot.com/b/Tools/N-5yc1vZc298"
	site := NewStaticSite(map[string]string{
		ClearanceURL(category): `<html><body>
			<div data-testid="product-header" data-productid="318142340">
				<h3 data-testid="product-title">M18 Drill Kit</h3>
			</div>
			<a href="/p/Impact-Driver/314571293">Impact Driver</a>
		</body></html>`,
	})
	sessions := &StaticSessions{Page: site}
	fetcher := NewCatalogFetcher(sessions, "0121", testBrowserConfig(), testDiscoveryConfig())

	got, err := fetcher.Discover(context.Background(), category, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.ClearanceCandidate{
		SKU:       "318142340",
		Name:      "M18 Drill Kit",
		StoreID:   "0121",
		SourceURL: "https://www.homedepot.com/p/318142340",
	}, got[0])
	assert.Equal(t, "Impact-Driver", got[1].SKU)
	assert.Equal(t, []string{category + "?NCNI-5"}, site.Visited())

	opened, closed := sessions.Counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestDiscoverAll(t *testing.T) {
	trees := models.Category{Name: "Trees", URL: "https://www.homedepot.com/b/Trees/N-1"}
	broken := models.Category{Name: "Broken", URL: "https://www.homedepot.com/b/Broken/N-2"}
	lights := models.Category{Name: "Lights", URL: "https://www.homedepot.com/b/Lights/N-3?sort=price"}

	site := NewStaticSite(map[string]string{
		ClearanceURL(trees.URL): `<html><body>
			<a href="/p/Spruce-Tree/1001">Spruce Tree</a>
			<a href="/p/Fir-Tree/1002">Fir Tree</a>
		</body></html>`,
		ClearanceURL(lights.URL): `<html><body>
			<a href="/p/Fir-Tree/1002">Fir Tree bundle</a>
			<a href="/p/LED-Strand/2001">LED Strand</a>
		</body></html>`,
	})
	sessions := &StaticSessions{Page: site}
	fetcher := NewCatalogFetcher(sessions, "0121", testBrowserConfig(), testDiscoveryConfig())

	report, err := fetcher.DiscoverAll(context.Background(), []models.Category{trees, broken, lights}, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, report.CategoriesScanned)
	assert.Equal(t, 3, report.Found)
	ids := []string{}
	for _, c := range report.Candidates {
		ids = append(ids, c.SKU)
	}
	assert.Equal(t, []string{"Spruce-Tree", "Fir-Tree", "LED-Strand"}, ids)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, broken.URL, report.Failures[0].Key)
	assert.Equal(t, string(apperrors.KindNavigation), report.Failures[0].Kind)

	assert.Equal(t, []string{
		trees.URL + "?NCNI-5",
		broken.URL + "?NCNI-5",
		lights.URL + "&NCNI-5",
	}, site.Visited())

	opened, closed := sessions.Counts()
	assert.Equal(t, 1, opened, "one session serves every category")
	assert.Equal(t, 1, closed)
}

func TestDiscoverAllEmpty(t *testing.T) {
	sessions := &StaticSessions{Page: NewStaticSite(nil)}
	fetcher := NewCatalogFetcher(sessions, "0121", testBrowserConfig(), testDiscoveryConfig())

	report, err := fetcher.DiscoverAll(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Zero(t, report.Found)
	assert.NotNil(t, report.Candidates)

	opened, _ := sessions.Counts()
	assert.Zero(t, opened)
}

func TestDiscoverAllWaitsBetweenCategories(t *testing.T) {
	a := models.Category{Name: "A", URL: "https://www.homedepot.com/b/A/N-1"}
	b := models.Category{Name: "B", URL: "https://www.homedepot.com/b/B/N-2"}
	site := NewStaticSite(map[string]string{
		ClearanceURL(a.URL): `<html><body></body></html>`,
		ClearanceURL(b.URL): `<html><body></body></html>`,
	})
	cfg := testDiscoveryConfig()
	cfg.CategoryDelay = 30 * time.Millisecond

	start := time.Now()
	_, err := NewCatalogFetcher(&StaticSessions{Page: site}, "0121", testBrowserConfig(), cfg).
		DiscoverAll(context.Background(), []models.Category{a, b}, 10)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 60*time.Millisecond*10)
}
