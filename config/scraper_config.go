package config

import (
	"fmt"
	"os"
	"time"

	"pennytrack/models"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is the desktop Chrome string presented to the retailer
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BrowserConfig controls the headless browser session
type BrowserConfig struct {
	Bin                string
	Headless           bool
	UserAgent          string
	ViewportWidth      int
	ViewportHeight     int
	NavigationTimeout  time.Duration
	SelectorTimeout    time.Duration
	PricingWaitTimeout time.Duration
	SettleDelay        time.Duration
}

// DiscoveryConfig controls clearance discovery across categories
type DiscoveryConfig struct {
	Categories     []models.Category
	MaxPerCategory int
	CategoryDelay  time.Duration
	LazyLoadWait   time.Duration
}

// DefaultCategories are scanned when no categories file is configured
func DefaultCategories() []models.Category {
	return []models.Category{
		{Name: "Christmas Trees", URL: "https://www.homedepot.com/b/Holiday-Decor-Christmas-Decorations-Christmas-Trees/N-5yc1vZc3tf"},
		{Name: "Power Tool Kits", URL: "https://www.homedepot.com/b/Tools-Power-Tools/N-5yc1vZc298"},
		{Name: "Holiday Lights", URL: "https://www.homedepot.com/b/Holiday-Decor-Christmas-Decorations-Christmas-Lights/N-5yc1vZc3tb"},
	}
}

// LoadBrowserConfig reads browser settings from the environment
func LoadBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Bin:                getEnv("CHROME_BIN", ""),
		Headless:           getEnvBool("HEADLESS", true),
		UserAgent:          getEnv("USER_AGENT", DefaultUserAgent),
		ViewportWidth:      getEnvInt("VIEWPORT_WIDTH", 1920),
		ViewportHeight:     getEnvInt("VIEWPORT_HEIGHT", 1080),
		NavigationTimeout:  getEnvDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		SelectorTimeout:    getEnvDuration("SELECTOR_TIMEOUT", 5*time.Second),
		PricingWaitTimeout: getEnvDuration("PRICING_WAIT_TIMEOUT", 10*time.Second),
		SettleDelay:        getEnvDuration("SETTLE_DELAY", 2*time.Second),
	}
}

// LoadDiscoveryConfig reads discovery settings, taking categories from
// CATEGORIES_FILE when set
func LoadDiscoveryConfig() (DiscoveryConfig, error) {
	cfg := DiscoveryConfig{
		Categories:     DefaultCategories(),
		MaxPerCategory: getEnvInt("MAX_PER_CATEGORY", 15),
		CategoryDelay:  getEnvDuration("CATEGORY_DELAY", 2*time.Second),
		LazyLoadWait:   getEnvDuration("LAZY_LOAD_WAIT", 2*time.Second),
	}

	if path := getEnv("CATEGORIES_FILE", ""); path != "" {
		categories, err := LoadCategories(path)
		if err != nil {
			return cfg, err
		}
		cfg.Categories = categories
	}
	return cfg, nil
}

type categoriesFile struct {
	Categories []models.Category `yaml:"categories"`
}

// LoadCategories parses a YAML file with a top-level categories list
func LoadCategories(path string) ([]models.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}

	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories file: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("categories file %s lists no categories", path)
	}
	for i, c := range f.Categories {
		if c.URL == "" {
			return nil, fmt.Errorf("category %d (%s) has no url", i, c.Name)
		}
	}
	return f.Categories, nil
}
