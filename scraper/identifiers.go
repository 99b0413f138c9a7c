package scraper

import (
	"strings"
)

const (
	// RetailerHost serves every product and category page
	RetailerHost = "www.homedepot.com"

	// ProductURLBase prefixes a SKU to form its product page
	ProductURLBase = "https://" + RetailerHost + "/p/"

	// ClearanceTrigger filters a category listing down to clearance inventory
	ClearanceTrigger = "NCNI-5"

	minIdentifierLength = 4
)

// ProductURL returns the canonical product page for sku
func ProductURL(sku string) string {
	return ProductURLBase + strings.TrimSpace(sku)
}

// ClearanceURL appends the clearance trigger to a category URL
func ClearanceURL(categoryURL string) string {
	if strings.Contains(categoryURL, "?") {
		return categoryURL + "&" + ClearanceTrigger
	}
	return categoryURL + "?" + ClearanceTrigger
}

// ExtractIdentifier pulls the SKU out of an href of the form .../p/<sku>/...
func ExtractIdentifier(href string) (string, bool) {
	_, rest, found := strings.Cut(href, "/p/")
	if !found {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "/")
	id, _, _ = strings.Cut(id, "?")
	return validIdentifier(id)
}

// validIdentifier trims id and discards values too short to be a SKU
func validIdentifier(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if len(id) < minIdentifierLength {
		return "", false
	}
	return id, true
}
