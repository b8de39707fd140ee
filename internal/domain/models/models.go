package models

import "time"

// PriceFacet is one pricing tier of a listing. Nil pointer fields mean the
// site did not publish that value; a nil facet on Product means the tier does
// not apply to the product at all.
type PriceFacet struct {
	Amount    *float64 `json:"amount"`
	UnitPrice *float64 `json:"unitPrice"`
	Discount  *float64 `json:"discount,omitempty"` // percentage, 0-100
}

// Product is a single observed listing at crawl time. Identity is derived
// downstream from (title, store); the crawler never assigns ids.
type Product struct {
	Title         string      `json:"title"`
	Unit          string      `json:"unit,omitempty"` // canonical: kg, l, gab.
	RetailPrice   PriceFacet  `json:"retailPrice"`
	DiscountPrice *PriceFacet `json:"discountPrice"`
	LoyaltyPrice  *PriceFacet `json:"loyaltyPrice,omitempty"`
	ProductURL    string      `json:"productUrl"`
}

// CategoryRef identifies a crawl starting point within a store.
type CategoryRef struct {
	RelativeLink string `json:"relativeLink" yaml:"relative_link"`
	Category     string `json:"category" yaml:"category"`
}

// Checkpoint is the durable snapshot written after every successful page.
// The head of RemainingCategories carries the resume link for the in-progress
// category; fully drained categories are absent from the slice.
type Checkpoint struct {
	DateTime            time.Time            `json:"dateTime"`
	StoreName           string               `json:"storeName"`
	Categories          map[string][]Product `json:"categories"`
	RemainingCategories []CategoryRef        `json:"remainingCategories"`
}

// Batch is a finished per-store crawl result, immutable once written.
type Batch struct {
	DateTime   time.Time            `json:"dateTime"`
	StoreName  string               `json:"storeName"`
	Categories map[string][]Product `json:"categories"`
}
