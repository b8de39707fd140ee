// Package barbora extracts listings from barbora.lv category pages. Product
// data is embedded as JSON in the data-b-for-cart attribute of each card.
package barbora

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricecrawler/internal/domain/models"
	"pricecrawler/internal/scrape"
)

const productURLPrefix = "https://barbora.lv/produkti/"

type Extractor struct{}

func New() *Extractor { return &Extractor{} }

type cardAttrs struct {
	Title                string      `json:"title"`
	URL                  string      `json:"Url"`
	Price                float64     `json:"price"`
	RetailPrice          *float64    `json:"retail_price"`
	ComparativeUnit      string      `json:"comparative_unit"`
	ComparativeUnitPrice json.Number `json:"comparative_unit_price"`
	Promotion            *promotion  `json:"promotion"`
}

type promotion struct {
	Type               string      `json:"type"`
	Percentage         float64     `json:"percentage"`
	OldComparativeRate json.Number `json:"oldComparativeRate"`
}

const (
	promoDiscount = "DISCOUNT_PRICE"
	promoLoyalty  = "LOYALTY_PRICE"
)

func (e *Extractor) ExtractProducts(s scrape.Session) ([]models.Product, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}

	cards := doc.Find(`[id^='fti-product-card-category-page-']`)
	if cards.Length() == 0 {
		return nil, &scrape.ExtractionError{URL: s.URL(), Reason: "no product cards found"}
	}

	var products []models.Product
	var parseErr error
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		raw, ok := card.Attr("data-b-for-cart")
		if !ok {
			return true
		}

		var attrs cardAttrs
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			parseErr = fmt.Errorf("parse card attributes: %w", err)
			return false
		}

		products = append(products, fromCard(attrs))
		return true
	})
	if parseErr != nil {
		return nil, &scrape.ExtractionError{URL: s.URL(), Reason: parseErr.Error()}
	}

	return products, nil
}

func fromCard(attrs cardAttrs) models.Product {
	retailAmount := attrs.Price
	if attrs.RetailPrice != nil {
		retailAmount = *attrs.RetailPrice
	}

	p := models.Product{
		Title: attrs.Title,
		Unit:  attrs.ComparativeUnit,
		RetailPrice: models.PriceFacet{
			Amount:    scrape.Ptr(scrape.Round2(retailAmount)),
			UnitPrice: roundedNumber(attrs.ComparativeUnitPrice),
		},
		ProductURL: productURLPrefix + attrs.URL,
	}

	if attrs.Promotion == nil {
		return p
	}

	switch attrs.Promotion.Type {
	case promoDiscount:
		// The card's current price and comparative rate are the promoted
		// ones; the pre-promotion comparative rate moves to the retail facet.
		p.DiscountPrice = &models.PriceFacet{
			Amount:    scrape.Ptr(scrape.Round2(attrs.Price)),
			UnitPrice: roundedNumber(attrs.ComparativeUnitPrice),
			Discount:  scrape.Ptr(attrs.Promotion.Percentage),
		}
		if old := roundedNumber(attrs.Promotion.OldComparativeRate); old != nil {
			p.RetailPrice.UnitPrice = old
		}
	case promoLoyalty:
		p.LoyaltyPrice = &models.PriceFacet{
			Amount:    scrape.Ptr(scrape.Round2(attrs.Price)),
			UnitPrice: roundedNumber(attrs.ComparativeUnitPrice),
			Discount:  scrape.Ptr(attrs.Promotion.Percentage),
		}
	}

	return p
}

func roundedNumber(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	v, err := n.Float64()
	if err != nil {
		return nil
	}
	return scrape.Ptr(scrape.Round2(v))
}

// NextPageLink finds the pagination arrow. Barbora renders the last page
// with the arrow pointing at itself, which counts as no next page.
func (e *Extractor) NextPageLink(s scrape.Session) (string, error) {
	doc, err := s.Document()
	if err != nil {
		return "", err
	}

	var next string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(a.Text(), "»") {
			return true
		}
		next, _ = a.Attr("href")
		return false
	})
	if next == "" {
		return "", nil
	}

	cur, err := url.Parse(s.URL())
	if err != nil {
		return "", fmt.Errorf("parse current url: %w", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next page link %q: %w", next, err)
	}
	abs := cur.ResolveReference(ref).String()
	if abs == cur.String() {
		return "", nil
	}
	return abs, nil
}
