// Package rimi extracts listings from rimi.lv category pages. Prices live in
// styled DOM fragments (whole euros in a span, cents in a sup) with a
// "€/unit" line next to them; loyalty prices sit in a separate price label
// for MansRimi card holders.
package rimi

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricecrawler/internal/domain/models"
	"pricecrawler/internal/scrape"
)

type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) ExtractProducts(s scrape.Session) ([]models.Product, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}

	containers := doc.Find("div.js-product-container")
	if containers.Length() == 0 {
		return nil, &scrape.ExtractionError{URL: s.URL(), Reason: "no product containers found"}
	}

	var products []models.Product
	containers.Each(func(_ int, node *goquery.Selection) {
		products = append(products, fromContainer(node))
	})

	return products, nil
}

func fromContainer(node *goquery.Selection) models.Product {
	p := models.Product{Title: title(node)}
	p.ProductURL, _ = node.Find("a.card__url").Attr("href")

	hasDiscount := node.Find("div.card__price-wrapper").HasClass("-has-discount")
	amount, ok := taggedPrice(node.Find("div.price-tag.card__price"))

	if hasDiscount && ok {
		unitPrice, unit := pricePer(node.Find("p.card__price-per").Text())
		p.Unit = unit
		discount := &models.PriceFacet{
			Amount:    scrape.Ptr(amount),
			UnitPrice: unitPrice,
		}
		p.DiscountPrice = discount

		if old, ok := scrape.ParseAmount(node.Find("div.old-price-tag.card__old-price span").Text()); ok {
			p.RetailPrice.Amount = scrape.Ptr(old)
			if unitPrice != nil && amount > 0 {
				p.RetailPrice.UnitPrice = scrape.Ptr(scrape.Round2(old / amount * *unitPrice))
			}
			discount.Discount = scrape.Percentage(old, amount)
		}
	} else if ok {
		unitPrice, unit := pricePer(node.Find("p.card__price-per").Text())
		p.Unit = unit
		p.RetailPrice = models.PriceFacet{
			Amount:    scrape.Ptr(amount),
			UnitPrice: unitPrice,
		}
	}

	if loyalty := loyaltyFacet(node, p.RetailPrice.Amount); loyalty != nil {
		p.LoyaltyPrice = loyalty
	}

	return p
}

func title(node *goquery.Selection) string {
	if t := strings.TrimSpace(node.Find("p.card__name").Text()); t != "" {
		return t
	}
	// Fallback to the analytics payload when the name node is missing.
	if raw, ok := node.Attr("data-gtm-eec-product"); ok {
		var payload struct {
			Name string `json:"name"`
		}
		if json.Unmarshal([]byte(raw), &payload) == nil {
			return payload.Name
		}
	}
	return ""
}

func loyaltyFacet(node *goquery.Selection, retailAmount *float64) *models.PriceFacet {
	label := node.Find(`div.price-label[title*='MansRimi kartes lietotājiem']`)
	if label.Length() == 0 {
		return nil
	}

	major := label.Find("div.price-label__price span.major").Text()
	minor := label.Find("div.price-label__price div.minor span.cents").Text()
	amount, ok := combine(major, minor)
	if !ok {
		return nil
	}

	facet := &models.PriceFacet{Amount: scrape.Ptr(amount)}
	if unitPrice, _ := pricePer(label.Find("div.price-per-unit").Text()); unitPrice != nil {
		facet.UnitPrice = unitPrice
	}
	if retailAmount != nil {
		facet.Discount = scrape.Percentage(*retailAmount, amount)
	}
	return facet
}

// taggedPrice reads a split price tag: whole euros in the span, cents in the
// sup element.
func taggedPrice(tag *goquery.Selection) (float64, bool) {
	return combine(tag.Find("span").First().Text(), tag.Find("sup").First().Text())
}

func combine(major, minor string) (float64, bool) {
	whole, ok := scrape.ParseAmount(major)
	if !ok {
		return 0, false
	}
	cents, ok := scrape.ParseAmount("0." + strings.TrimSpace(minor))
	if !ok {
		return 0, false
	}
	return scrape.Round2(whole + cents), true
}

// pricePer splits display text like "1,50 €/kg" into the comparable price
// and its unit.
func pricePer(text string) (*float64, string) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	parts := strings.SplitN(text, " €/", 2)
	if len(parts) != 2 {
		return nil, ""
	}
	v, ok := scrape.ParseAmount(parts[0])
	if !ok {
		return nil, ""
	}
	return scrape.Ptr(v), strings.TrimSpace(parts[1])
}

func (e *Extractor) NextPageLink(s scrape.Session) (string, error) {
	doc, err := s.Document()
	if err != nil {
		return "", err
	}
	next, _ := doc.Find(`a[aria-label*='Next'], a[rel='next']`).First().Attr("href")
	return next, nil
}
