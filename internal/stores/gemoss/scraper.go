// Package gemoss extracts listings from gemoss.lv, a Magento storefront.
// Unit prices are derived from package sizes in the titles, including
// multipack notations like "200mlx3" and "2 x 10 gab.".
package gemoss

import (
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

	items := doc.Find("li.item.product")
	if items.Length() == 0 {
		return nil, &scrape.ExtractionError{URL: s.URL(), Reason: "no product items found"}
	}

	var products []models.Product
	items.Each(func(_ int, node *goquery.Selection) {
		if p, ok := fromItem(node); ok {
			products = append(products, p)
		}
	})

	return products, nil
}

func fromItem(node *goquery.Selection) (models.Product, bool) {
	nameLink := node.Find("strong.product-item-name a")
	title := strings.TrimSpace(nameLink.Text())
	if title == "" {
		return models.Product{}, false
	}

	p := models.Product{Title: title}
	p.ProductURL, _ = nameLink.Attr("href")

	quantity, sized := scrape.QuantityFromTitle(title)
	if sized {
		p.Unit = quantity.Unit
	}

	// The final price doubles as the retail price unless a struck-through
	// old price marks the listing as promoted.
	retail, hasRetail := scrape.ParseAmount(node.Find(`span[data-price-type='finalPrice'] .price`).Text())
	if old, ok := scrape.ParseAmount(node.Find("span.old-price .price-wrapper .price").Text()); ok {
		retail, hasRetail = old, true
	}
	if !hasRetail {
		return p, true
	}

	p.RetailPrice = models.PriceFacet{
		Amount:    scrape.Ptr(retail),
		UnitPrice: scrape.Ptr(scrape.ComparablePrice(retail, quantity)),
	}

	if special, ok := scrape.ParseAmount(node.Find("span.special-price .price-wrapper .price").Text()); ok {
		p.DiscountPrice = &models.PriceFacet{
			Amount:    scrape.Ptr(special),
			UnitPrice: scrape.Ptr(scrape.ComparablePrice(special, quantity)),
			Discount:  scrape.Percentage(retail, special),
		}
	}

	return p, true
}

func (e *Extractor) NextPageLink(s scrape.Session) (string, error) {
	doc, err := s.Document()
	if err != nil {
		return "", err
	}
	next, _ := doc.Find("li.item.pages-item-next a").First().Attr("href")
	return next, nil
}
