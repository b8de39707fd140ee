// Package cesars extracts listings from cesarsgarsa.lv. The site publishes
// no comparable prices, so unit prices are derived from package sizes in the
// titles. Listing pages are not paginated.
package cesars

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricecrawler/internal/domain/models"
	"pricecrawler/internal/scrape"
)

// Placeholder brand used for unbranded produce; not worth prefixing.
const genericBrand = "DAŽĀDI PRODUKTI"

type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) ExtractProducts(s scrape.Session) ([]models.Product, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}

	items := doc.Find("div.item[data-row]")
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
	alt, _ := node.Find(".img img").Attr("alt")
	title := strings.ReplaceAll(strings.TrimSpace(alt), ",", "")
	if title == "" {
		return models.Product{}, false
	}

	if brand := strings.TrimSpace(node.Find(".product-brand").Text()); brand != "" && brand != genericBrand {
		title = brand + " " + title
	}

	p := models.Product{Title: title}
	p.ProductURL, _ = node.Find(".product-link").Attr("href")

	quantity, sized := scrape.QuantityFromTitle(title)
	if sized {
		p.Unit = quantity.Unit
	}

	price, hasPrice := scrape.ParseAmount(node.Find(".product-price .price").Text())
	oldPrice, hasOld := scrape.ParseAmount(node.Find(".product-price .old-price").Text())

	switch {
	case hasOld && hasPrice:
		// Struck-through price is the retail one, the visible price the
		// promotion.
		p.RetailPrice = models.PriceFacet{
			Amount:    scrape.Ptr(oldPrice),
			UnitPrice: scrape.Ptr(scrape.ComparablePrice(oldPrice, quantity)),
		}
		p.DiscountPrice = &models.PriceFacet{
			Amount:    scrape.Ptr(price),
			UnitPrice: scrape.Ptr(scrape.ComparablePrice(price, quantity)),
			Discount:  scrape.Percentage(oldPrice, price),
		}
	case hasPrice:
		p.RetailPrice = models.PriceFacet{
			Amount:    scrape.Ptr(price),
			UnitPrice: scrape.Ptr(scrape.ComparablePrice(price, quantity)),
		}
	}

	return p, true
}

func (e *Extractor) NextPageLink(s scrape.Session) (string, error) {
	return "", nil
}
