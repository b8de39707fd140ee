package scrape

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Quantity is a package size derived from a product title, already
// normalized to the canonical larger unit (grams to kilograms, milliliters
// to liters). Pieces keep the site's "gab." unit.
type Quantity struct {
	Unit string
	Size float64
}

var (
	rePieceMulti = regexp.MustCompile(`(?i)(\d+)\s?x\s?(\d+)\s?gab\.`)
	reMultiPack  = regexp.MustCompile(`(?i)(\d+[.,]?\d*)\s?(g|kg|ml|l)x(\d+)`)
	reWeight     = regexp.MustCompile(`(?i)(\d+[.,]?\d*)\s?(kg|g)\b`)
	reVolume     = regexp.MustCompile(`(?i)(\d+[.,]?\d*)\s?(l|ml)\b`)
	rePiece      = regexp.MustCompile(`(?i)(\d+)\s?gab\.`)
)

// QuantityFromTitle parses a package size out of a listing title, e.g.
// "Piens 2.5% 1l", "Siers 500g", "Olas 10 gab.", "Sula 200mlx3".
func QuantityFromTitle(title string) (Quantity, bool) {
	if m := rePieceMulti.FindStringSubmatch(title); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		return Quantity{Unit: "gab.", Size: float64(a * b)}, true
	}

	if m := reMultiPack.FindStringSubmatch(title); m != nil {
		per := parseDecimal(m[1])
		n, _ := strconv.Atoi(m[3])
		return normalize(Quantity{Unit: strings.ToLower(m[2]), Size: per * float64(n)}), true
	}

	if ms := reWeight.FindAllStringSubmatch(title, -1); ms != nil {
		return normalize(pick(ms, "kg", "g")), true
	}

	if ms := reVolume.FindAllStringSubmatch(title, -1); ms != nil {
		return normalize(pick(ms, "l", "ml")), true
	}

	if m := rePiece.FindStringSubmatch(title); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Quantity{Unit: "gab.", Size: float64(n)}, true
	}

	return Quantity{}, false
}

// pick keeps the largest matched size; the unit is the larger one as soon as
// any match uses it.
func pick(ms [][]string, large, small string) Quantity {
	q := Quantity{Unit: small}
	for _, m := range ms {
		if v := parseDecimal(m[1]); v > q.Size {
			q.Size = v
		}
		if strings.EqualFold(m[2], large) {
			q.Unit = large
		}
	}
	return q
}

// parseDecimal reads a number that may use a comma as the decimal separator.
func parseDecimal(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return v
}

func normalize(q Quantity) Quantity {
	switch q.Unit {
	case "g":
		return Quantity{Unit: "kg", Size: q.Size / 1000}
	case "ml":
		return Quantity{Unit: "l", Size: q.Size / 1000}
	}
	return q
}

// ComparablePrice derives the per-unit price for a quantity, rounded to
// cents. Returns amount unchanged when the quantity is unusable, matching
// how the sites fall back for unsized products.
func ComparablePrice(amount float64, q Quantity) float64 {
	if q.Size <= 0 {
		return amount
	}
	return Round2(amount / q.Size)
}

// ParseAmount reads a price out of display text like "2,50 EUR" or "1.89 €".
func ParseAmount(s string) (float64, bool) {
	s = strings.NewReplacer(" ", " ", "€", "", "EUR", "", ",", ".").Replace(s)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Percentage is the whole-percent discount of a reduced price against the
// full one. Nil when the full price is unusable.
func Percentage(full, reduced float64) *float64 {
	if full <= 0 {
		return nil
	}
	return Ptr(math.Round((full - reduced) / full * 100))
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ptr is a convenience for the optional facet fields.
func Ptr(v float64) *float64 { return &v }
