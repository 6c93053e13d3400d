package capture

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Intent is the commerce meaning inferred for a page element.
type Intent int

const (
	Unclassified Intent = iota
	CartIntent
	CheckoutIntent
	PromoIntent
)

func (i Intent) String() string {
	switch i {
	case CartIntent:
		return "cart"
	case CheckoutIntent:
		return "checkout"
	case PromoIntent:
		return "promo"
	default:
		return "unclassified"
	}
}

// Classifier tags an element with Intent when Match reports true.
type Classifier struct {
	Intent Intent
	Match  func(sel *goquery.Selection) bool
}

// DefaultClassifiers are evaluated in order; the first match wins.
// Checkout precedes cart so "Buy now and pay" counts as checkout.
// Matching is loose: "Repayment plans" contains "pay".
var DefaultClassifiers = []Classifier{
	{Intent: CheckoutIntent, Match: TextContains("checkout", "pay", "purchase")},
	{Intent: CartIntent, Match: TextContains("cart", "basket", "buy")},
	{Intent: PromoIntent, Match: AttrContains([]string{"name", "placeholder"}, "promo", "coupon", "discount")},
}

// Classify returns the intent of the first classifier matching sel.
func Classify(sel *goquery.Selection, classifiers []Classifier) Intent {
	for _, c := range classifiers {
		if c.Match(sel) {
			return c.Intent
		}
	}
	return Unclassified
}

// TextContains matches elements whose text content contains any needle,
// case-insensitively.
func TextContains(needles ...string) func(*goquery.Selection) bool {
	return func(sel *goquery.Selection) bool {
		return containsAny(fold(sel.Text()), needles)
	}
}

// AttrContains matches elements where any of attrs contains any needle,
// case-insensitively.
func AttrContains(attrs []string, needles ...string) func(*goquery.Selection) bool {
	return func(sel *goquery.Selection) bool {
		for _, attr := range attrs {
			if v, ok := sel.Attr(attr); ok && containsAny(fold(v), needles) {
				return true
			}
		}
		return false
	}
}

func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
