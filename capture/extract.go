package capture

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"storepulse/api/models"
)

// Sentinels substituted when a product datum can't be found.
const (
	UnknownProductID = "unknown_id"
	UnknownProduct   = "Unknown Product"
	UnknownPrice     = "Unknown Price"
)

const (
	containerSelector = "div, section, article"
	titleSelector     = "h1, h2, h3, .product-title, [data-product-title]"
	priceSelector     = ".price, [data-price], .product-price, [itemprop=price]"
	productSelector   = ".product, .product-item, .product-card, [data-product-id]"
	cartPageSelector  = "#cart, .cart-page, [data-cart-page], .shopping-cart"
	cartItemSelector  = ".cart-item, [data-cart-item]"
)

// ProductContext is what could be learned about the product near an element.
type ProductContext struct {
	ID    string
	Name  string
	Price string
	Image string
}

func (c ProductContext) Payload() models.Payload {
	return models.Payload{
		"product_id": c.ID,
		"product":    c.Name,
		"price":      c.Price,
		"image":      c.Image,
	}
}

// Summary is the compact form used in product_impressions.
func (c ProductContext) Summary() map[string]any {
	return map[string]any{
		"id":    c.ID,
		"name":  c.Name,
		"price": c.Price,
	}
}

// ExtractProduct walks up from el to the nearest div, section or article and
// reads the product title, price, id and image from it.
func ExtractProduct(el *goquery.Selection) ProductContext {
	container := el.Closest(containerSelector)
	ctx := extractFromContainer(container)
	if id, ok := el.Attr("data-product-id"); ok && strings.TrimSpace(id) != "" {
		ctx.ID = strings.TrimSpace(id)
	}
	return ctx
}

func extractFromContainer(container *goquery.Selection) ProductContext {
	ctx := ProductContext{
		ID:    UnknownProductID,
		Name:  UnknownProduct,
		Price: UnknownPrice,
	}
	if container.Length() == 0 {
		return ctx
	}

	if v := firstAttr(container, "data-product-title"); v != "" {
		ctx.Name = v
	} else if title := container.Find(titleSelector).First(); title.Length() > 0 {
		if v := firstAttr(title, "data-product-title"); v != "" {
			ctx.Name = v
		} else if v := strings.TrimSpace(title.Text()); v != "" {
			ctx.Name = v
		}
	}

	if v := firstAttr(container, "data-price"); v != "" {
		ctx.Price = v
	} else if price := container.Find(priceSelector).First(); price.Length() > 0 {
		if v := strings.TrimSpace(price.Text()); v != "" {
			ctx.Price = v
		} else if v := firstAttr(price, "data-price", "content"); v != "" {
			ctx.Price = v
		}
	}

	if v := firstAttr(container, "data-product-id", "data-id"); v != "" {
		ctx.ID = v
	} else if inner := container.Find("[data-product-id]").First(); inner.Length() > 0 {
		if v := firstAttr(inner, "data-product-id"); v != "" {
			ctx.ID = v
		}
	}

	if src, ok := container.Find("img").First().Attr("src"); ok {
		ctx.Image = src
	}
	return ctx
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// isCheckoutForm reports whether form looks like a checkout: it has an email
// field and an address-like or card-like named field.
func isCheckoutForm(form *goquery.Selection) bool {
	if form.Find("input[type=email]").Length() == 0 {
		return false
	}
	found := false
	form.Find("input, select, textarea").EachWithBreak(func(_ int, in *goquery.Selection) bool {
		name := fold(in.AttrOr("name", ""))
		if containsAny(name, []string{"address", "street", "city", "zip", "postal"}) ||
			containsAny(name, []string{"card", "cc-", "cc_", "cvv", "cvc", "expiry"}) {
			found = true
			return false
		}
		return true
	})
	return found
}
