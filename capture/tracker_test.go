package capture

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/models"
)

type recorded struct {
	Type    models.EventType
	Payload models.Payload
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Emit(t models.EventType, p models.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{Type: t, Payload: p})
}

func (r *recorder) ofType(t models.EventType) []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recorded
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTrackedPage(t *testing.T, body string, opts ...Option) (*Page, *Tracker, *recorder) {
	t.Helper()
	page, err := ParsePageString("<html><head><title>Shop</title></head><body>"+body+"</body></html>",
		"https://shop.example/products/widget", PageInfo{UserAgent: "test-agent", Language: "en"})
	require.NoError(t, err)
	rec := &recorder{}
	tr := NewTracker(page, rec, opts...)
	page.MarkComplete()
	tr.Install()
	return page, tr, rec
}

func TestTracker_AddToCartScenario(t *testing.T) {
	page, _, rec := newTrackedPage(t, `
		<div class="card">
			<h2>Widget</h2>
			<span class="price">$9.99</span>
			<button id="add">Add to Cart</button>
		</div>`)

	require.NoError(t, page.Click("#add"))

	carts := rec.ofType(models.EventAddToCart)
	require.Len(t, carts, 1)
	assert.Equal(t, "Widget", carts[0].Payload["product"])
	assert.Equal(t, "$9.99", carts[0].Payload["price"])
	assert.Equal(t, UnknownProductID, carts[0].Payload["product_id"])
	assert.Equal(t, "", carts[0].Payload["image"])
}

func TestTracker_AddToCartMissingPriceUsesSentinel(t *testing.T) {
	page, _, rec := newTrackedPage(t, `
		<section data-product-id="sku-1">
			<h3>Gadget</h3>
			<img src="/g.png">
			<a href="#" class="buy">Buy now</a>
		</section>`)

	require.NoError(t, page.Click("a.buy"))

	carts := rec.ofType(models.EventAddToCart)
	require.Len(t, carts, 1)
	assert.Equal(t, UnknownPrice, carts[0].Payload["price"])
	assert.Equal(t, "Gadget", carts[0].Payload["product"])
	assert.Equal(t, "sku-1", carts[0].Payload["product_id"])
	assert.Equal(t, "/g.png", carts[0].Payload["image"])
}

func TestTracker_AddToCartOutsideContainer(t *testing.T) {
	page, _, rec := newTrackedPage(t, `<button id="b">Add to basket</button>`)

	require.NoError(t, page.Click("#b"))

	carts := rec.ofType(models.EventAddToCart)
	require.Len(t, carts, 1)
	assert.Equal(t, UnknownProduct, carts[0].Payload["product"])
	assert.Equal(t, UnknownPrice, carts[0].Payload["price"])
	assert.Equal(t, UnknownProductID, carts[0].Payload["product_id"])
}

func TestTracker_NestedCartButtonFiresOnce(t *testing.T) {
	page, _, rec := newTrackedPage(t, `
		<div class="card">
			<h2>Widget</h2>
			<a href="/p/widget" id="link"><button id="add">Add to Cart</button> Add to cart page</a>
		</div>`)

	require.NoError(t, page.Click("#add"))
	carts := rec.ofType(models.EventAddToCart)
	require.Len(t, carts, 1)
	assert.Equal(t, "Add to Cart", carts[0].Payload["button_text"])

	require.NoError(t, page.Click("#link"))
	assert.Len(t, rec.ofType(models.EventAddToCart), 2)
}

func TestTracker_NestedCheckoutButtonFiresOnce(t *testing.T) {
	page, tr, rec := newTrackedPage(t, `<a href="/checkout"><button id="go">Checkout</button></a>`)

	require.NoError(t, page.Click("#go"))
	assert.Len(t, rec.ofType(models.EventBeginCheckout), 1)
	assert.True(t, tr.CheckoutClicked())
}

func TestTracker_CheckoutFormSubmit(t *testing.T) {
	page, tr, rec := newTrackedPage(t, `
		<form id="checkout" action="/order" method="POST">
			<input type="email" name="email">
			<input name="card_number">
			<input type="submit" value="Place order">
		</form>`)

	require.NoError(t, page.Submit("#checkout"))

	assert.Len(t, rec.ofType(models.EventPurchase), 1)
	assert.Len(t, rec.ofType(models.EventFormSubmission), 1)

	counts := tr.Counts()
	assert.Equal(t, 1, counts[models.EventPurchase])
	assert.Equal(t, 1, counts[models.EventFormSubmission])

	sub := rec.ofType(models.EventFormSubmission)[0]
	assert.Equal(t, "checkout", sub.Payload["form_id"])
	assert.Equal(t, "post", sub.Payload["method"])
	assert.Equal(t, 3, sub.Payload["field_count"])
}

func TestTracker_NonCheckoutFormOnlyCountsSubmission(t *testing.T) {
	page, _, rec := newTrackedPage(t, `
		<form id="newsletter">
			<input type="email" name="email">
			<input name="first_name">
		</form>`)

	require.NoError(t, page.Submit("#newsletter"))

	assert.Empty(t, rec.ofType(models.EventPurchase))
	assert.Len(t, rec.ofType(models.EventFormSubmission), 1)
}

func TestTracker_AddressFormIsCheckout(t *testing.T) {
	page, _, rec := newTrackedPage(t, `
		<form id="ship">
			<input type="email" name="contact">
			<input name="shipping_address">
		</form>`)

	require.NoError(t, page.Submit("#ship"))
	assert.Len(t, rec.ofType(models.EventPurchase), 1)
}

func TestTracker_CartAbandonmentOnUnload(t *testing.T) {
	start := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	now := start
	page, _, rec := newTrackedPage(t, `
		<div id="cart"><div class="cart-item">A</div><div class="cart-item">B</div></div>`,
		WithClock(func() time.Time { return now }))

	now = start.Add(90 * time.Second)
	page.Unload()
	page.Unload()

	abandoned := rec.ofType(models.EventCartAbandonment)
	require.Len(t, abandoned, 1)
	assert.Equal(t, int64(90000), abandoned[0].Payload["time_on_cart_ms"])
	assert.Equal(t, 2, abandoned[0].Payload["cart_items"])
	assert.Len(t, rec.ofType(models.EventPageExit), 1)
}

func TestTracker_NoAbandonmentAfterCheckoutClick(t *testing.T) {
	page, tr, rec := newTrackedPage(t, `
		<div id="cart">
			<div class="cart-item">A</div>
			<button id="go">Proceed to Checkout</button>
		</div>`)

	require.NoError(t, page.Click("#go"))
	page.Unload()

	assert.True(t, tr.CheckoutClicked())
	assert.Len(t, rec.ofType(models.EventBeginCheckout), 1)
	assert.Empty(t, rec.ofType(models.EventCartAbandonment))
	assert.Len(t, rec.ofType(models.EventPageExit), 1)
}

func TestTracker_NoAbandonmentWithoutCartMarker(t *testing.T) {
	page, _, rec := newTrackedPage(t, `<p>About us</p>`)
	page.Unload()
	assert.Empty(t, rec.ofType(models.EventCartAbandonment))
}

func TestTracker_GenericInteraction(t *testing.T) {
	long := strings.Repeat("x", 80)
	page, _, rec := newTrackedPage(t, `
		<a id="nav" class="nav-link main" href="/sale"><span id="inner">`+long+`</span></a>
		<p id="plain">Hello</p>`)

	require.NoError(t, page.Click("#inner"))
	require.NoError(t, page.Click("#plain"))

	got := rec.ofType(models.EventUserInteraction)
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].Payload["element"])
	assert.Equal(t, "nav", got[0].Payload["id"])
	assert.Equal(t, []string{"nav-link", "main"}, got[0].Payload["classes"])
	assert.Equal(t, "/sale", got[0].Payload["href"])
	assert.Len(t, got[0].Payload["text"], 50)

	assert.Equal(t, "p", got[1].Payload["element"])
	assert.Equal(t, "Hello", got[1].Payload["text"])
	_, hasHref := got[1].Payload["href"]
	assert.False(t, hasHref)
}

func TestTracker_ProductImpressionsInOneEvent(t *testing.T) {
	_, _, rec := newTrackedPage(t, `
		<div class="product" data-product-id="sku-1"><h3>One</h3><span class="price">$1</span></div>
		<div class="product" data-product-id="sku-2"><h3>Two</h3></div>`)

	imps := rec.ofType(models.EventProductImpressions)
	require.Len(t, imps, 1)
	assert.Equal(t, 2, imps[0].Payload["count"])

	products := imps[0].Payload["products"].([]map[string]any)
	require.Len(t, products, 2)
	assert.Equal(t, "sku-1", products[0]["id"])
	assert.Equal(t, "One", products[0]["name"])
	assert.Equal(t, "$1", products[0]["price"])
	assert.Equal(t, UnknownPrice, products[1]["price"])
}

func TestTracker_ProductMarkersInsideCardCountOnce(t *testing.T) {
	_, _, rec := newTrackedPage(t, `
		<div class="product" data-product-id="sku-1">
			<h3>One</h3><span class="price">$1</span>
			<button data-product-id="sku-1">Add to cart</button>
		</div>`)

	imps := rec.ofType(models.EventProductImpressions)
	require.Len(t, imps, 1)
	assert.Equal(t, 1, imps[0].Payload["count"])
	products := imps[0].Payload["products"].([]map[string]any)
	require.Len(t, products, 1)
	assert.Equal(t, "One", products[0]["name"])
}

func TestTracker_LifecycleEventsOnInstall(t *testing.T) {
	_, _, rec := newTrackedPage(t, `<p>hi</p>`)

	visitors := rec.ofType(models.EventVisitorInfo)
	require.Len(t, visitors, 1)
	assert.Equal(t, "test-agent", visitors[0].Payload["user_agent"])

	views := rec.ofType(models.EventPageView)
	require.Len(t, views, 1)
	assert.Equal(t, "/products/widget", views[0].Payload["path"])
	assert.Equal(t, "Shop", views[0].Payload["title"])
}

func TestTracker_InstallWaitsForReadyAndRunsOnce(t *testing.T) {
	page, err := ParsePageString(`<html><body><button id="b">Add to cart</button></body></html>`,
		"https://shop.example/", PageInfo{})
	require.NoError(t, err)
	rec := &recorder{}
	tr := NewTracker(page, rec)

	tr.Install()
	assert.False(t, tr.Installed())
	assert.Empty(t, rec.ofType(models.EventPageView))

	page.MarkComplete()
	tr.Install()
	page.MarkComplete()

	assert.True(t, tr.Installed())
	assert.Len(t, rec.ofType(models.EventPageView), 1)

	require.NoError(t, page.Click("#b"))
	assert.Len(t, rec.ofType(models.EventAddToCart), 1)
}

func TestTracker_StaticScanIgnoresInjectedElements(t *testing.T) {
	page, _, rec := newTrackedPage(t, `<div id="grid"></div>`)

	require.NoError(t, page.Append("#grid", `<button id="late">Add to cart</button>`))
	require.NoError(t, page.Click("#late"))

	assert.Empty(t, rec.ofType(models.EventAddToCart))
	// The document-level listener still sees the click.
	assert.Len(t, rec.ofType(models.EventUserInteraction), 1)
}

func TestTracker_ManualRescanInstrumentsOnce(t *testing.T) {
	obs := &ManualRescan{}
	page, _, rec := newTrackedPage(t, `<div id="grid"><button id="early">Add to cart</button></div>`, WithObserver(obs))

	require.NoError(t, page.Append("#grid", `<div class="product" data-product-id="sku-9"><button id="late">Add to cart</button></div>`))
	require.True(t, obs.Rescan())
	require.True(t, obs.Rescan())

	require.NoError(t, page.Click("#late"))
	require.NoError(t, page.Click("#early"))

	carts := rec.ofType(models.EventAddToCart)
	require.Len(t, carts, 2)
	assert.Equal(t, "sku-9", carts[0].Payload["product_id"])

	imps := rec.ofType(models.EventProductImpressions)
	require.Len(t, imps, 1)
	assert.Equal(t, 1, imps[0].Payload["count"])
}

func TestTracker_ManualRescanStopsAfterUnload(t *testing.T) {
	obs := &ManualRescan{}
	page, _, _ := newTrackedPage(t, `<div id="grid"></div>`, WithObserver(obs))

	require.True(t, obs.Rescan())
	page.Unload()
	assert.False(t, obs.Rescan())
}

func TestTracker_PollingRescan(t *testing.T) {
	page, _, rec := newTrackedPage(t, `<div id="grid"></div>`,
		WithObserver(PollingRescan{Interval: 5 * time.Millisecond}))

	require.NoError(t, page.Append("#grid", `<button id="late">Add to cart</button>`))
	require.Eventually(t, func() bool {
		if err := page.Click("#late"); err != nil {
			return false
		}
		return len(rec.ofType(models.EventAddToCart)) > 0
	}, time.Second, 10*time.Millisecond)

	page.Unload()
	require.NoError(t, page.Append("#grid", `<button id="later">Add to cart</button>`))
	time.Sleep(30 * time.Millisecond)
	before := len(rec.ofType(models.EventAddToCart))
	require.NoError(t, page.Click("#later"))
	assert.Len(t, rec.ofType(models.EventAddToCart), before)
}

func TestTracker_PromoCodeOnChangeAndApply(t *testing.T) {
	page, _, rec := newTrackedPage(t, `
		<form id="promo-form">
			<input name="coupon_code" id="code">
			<button type="button" id="apply">Apply</button>
		</form>`)

	require.NoError(t, page.Change("#code", ""))
	assert.Empty(t, rec.ofType(models.EventApplyPromo))

	require.NoError(t, page.Change("#code", " SAVE10 "))
	require.NoError(t, page.Click("#apply"))

	promos := rec.ofType(models.EventApplyPromo)
	require.Len(t, promos, 2)
	assert.Equal(t, "SAVE10", promos[0].Payload["code"])
	assert.Equal(t, "coupon_code", promos[1].Payload["field"])
}

func TestPage_ClickUnknownSelector(t *testing.T) {
	page, _, _ := newTrackedPage(t, `<p>hi</p>`)
	err := page.Click("#missing")
	assert.ErrorIs(t, err, ErrNoMatch)
}
