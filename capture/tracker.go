package capture

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"storepulse/api/models"
	"storepulse/api/utils"
)

const (
	buttonSelector      = "button, a"
	promoInputSelector  = "input"
	interactiveSelector = "a, button, [role=button], .btn"
	interactionTextMax  = 50
)

// Emitter receives typed events. dispatch.Dispatcher satisfies it.
type Emitter interface {
	Emit(eventType models.EventType, payload models.Payload)
}

type EmitterFunc func(models.EventType, models.Payload)

func (f EmitterFunc) Emit(t models.EventType, p models.Payload) { f(t, p) }

type Option func(*Tracker)

// WithObserver replaces the default StaticScan strategy.
func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

func WithClassifiers(c []Classifier) Option {
	return func(t *Tracker) { t.classifiers = c }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker instruments one page load. State lives for the lifetime of the page
// and is only touched from page listeners, so it needs no lock of its own.
type Tracker struct {
	page        *Page
	emitter     Emitter
	observer    Observer
	classifiers []Classifier
	now         func() time.Time

	installing    bool
	installed     bool
	unloaded      bool
	instrumented  map[claimKey]struct{}
	stopObserving context.CancelFunc

	loadedAt        time.Time
	cartEnteredAt   time.Time
	checkoutClicked bool

	counts map[models.EventType]int
}

func NewTracker(page *Page, emitter Emitter, opts ...Option) *Tracker {
	t := &Tracker{
		page:         page,
		emitter:      emitter,
		observer:     StaticScan{},
		classifiers:  DefaultClassifiers,
		now:          time.Now,
		instrumented: make(map[claimKey]struct{}),
		counts:       make(map[models.EventType]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Install instruments the page once it is complete. Called on a loading page
// it defers to the load event. Repeated calls are no-ops.
func (t *Tracker) Install() {
	t.page.Do(func() {
		if t.installing || t.installed {
			return
		}
		t.installing = true
		if t.page.readyState == ReadyComplete {
			t.install()
			return
		}
		t.page.AddDocumentListener(EventLoad, func(DOMEvent) { t.install() })
	})
}

func (t *Tracker) Installed() bool {
	var installed bool
	t.page.Do(func() { installed = t.installed })
	return installed
}

// Counts returns how many events of each type this tracker emitted.
func (t *Tracker) Counts() map[models.EventType]int {
	out := make(map[models.EventType]int)
	t.page.Do(func() {
		for k, v := range t.counts {
			out[k] = v
		}
	})
	return out
}

func (t *Tracker) CheckoutClicked() bool {
	var clicked bool
	t.page.Do(func() { clicked = t.checkoutClicked })
	return clicked
}

func (t *Tracker) install() {
	if t.installed {
		return
	}
	t.installed = true
	t.loadedAt = t.now()

	t.emitVisitorInfo()
	t.emitPageView()

	t.page.AddDocumentListener(EventClick, t.onDocumentClick)
	t.page.AddDocumentListener(EventUnload, t.onUnload)

	t.scan()
	ctx, cancel := context.WithCancel(context.Background())
	t.stopObserving = cancel
	t.observer.Attach(ctx, func() { t.page.Do(t.rescan) })
}

func (t *Tracker) rescan() {
	if t.unloaded {
		return
	}
	t.scan()
}

func (t *Tracker) emit(eventType models.EventType, payload models.Payload) {
	t.counts[eventType]++
	t.emitter.Emit(eventType, payload)
}

func (t *Tracker) emitVisitorInfo() {
	info := t.page.Info()
	t.emit(models.EventVisitorInfo, models.Payload{
		"user_agent": info.UserAgent,
		"language":   info.Language,
		"screen":     info.Screen,
		"referrer":   info.Referrer,
		"url":        t.page.Location().String(),
	})
}

func (t *Tracker) emitPageView() {
	loc := t.page.Location()
	t.emit(models.EventPageView, models.Payload{
		"url":      loc.String(),
		"path":     loc.Path,
		"title":    t.page.Title(),
		"referrer": t.page.Info().Referrer,
	})
}

// scan instruments every element not instrumented by an earlier scan.
// Must run under the page lock.
func (t *Tracker) scan() {
	doc := t.page.Document()

	doc.Find(buttonSelector).Each(func(_ int, el *goquery.Selection) {
		if !t.claim(el, "button") {
			return
		}
		node := el.Get(0)
		switch Classify(el, t.classifiers) {
		case CheckoutIntent:
			t.page.AddEventListener(node, EventClick, t.innermostOnly(node, t.onCheckoutClick))
		case CartIntent:
			t.page.AddEventListener(node, EventClick, t.innermostOnly(node, t.onCartClick))
		}
	})

	doc.Find(promoInputSelector).Each(func(_ int, el *goquery.Selection) {
		if Classify(el, t.classifiers) != PromoIntent || !t.claim(el, "promo") {
			return
		}
		t.instrumentPromo(el)
	})

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		if !t.claim(form, "form") {
			return
		}
		t.page.AddEventListener(form.Get(0), EventSubmit, t.onFormSubmit)
		if isCheckoutForm(form) {
			t.page.AddEventListener(form.Get(0), EventSubmit, t.onCheckoutSubmit)
		}
	})

	if t.cartEnteredAt.IsZero() && doc.Find(cartPageSelector).Length() > 0 {
		t.cartEnteredAt = t.now()
	}

	var products []map[string]any
	doc.Find(productSelector).Each(func(_ int, el *goquery.Selection) {
		// Markers inside a product card belong to that card.
		if el.ParentsFiltered(productSelector).Length() > 0 {
			return
		}
		if !t.claim(el, "impression") {
			return
		}
		products = append(products, extractFromContainer(el).Summary())
	})
	if len(products) > 0 {
		t.emit(models.EventProductImpressions, models.Payload{
			"products": products,
			"count":    len(products),
		})
	}
}

type claimKey struct {
	node *html.Node
	role string
}

// claim marks el's node as instrumented for role and reports whether it was new.
func (t *Tracker) claim(el *goquery.Selection, role string) bool {
	key := claimKey{node: el.Get(0), role: role}
	if _, seen := t.instrumented[key]; seen {
		return false
	}
	t.instrumented[key] = struct{}{}
	return true
}

// innermostOnly runs fn only when node is the closest button or link to the
// click target, so nested buttons fire once per click.
func (t *Tracker) innermostOnly(node *html.Node, fn Listener) Listener {
	return func(ev DOMEvent) {
		if t.page.Document().FindNodes(ev.Target).Closest(buttonSelector).Get(0) != node {
			return
		}
		fn(ev)
	}
}

func (t *Tracker) instrumentPromo(input *goquery.Selection) {
	node := input.Get(0)
	t.page.AddEventListener(node, EventChange, func(DOMEvent) {
		t.emitPromo(input)
	})

	scope := input.Closest("form")
	if scope.Length() == 0 {
		scope = input.Closest(containerSelector)
	}
	scope.Find("button, input[type=submit], input[type=button]").Each(func(_ int, btn *goquery.Selection) {
		if btn.Get(0) == node {
			return
		}
		label := btn.Text() + " " + btn.AttrOr("value", "")
		if !containsAny(fold(label), []string{"apply", "redeem", "use"}) {
			return
		}
		t.page.AddEventListener(btn.Get(0), EventClick, func(DOMEvent) {
			t.emitPromo(input)
		})
	})
}

func (t *Tracker) emitPromo(input *goquery.Selection) {
	code := strings.TrimSpace(input.AttrOr("value", ""))
	if code == "" {
		return
	}
	t.emit(models.EventApplyPromo, models.Payload{
		"code":  code,
		"field": input.AttrOr("name", ""),
	})
}

func (t *Tracker) onCartClick(ev DOMEvent) {
	el := t.page.Document().FindNodes(ev.Target)
	btn := el.Closest(buttonSelector)
	if btn.Length() == 0 {
		btn = el
	}
	payload := ExtractProduct(btn).Payload()
	payload["button_text"] = utils.Truncate(btn.Text(), interactionTextMax)
	t.emit(models.EventAddToCart, payload)
}

func (t *Tracker) onCheckoutClick(ev DOMEvent) {
	t.checkoutClicked = true
	el := t.page.Document().FindNodes(ev.Target)
	t.emit(models.EventBeginCheckout, models.Payload{
		"button_text": utils.Truncate(el.Closest(buttonSelector).Text(), interactionTextMax),
		"url":         t.page.Location().String(),
	})
}

func (t *Tracker) onFormSubmit(ev DOMEvent) {
	form := t.page.Document().FindNodes(ev.Target).Closest("form")
	t.emit(models.EventFormSubmission, models.Payload{
		"form_id":     form.AttrOr("id", ""),
		"action":      form.AttrOr("action", ""),
		"method":      strings.ToLower(form.AttrOr("method", "get")),
		"field_count": form.Find("input, select, textarea").Length(),
	})
}

func (t *Tracker) onCheckoutSubmit(ev DOMEvent) {
	form := t.page.Document().FindNodes(ev.Target).Closest("form")
	t.emit(models.EventPurchase, models.Payload{
		"form_id": form.AttrOr("id", ""),
		"action":  form.AttrOr("action", ""),
		"url":     t.page.Location().String(),
	})
}

func (t *Tracker) onDocumentClick(ev DOMEvent) {
	if ev.Target == nil {
		return
	}
	target := t.page.Document().FindNodes(ev.Target)
	el := target.Closest(interactiveSelector)
	if el.Length() == 0 {
		el = target
	}
	node := el.Get(0)
	tag := ""
	if node != nil && node.Type == html.ElementNode {
		tag = node.Data
	}
	payload := models.Payload{
		"element": tag,
		"text":    utils.Truncate(el.Text(), interactionTextMax),
		"id":      el.AttrOr("id", ""),
		"classes": strings.Fields(el.AttrOr("class", "")),
	}
	if href, ok := el.Attr("href"); ok {
		payload["href"] = href
	}
	t.emit(models.EventUserInteraction, payload)
}

func (t *Tracker) onUnload(DOMEvent) {
	t.unloaded = true
	if t.stopObserving != nil {
		t.stopObserving()
	}
	now := t.now()
	if !t.cartEnteredAt.IsZero() && !t.checkoutClicked {
		t.emit(models.EventCartAbandonment, models.Payload{
			"time_on_cart_ms": now.Sub(t.cartEnteredAt).Milliseconds(),
			"cart_items":      t.page.Document().Find(cartItemSelector).Length(),
			"url":             t.page.Location().String(),
		})
	}
	t.emit(models.EventPageExit, models.Payload{
		"time_on_page_ms": now.Sub(t.loadedAt).Milliseconds(),
		"url":             t.page.Location().String(),
	})
}
