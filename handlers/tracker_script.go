package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"storepulse/api/channel"
)

// ScriptConfig holds the defaults baked into /tracker.js. A page can
// override any of them with window.StorePulseConfig before the script loads.
type ScriptConfig struct {
	Endpoint string
	StoreID  string
	Platform string
	QueueFn  string
	Topic    string
}

// TrackerScript serves the injectable instrumentation script.
func (h *AnalyticsHandlers) TrackerScript(c *gin.Context) {
	cfg := h.Script
	if cfg.Endpoint == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		cfg.Endpoint = fmt.Sprintf("%s://%s/api/track", scheme, c.Request.Host)
	}
	if storeID := c.Query("store"); storeID != "" {
		cfg.StoreID = storeID
	}

	c.Header("Cache-Control", "public, max-age=60")
	c.Data(http.StatusOK, "application/javascript", []byte(GenerateTrackerScript(cfg)))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// GenerateTrackerScript renders the browser tracker. Its heuristics match the
// capture package: one scan after load, text-classified cart/checkout
// buttons, promo inputs, checkout forms, cart abandonment on unload.
func GenerateTrackerScript(cfg ScriptConfig) string {
	if cfg.QueueFn == "" {
		cfg.QueueFn = "storepulse"
	}
	if cfg.Topic == "" {
		cfg.Topic = channel.DefaultTopic
	}
	return fmt.Sprintf(`(function(){
  var C=window.StorePulseConfig||{};
  var E=C.endpoint||%s, S=C.storeId||%s, P=C.platform||%s, Q=C.queueFn||%s, T=%s;
  var sid=Math.random().toString(36).slice(2)+Math.random().toString(36).slice(2);
  var checkoutClicked=false, cartEnteredAt=0, loadedAt=Date.now();

  function emit(type,data){
    var env={storeId:S,platform:P,event:type,data:data||{},sessionId:sid,timestamp:Date.now()};
    try{ if(typeof window[Q]==='function') window[Q]('event',type,env.data); }catch(e){}
    try{ window.dispatchEvent(new CustomEvent(T,{detail:{storeId:S,eventType:type,payload:env.data,sessionId:sid,timestamp:env.timestamp}})); }catch(e){}
    try{
      fetch(E,{method:'POST',keepalive:true,headers:{'Content-Type':'application/json'},body:JSON.stringify(env)})
        .catch(function(err){ console.warn('storepulse: dispatch failed',err); });
    }catch(e){ console.warn('storepulse: dispatch failed',e); }
  }
  function has(s,words){ s=(s||'').toLowerCase(); for(var i=0;i<words.length;i++){ if(s.indexOf(words[i])>=0) return true; } return false; }
  function txt(el){ return ((el&&el.textContent)||'').trim(); }
  var PROD='.product,.product-item,.product-card,[data-product-id]';
  function attr(el,names){ for(var i=0;i<names.length;i++){ var v=el.getAttribute(names[i]); if(v!==null) return v; } return ''; }
  function fromContainer(c){
    var p={product_id:'unknown_id',product:'Unknown Product',price:'Unknown Price',image:''};
    if(!c) return p;
    var t=c.querySelector('h1,h2,h3,.product-title,[data-product-title]');
    var pr=c.querySelector('.price,[data-price],.product-price,[itemprop=price]');
    var inner=c.querySelector('[data-product-id]');
    var img=c.querySelector('img');
    if(attr(c,['data-product-title'])) p.product=attr(c,['data-product-title']);
    else if(t){ if(attr(t,['data-product-title'])) p.product=attr(t,['data-product-title']); else if(txt(t)) p.product=txt(t); }
    if(attr(c,['data-price'])) p.price=attr(c,['data-price']);
    else if(pr){ if(txt(pr)) p.price=txt(pr); else if(attr(pr,['data-price','content'])) p.price=attr(pr,['data-price','content']); }
    if(attr(c,['data-product-id','data-id'])) p.product_id=attr(c,['data-product-id','data-id']);
    else if(inner&&attr(inner,['data-product-id'])) p.product_id=attr(inner,['data-product-id']);
    if(img&&img.getAttribute('src')!==null) p.image=img.getAttribute('src');
    return p;
  }
  function product(el){
    var p=fromContainer(el.closest('div,section,article'));
    var id=(el.getAttribute('data-product-id')||'').trim();
    if(id) p.product_id=id;
    return p;
  }
  function innermost(b,e){ return e.target.closest&&e.target.closest('button,a')===b; }

  function install(){
    emit('visitor_info',{user_agent:navigator.userAgent,language:navigator.language,screen:screen.width+'x'+screen.height,referrer:document.referrer,url:location.href});
    emit('page_view',{url:location.href,path:location.pathname,title:document.title,referrer:document.referrer});

    document.querySelectorAll('button,a').forEach(function(b){
      var t=txt(b);
      if(has(t,['checkout','pay','purchase'])){
        b.addEventListener('click',function(e){ if(!innermost(b,e)) return; checkoutClicked=true; emit('begin_checkout',{button_text:t.slice(0,50),url:location.href}); });
      }else if(has(t,['cart','basket','buy'])){
        b.addEventListener('click',function(e){ if(!innermost(b,e)) return; var p=product(b); p.button_text=t.slice(0,50); emit('add_to_cart',p); });
      }
    });
    document.querySelectorAll('input').forEach(function(i){
      if(!has(i.name,['promo','coupon','discount'])&&!has(i.placeholder,['promo','coupon','discount'])) return;
      i.addEventListener('change',function(){ if(i.value.trim()) emit('apply_promo',{code:i.value.trim(),field:i.name||''}); });
    });
    document.querySelectorAll('form').forEach(function(f){
      var email=f.querySelector('input[type=email]');
      var named=[].slice.call(f.querySelectorAll('input,select,textarea')).some(function(i){
        return has(i.name,['address','street','city','zip','postal','card','cc-','cc_','cvv','cvc','expiry']);
      });
      f.addEventListener('submit',function(){ emit('form_submission',{form_id:f.id||'',action:f.getAttribute('action')||'',method:(f.method||'get').toLowerCase(),field_count:f.querySelectorAll('input,select,textarea').length}); });
      if(email&&named) f.addEventListener('submit',function(){ emit('purchase',{form_id:f.id||'',action:f.getAttribute('action')||'',url:location.href}); });
    });
    if(document.querySelector('#cart,.cart-page,[data-cart-page],.shopping-cart')) cartEnteredAt=Date.now();
    var items=[].slice.call(document.querySelectorAll(PROD)).filter(function(el){
      return !(el.parentElement&&el.parentElement.closest(PROD));
    }).map(function(el){
      var p=fromContainer(el); return {id:p.product_id,name:p.product,price:p.price};
    });
    if(items.length) emit('product_impressions',{products:items,count:items.length});

    document.addEventListener('click',function(e){
      var el=(e.target.closest&&e.target.closest('a,button,[role=button],.btn'))||e.target;
      var d={element:(el.tagName||'').toLowerCase(),text:txt(el).slice(0,50),id:el.id||'',classes:el.className&&el.className.split?el.className.split(/\s+/).filter(Boolean):[]};
      if(el.getAttribute&&el.getAttribute('href')) d.href=el.getAttribute('href');
      emit('user_interaction',d);
    },true);
    window.addEventListener('beforeunload',function(){
      if(cartEnteredAt&&!checkoutClicked) emit('cart_abandonment',{time_on_cart_ms:Date.now()-cartEnteredAt,cart_items:document.querySelectorAll('.cart-item,[data-cart-item]').length,url:location.href});
      emit('page_exit',{time_on_page_ms:Date.now()-loadedAt,url:location.href});
    });
  }

  if(document.readyState==='complete') install(); else window.addEventListener('load',install);
})();`, jsString(cfg.Endpoint), jsString(cfg.StoreID), jsString(cfg.Platform), jsString(cfg.QueueFn), jsString(cfg.Topic))
}
