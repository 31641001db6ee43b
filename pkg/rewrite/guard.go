package rewrite

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// guardScriptID marks the injected script so a second rewrite pass of an
// already-proxied document does not inject it twice.
const guardScriptID = "veil-guard"

// guardScript is a best-effort client-side affordance, not a correctness
// guarantee: it hides any leaked query string from the address bar and
// proxifies absolute anchors inserted by page scripts after load. Every
// failure inside it is swallowed so it can never break page render.
// %s is the proxy route prefix.
const guardScript = `<script id="` + guardScriptID + `">(function(){try{` +
	`if(location.search){history.replaceState(null,"",location.pathname);}` +
	`var P="%s";` +
	`function enc(u){return btoa(u).replace(/\+/g,"-").replace(/\//g,"_").replace(/=+$/,"");}` +
	`function fix(a){try{var h=a.getAttribute("href");` +
	`if(!h||h.indexOf(P)===0)return;` +
	`if(!/^https?:\/\//i.test(h))return;` +
	`a.setAttribute("href",P+enc(h));}catch(e){}}` +
	`new MutationObserver(function(ms){ms.forEach(function(m){` +
	`for(var i=0;i<m.addedNodes.length;i++){var n=m.addedNodes[i];` +
	`if(n.nodeType!==1)continue;` +
	`if(n.tagName==="A")fix(n);` +
	`if(n.querySelectorAll){var as=n.querySelectorAll("a[href]");` +
	`for(var j=0;j<as.length;j++)fix(as[j]);}}});})` +
	`.observe(document.documentElement,{childList:true,subtree:true});` +
	`}catch(e){}})();</script>`

// injectGuard appends the guard script to <head>. The parser synthesizes a
// head element even for fragments, so the append target always exists.
func (rw *Rewriter) injectGuard(doc *goquery.Document) {
	if doc.Find("script#" + guardScriptID).Length() > 0 {
		return
	}
	doc.Find("head").First().AppendHtml(fmt.Sprintf(guardScript, rw.Prefix))
}
