package inject

import (
	"encoding/json"
	"fmt"

	"github.com/antoine78910/ecomefficiency-sub002/internal/rewrite"
)

// ShimConfig is everything the generated client-side scripts need to keep a
// proxied page inside the proxy. The hostname rules are the same table the
// server-side rewriter runs on, so the two rewrites cannot drift apart.
type ShimConfig struct {
	Service      string             `json:"service"`
	Slot         string             `json:"slot"`
	CookiePrefix string             `json:"cookiePrefix"`
	BasePath     string             `json:"basePath"`
	AssetBase    string             `json:"assetBase"`
	OriginHost   string             `json:"originHost"`
	Hosts        []rewrite.HostRule `json:"hosts"`
	LoginPath    string             `json:"loginPath"`
	ProbePath    string             `json:"probePath"`
}

func (c ShimConfig) jsonBlob() string {
	b, err := json.Marshal(c)
	if err != nil {
		// ShimConfig only contains strings; Marshal cannot fail on it.
		return "{}"
	}
	return string(b)
}

// EarlyBoot generates the inline script placed immediately after <head>.
// It must run before any page script: it wipes client storage when the
// browser switches session slots, installs in-memory storage fallbacks for
// sandboxed contexts, and defines the loading-overlay globals.
func EarlyBoot(cfg ShimConfig) string {
	return fmt.Sprintf(`<script>(function(){
var CFG=%s;
var SLOT_KEY="__eeproxy_slot_"+CFG.service;

function wipeStorage(){
  try{localStorage.clear();}catch(e){}
  try{sessionStorage.clear();}catch(e){}
  try{
    if(indexedDB&&indexedDB.databases){
      indexedDB.databases().then(function(dbs){
        dbs.forEach(function(db){if(db.name)indexedDB.deleteDatabase(db.name);});
      });
    }
  }catch(e){}
}
try{
  var prev=localStorage.getItem(SLOT_KEY);
  if(prev!==null&&prev!==CFG.slot){wipeStorage();}
  localStorage.setItem(SLOT_KEY,CFG.slot);
}catch(e){}

function memoryStorage(){
  var data={};
  return {
    getItem:function(k){return Object.prototype.hasOwnProperty.call(data,k)?data[k]:null;},
    setItem:function(k,v){data[k]=String(v);},
    removeItem:function(k){delete data[k];},
    clear:function(){data={};},
    key:function(i){return Object.keys(data)[i]||null;},
    get length(){return Object.keys(data).length;}
  };
}
["localStorage","sessionStorage"].forEach(function(name){
  try{window[name].getItem("__eeprobe");}catch(e){
    try{Object.defineProperty(window,name,{value:memoryStorage(),configurable:true});}catch(e2){}
  }
});

var OVERLAY_ID="__eeproxy_loader";
function overlay(){
  var el=document.getElementById(OVERLAY_ID);
  if(el)return el;
  el=document.createElement("div");
  el.id=OVERLAY_ID;
  el.style.cssText="position:fixed;inset:0;z-index:2147483647;background:#0b0b12;display:flex;align-items:center;justify-content:center;transition:opacity .2s";
  el.innerHTML='<div style="width:42px;height:42px;border:3px solid #2a2a3a;border-top-color:#7c6cf6;border-radius:50%%;animation:eespin .8s linear infinite"></div><style>@keyframes eespin{to{transform:rotate(360deg)}}</style>';
  (document.body||document.documentElement).appendChild(el);
  return el;
}
window.__eeShowLoader=function(){try{overlay().style.display="flex";}catch(e){}};
window.__eeHideLoader=function(){var el=document.getElementById(OVERLAY_ID);if(el)el.style.display="none";};

if(location.pathname===CFG.basePath+CFG.loginPath){
  document.addEventListener("DOMContentLoaded",function(){window.__eeShowLoader();});
}
})();</script>`, cfg.jsonBlob())
}

// RuntimePatch generates the script placed before </head>. It patches the
// browser's network and navigation primitives so dynamically constructed
// requests and client-side-router navigations stay inside the proxy, and it
// performs the auth-guard probe on authenticated-looking paths.
func RuntimePatch(cfg ShimConfig) string {
	return fmt.Sprintf(`<script>(function(){
var CFG=%s;
var HOSTS={};
CFG.hosts.forEach(function(h){HOSTS[h.host]=h.path;});

function mapURL(raw){
  if(typeof raw!=="string"||raw==="")return raw;
  if(/^(#|javascript:|mailto:|tel:|data:|blob:|about:)/i.test(raw))return raw;
  var u;
  try{u=new URL(raw,location.href);}catch(e){return raw;}
  if(u.protocol!=="http:"&&u.protocol!=="https:")return raw;
  if(u.host===CFG.originHost)return CFG.basePath+u.pathname+u.search+u.hash;
  if(HOSTS[u.host])return HOSTS[u.host]+u.pathname+u.search+u.hash;
  if(u.host===location.host){
    var p=u.pathname;
    if(p.indexOf(CFG.basePath)===0||p.indexOf(CFG.assetBase)===0)return raw;
    if(p.charAt(0)==="/")return CFG.basePath+p+u.search+u.hash;
  }
  return raw;
}

var origFetch=window.fetch;
window.fetch=function(input,init){
  try{
    if(typeof input==="string"){input=mapURL(input);}
    else if(input instanceof Request){
      var mapped=mapURL(input.url);
      if(mapped!==input.url)input=new Request(mapped,input);
    }
  }catch(e){}
  return origFetch.call(this,input,init);
};

var origOpen=XMLHttpRequest.prototype.open;
XMLHttpRequest.prototype.open=function(method,url){
  try{arguments[1]=mapURL(url);}catch(e){}
  return origOpen.apply(this,arguments);
};

["pushState","replaceState"].forEach(function(fn){
  var orig=history[fn];
  history[fn]=function(state,title,url){
    try{if(url!==undefined&&url!==null)url=mapURL(String(url));}catch(e){}
    return orig.call(this,state,title,url);
  };
});

try{
  var origAssign=location.assign.bind(location);
  var origReplace=location.replace.bind(location);
  window.__eeNavigate=function(u){origAssign(mapURL(u));};
  window.__eeReplace=function(u){origReplace(mapURL(u));};
}catch(e){}

document.addEventListener("click",function(ev){
  var a=ev.target&&ev.target.closest?ev.target.closest("a[href]"):null;
  if(!a)return;
  var mapped=mapURL(a.getAttribute("href"));
  if(mapped!==a.getAttribute("href")){a.setAttribute("href",mapped);}
},true);

function upstreamPath(){
  var p=location.pathname;
  if(p.indexOf(CFG.basePath)===0)p=p.slice(CFG.basePath.length)||"/";
  return p;
}

var path=upstreamPath();
if(path!==CFG.loginPath&&path.indexOf("/_next/")!==0&&CFG.probePath){
  origFetch(CFG.basePath+CFG.probePath,{credentials:"include"}).then(function(r){
    if(r.status===401||r.status===403){
      location.href=CFG.basePath+CFG.loginPath+"?redirect="+encodeURIComponent(path);
    }else{
      if(window.__eeHideLoader)window.__eeHideLoader();
    }
  }).catch(function(){});
}
window.addEventListener("load",function(){
  if(upstreamPath()!==CFG.loginPath&&window.__eeHideLoader)window.__eeHideLoader();
});
})();</script>`, cfg.jsonBlob())
}
