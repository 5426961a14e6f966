package inject

import (
	"encoding/json"
	"fmt"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/credentials"
)

// AutoLogin generates the script that fills and submits the upstream login
// form. It is only emitted when the current upstream path is a recognized
// login page and a credential record resolved; otherwise the user simply
// lands on the real form.
//
// Value setting goes through the native property setter and dispatches
// input/change events, because framework-rendered forms track state through
// listeners and ignore a bare .value assignment.
func AutoLogin(cfg ShimConfig, creds credentials.Credentials) string {
	payload, err := json.Marshal(struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		CookiePrefix string `json:"cookiePrefix"`
		BasePath     string `json:"basePath"`
		Interval     int    `json:"interval"`
		MaxAttempts  int    `json:"maxAttempts"`
	}{
		Email:        creds.Email,
		Password:     creds.Password,
		CookiePrefix: cfg.CookiePrefix,
		BasePath:     cfg.BasePath,
		Interval:     constants.LoginPollIntervalMS,
		MaxAttempts:  constants.LoginMaxAttempts,
	})
	if err != nil {
		return ""
	}

	return fmt.Sprintf(`<script>(function(){
var LOGIN=%s;

// Stale cookies from an abandoned upstream session break the login flow;
// expire everything under this slot's namespace before filling the form.
try{
  document.cookie.split(";").forEach(function(pair){
    var name=pair.split("=")[0].trim();
    if(name.indexOf(LOGIN.cookiePrefix)===0){
      document.cookie=name+"=; Path="+LOGIN.basePath+"; Expires=Thu, 01 Jan 1970 00:00:00 GMT";
    }
  });
}catch(e){}

function setNativeValue(el,value){
  var proto=el instanceof HTMLTextAreaElement?HTMLTextAreaElement.prototype:HTMLInputElement.prototype;
  var desc=Object.getOwnPropertyDescriptor(proto,"value");
  if(desc&&desc.set){desc.set.call(el,value);}else{el.value=value;}
  el.dispatchEvent(new Event("input",{bubbles:true}));
  el.dispatchEvent(new Event("change",{bubbles:true}));
}

function findEmail(){
  return document.querySelector('input[type="email"]')
    ||document.querySelector('input[autocomplete="username"]')
    ||document.querySelector('input[name*="email" i]');
}
function findPassword(){
  return document.querySelector('input[type="password"]');
}
function findSubmit(form){
  if(form){
    var b=form.querySelector('button[type="submit"],input[type="submit"]');
    if(b)return b;
  }
  return document.querySelector('button[type="submit"],input[type="submit"]');
}

if(window.__eeShowLoader)window.__eeShowLoader();

var attempts=0;
var timer=setInterval(function(){
  attempts++;
  if(attempts>LOGIN.maxAttempts){
    clearInterval(timer);
    if(window.__eeHideLoader)window.__eeHideLoader();
    return;
  }
  var email=findEmail();
  var password=findPassword();
  if(!email||!password)return;

  if(email.value!==LOGIN.email)setNativeValue(email,LOGIN.email);
  if(password.value!==LOGIN.password)setNativeValue(password,LOGIN.password);
  if(email.value!==LOGIN.email||password.value!==LOGIN.password)return;

  var form=password.form||email.form;
  var submit=findSubmit(form);
  if(submit&&submit.disabled)return;

  clearInterval(timer);
  if(form&&form.requestSubmit){form.requestSubmit(submit||undefined);}
  else if(submit){submit.click();}
  else if(form){form.submit();}
},LOGIN.interval);
})();</script>`, payload)
}
