package bridge

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	uiMaxDepth = 12
	uiMaxLines = 500
)

// readUIScript 可见元素大纲：每个可交互或带标签的元素分配 window.__harvest_refs 中的序号
const readUIScript = `(function(){
var MAX_DEPTH=MAX_DEPTH_PLACEHOLDER,MAX_LINES=MAX_LINES_PLACEHOLDER;
var refs=[];window.__harvest_refs=refs;
var lines=[],total=0;
function visible(el){var s=getComputedStyle(el);if(s.display==='none'||s.visibility==='hidden'||s.opacity==='0')return false;if(s.display==='contents')return true;var r=el.getBoundingClientRect();return r.width>0||r.height>0;}
function role(el){var r=el.getAttribute('role');if(r)return r;var t=el.tagName.toLowerCase();
if(t==='a'&&el.hasAttribute('href'))return 'link';if(t==='button'||t==='summary')return 'button';if(t==='select')return 'combobox';if(t==='textarea')return 'textbox';
if(t==='input'){var ty=(el.type||'text').toLowerCase();if(ty==='checkbox'||ty==='radio')return ty;if(ty==='submit'||ty==='button'||ty==='reset')return 'button';if(ty==='range')return 'slider';if(ty==='hidden')return '';return 'textbox';}
if(/^h[1-6]$/.test(t))return 'heading';if(t==='img')return 'img';if(t==='nav')return 'navigation';if(t==='main')return 'main';if(t==='form')return 'form';if(t==='dialog')return 'dialog';if(t==='option')return 'option';
return '';}
function label(el){var l=el.getAttribute('aria-label')||el.getAttribute('alt')||el.getAttribute('title')||el.getAttribute('placeholder')||'';
if(!l&&el.labels&&el.labels.length)l=el.labels[0].innerText||'';
if(!l){var r=role(el);if(['button','link','heading','option','tab','menuitem'].indexOf(r)>=0)l=el.innerText||'';}
l=String(l).replace(/\s+/g,' ').trim();return l.length>80?l.slice(0,80):l;}
function interactive(el){var t=el.tagName.toLowerCase();if(['a','button','input','select','textarea','summary'].indexOf(t)>=0)return t!=='input'||el.type!=='hidden';
if(el.hasAttribute('onclick')||el.isContentEditable)return true;
var r=el.getAttribute('role');return !!r&&['button','link','checkbox','radio','tab','menuitem','option','switch','combobox','textbox','slider'].indexOf(r)>=0;}
function flags(el){var f=[];if(el.disabled||el.getAttribute('aria-disabled')==='true')f.push('disabled');
if(el.checked||el.getAttribute('aria-checked')==='true')f.push('checked');
if(el.selected||el.getAttribute('aria-selected')==='true')f.push('selected');
var ex=el.getAttribute('aria-expanded');if(ex==='true')f.push('expanded');if(ex==='false')f.push('collapsed');
var cur=el.getAttribute('aria-current');if(cur&&cur!=='false')f.push('current');
if(['INPUT','TEXTAREA','SELECT'].indexOf(el.tagName)>=0&&el.value&&el.type!=='password')f.push('value='+JSON.stringify(String(el.value).slice(0,80)));
return f;}
window.__harvest_describe=function(el){return {role:role(el)||el.tagName.toLowerCase(),label:label(el)};};
function walk(el,depth,indent){if(depth>MAX_DEPTH||!visible(el))return;
var r=role(el),l=label(el);
if(interactive(el)||(r&&l)){total++;var idx=refs.length;refs.push(el);
if(lines.length<MAX_LINES){var line=new Array(indent+1).join('  ')+'['+idx+'] '+(r||el.tagName.toLowerCase());if(l)line+=' '+JSON.stringify(l);var f=flags(el);if(f.length)line+=' ('+f.join(', ')+')';lines.push(line);}
indent++;}
for(var c=el.firstElementChild;c;c=c.nextElementSibling)walk(c,depth+1,indent);}
walk(document.body||document.documentElement,0,0);
lines.push(total>lines.length?'... truncated, '+total+' elements total':'('+total+' elements)');
return lines.join('\n');})()`

// refScript 按序号取元素执行动作，返回 {ok, role, label, url} 或 {error}
const refScript = `(function(){var refs=window.__harvest_refs||[];var el=refs[REF_PLACEHOLDER];
if(!el||!el.isConnected)return JSON.stringify({error:'ref '+REF_PLACEHOLDER+' not found, run read_ui first'});
var d=(window.__harvest_describe||function(e){return {role:e.tagName.toLowerCase(),label:''};})(el);
var V=VALUE_PLACEHOLDER;
try{ACTION_PLACEHOLDER}catch(e){return JSON.stringify({error:e.message});}
return JSON.stringify({ok:true,role:d.role,label:d.label,url:location.href});})()`

const clickAction = `el.scrollIntoView({block:'center'});el.click();`

const typeAction = `el.focus();
var proto=el instanceof HTMLTextAreaElement?HTMLTextAreaElement.prototype:(el instanceof HTMLInputElement?HTMLInputElement.prototype:null);
var desc=proto&&Object.getOwnPropertyDescriptor(proto,'value');
if(desc&&desc.set){desc.set.call(el,V);}else if(el.isContentEditable){el.textContent=V;}else{el.value=V;}
el.dispatchEvent(new Event('input',{bubbles:true}));el.dispatchEvent(new Event('change',{bubbles:true}));`

const selectAction = `if(el.tagName!=='SELECT')return JSON.stringify({error:'ref '+REF_PLACEHOLDER+' is not a select'});
var opt=Array.prototype.find.call(el.options,function(o){return o.value===V||o.text.trim()===V;});
if(!opt)return JSON.stringify({error:'no option '+JSON.stringify(V)});
el.value=opt.value;el.dispatchEvent(new Event('input',{bubbles:true}));el.dispatchEvent(new Event('change',{bubbles:true}));`

// ReadUIScript 可见元素大纲脚本
func ReadUIScript() string {
	return strings.NewReplacer(
		"MAX_DEPTH_PLACEHOLDER", strconv.Itoa(uiMaxDepth),
		"MAX_LINES_PLACEHOLDER", strconv.Itoa(uiMaxLines),
	).Replace(readUIScript)
}

// RefScript 生成按序号操作元素的脚本，action 为 click_ref/type_ref/select_ref 的动作片段
func RefScript(ref int, action, value string) string {
	v, _ := json.Marshal(value)
	body := strings.ReplaceAll(refScript, "ACTION_PLACEHOLDER", action)
	return strings.NewReplacer(
		"REF_PLACEHOLDER", strconv.Itoa(ref),
		"VALUE_PLACEHOLDER", string(v),
	).Replace(body)
}

func clickScript(selector string) string {
	s, _ := json.Marshal(selector)
	return `(function(){var el=document.querySelector(` + string(s) + `);if(el){el.click();return 'clicked';}return 'not found';})()`
}

func typeScript(selector, value string) string {
	s, _ := json.Marshal(selector)
	v, _ := json.Marshal(value)
	return `(function(){var el=document.querySelector(` + string(s) + `);if(!el)return 'not found';el.focus();el.value=` + string(v) +
		`;el.dispatchEvent(new Event('input',{bubbles:true}));el.dispatchEvent(new Event('change',{bubbles:true}));return 'typed';})()`
}

func scrollScript(direction string, amount int64) string {
	if direction == "up" {
		amount = -amount
	}
	return `(window.scrollBy(0, ` + strconv.FormatInt(amount, 10) + `), 'scrolled')`
}

const readPageScript = `document.documentElement.outerHTML.substring(0, 500000)`

func wsSendScript(index int, message string) string {
	m, _ := json.Marshal(message)
	return `(function(){var sockets=(window.__harvest_ws||[]).filter(function(s){return s.readyState===1;});var ws=sockets[` +
		strconv.Itoa(index) + `];if(ws){ws.send(` + string(m) + `);return 'sent';}return 'no open websocket';})()`
}

const wsListScript = `(function(){var sockets=window.__harvest_ws||[];return JSON.stringify(sockets.map(function(s,i){return {index:i,url:s.url,state:['CONNECTING','OPEN','CLOSING','CLOSED'][s.readyState]};}));})()`
