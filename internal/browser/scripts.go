// internal/browser/scripts.go
package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/nelakvee/recordsync/internal/automation"
)

// refAttr tags every element handed out as an automation.Element so later
// calls can find the same node again.
const refAttr = "data-recordsync-ref"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	out, err := json.MarshalToString(s)
	if err != nil {
		// Marshalling a Go string cannot fail.
		panic(err)
	}
	return out
}

// documentExpr evaluates to the document of the innermost frame in frames,
// or null when any frame on the path is gone or not same-origin.
func documentExpr(frames []string) string {
	if len(frames) == 0 {
		return "document"
	}
	refs := make([]string, len(frames))
	for i, f := range frames {
		refs[i] = jsString(f)
	}
	return fmt.Sprintf(`(() => {
  let d = document;
  for (const r of [%s]) {
    const f = d.querySelector('[%s="' + r + '"]');
    if (!f) return null;
    try { d = f.contentDocument; } catch (e) { return null; }
    if (!d) return null;
  }
  return d;
})()`, strings.Join(refs, ", "), refAttr)
}

// nodeState is what the page reports for each located element.
type nodeState struct {
	Ref     string `json:"ref"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
}

// locateResult is returned by locateScript.
type locateResult struct {
	// Document is false when the frame path no longer resolves.
	Document bool `json:"document"`
	// ParentMissing is true when a parent ref was given but is gone.
	ParentMissing bool        `json:"parentMissing"`
	Nodes         []nodeState `json:"nodes"`
}

// locateScript finds elements matching loc in the document selected by
// frames, optionally below the element tagged parent. Each match is tagged
// with a ref derived from prefix unless it already carries one.
func locateScript(frames []string, parent string, loc automation.Locator, prefix string) string {
	var find string
	switch loc.By {
	case automation.ByID:
		find = fmt.Sprintf(`root === d
      ? [d.getElementById(%[1]s)].filter(Boolean)
      : Array.from(root.querySelectorAll('[id="' + CSS.escape(%[1]s) + '"]'))`, jsString(loc.Selector))
	case automation.ByCSS:
		find = fmt.Sprintf(`Array.from(root.querySelectorAll(%s))`, jsString(loc.Selector))
	default:
		find = fmt.Sprintf(`(() => {
      const snap = d.evaluate(%s, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
      const out = [];
      for (let i = 0; i < snap.snapshotLength; i++) {
        const n = snap.snapshotItem(i);
        if (n.nodeType === Node.ELEMENT_NODE) out.push(n);
      }
      return out;
    })()`, jsString(loc.Selector))
	}

	parentExpr := "null"
	if parent != "" {
		parentExpr = jsString(parent)
	}

	return fmt.Sprintf(`(() => {
  const d = %[1]s;
  if (!d) return {document: false, parentMissing: false, nodes: []};
  let root = d;
  const parent = %[2]s;
  if (parent !== null) {
    root = d.querySelector('[%[3]s="' + parent + '"]');
    if (!root) return {document: true, parentMissing: true, nodes: []};
  }
  const found = %[4]s;
  const prefix = %[5]s;
  return {document: true, parentMissing: false, nodes: found.map((n, i) => {
    let ref = n.getAttribute('%[3]s');
    if (!ref) {
      ref = prefix + '-' + i;
      n.setAttribute('%[3]s', ref);
    }
    const rect = n.getBoundingClientRect();
    const style = (n.ownerDocument.defaultView || window).getComputedStyle(n);
    const visible = rect.width > 0 && rect.height > 0 &&
      style.visibility !== 'hidden' && style.display !== 'none';
    return {ref: ref, visible: visible, enabled: !n.disabled};
  })};
})()`, documentExpr(frames), parentExpr, refAttr, find, jsString(prefix))
}

// elementScript runs body with `el` bound to the tagged element. The
// script evaluates to {found: false} when the element is gone; otherwise
// to {found: true, value: <body result>}.
func elementScript(frames []string, ref, body string) string {
	return fmt.Sprintf(`(() => {
  const d = %s;
  const el = d ? d.querySelector('[%s="' + %s + '"]') : null;
  if (!el) return {found: false};
  const value = (() => { %s })();
  return {found: true, value: value === undefined ? null : value};
})()`, documentExpr(frames), refAttr, jsString(ref), body)
}

// elementResult is returned by elementScript.
type elementResult[T any] struct {
	Found bool `json:"found"`
	Value T    `json:"value"`
}

// clickPoint is the center of an element in top-level viewport coordinates.
type clickPoint struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
	Enabled bool    `json:"enabled"`
}

// Bodies for elementScript.
const (
	bodyText = `const tag = el.tagName;
    if (tag === 'INPUT' || tag === 'TEXTAREA' || tag === 'SELECT') return el.value;
    return el.innerText;`

	bodyClear = `el.value = '';
    el.dispatchEvent(new Event('input', {bubbles: true}));
    el.dispatchEvent(new Event('change', {bubbles: true}));
    return true;`

	bodyScroll = `el.scrollIntoView({block: 'center', inline: 'center'});
    return true;`

	bodyDispatchClick = `el.click();
    return true;`

	bodyFocus = `el.focus();
    return true;`

	bodyIsFrame = `if (el.tagName !== 'IFRAME' && el.tagName !== 'FRAME') return false;
    try { return el.contentDocument !== null; } catch (e) { return false; }`

	bodyClickPoint = `el.scrollIntoView({block: 'center', inline: 'center'});
    const rect = el.getBoundingClientRect();
    let x = rect.left + rect.width / 2;
    let y = rect.top + rect.height / 2;
    let w = el.ownerDocument.defaultView;
    while (w && w.frameElement) {
      const fr = w.frameElement.getBoundingClientRect();
      x += fr.left + w.frameElement.clientLeft;
      y += fr.top + w.frameElement.clientTop;
      w = w.parent;
    }
    const style = el.ownerDocument.defaultView.getComputedStyle(el);
    return {
      x: x, y: y,
      visible: rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none',
      enabled: !el.disabled,
    };`
)
