package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RefAttribute is the attribute Mark writes onto the element it finds.
const RefAttribute = "data-conductor-ref"

// Match describes an element that plain CSS cannot address: the Index-th
// element matching Selector, optionally narrowed to those whose trimmed text
// equals Text (or contains it, case-insensitively, when Contains is set).
type Match struct {
	Selector string
	Text     string
	Contains bool
	Index    int
}

// RefSelector returns the CSS selector addressing an element tagged by Mark.
func RefSelector(ref string) string {
	return fmt.Sprintf(`[%s=%s]`, RefAttribute, CSSString(ref))
}

var cssStringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `, "\r", `\d `)

// CSSString quotes s as a CSS string for attribute selectors. Unlike a JSON
// literal it leaves characters such as & and < as they are.
func CSSString(s string) string {
	return `"` + cssStringEscaper.Replace(s) + `"`
}

// JSString encodes v as a JavaScript literal safe for interpolation into scripts.
func JSString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// MarkScript returns an expression that tags the element described by m with
// ref, clearing any earlier element carrying the same ref, and evaluates to
// true when an element was tagged. Elements whose text content is empty are
// matched against their value so input buttons take part in text matching.
func MarkScript(m Match, ref string) string {
	return fmt.Sprintf(`(function(sel, text, contains, index, attr, ref) {
	document.querySelectorAll('[' + attr + '="' + ref + '"]').forEach(function(n) { n.removeAttribute(attr); });
	var nodes = Array.prototype.slice.call(document.querySelectorAll(sel));
	if (text !== '') {
		var want = contains ? text.toLowerCase() : text;
		nodes = nodes.filter(function(n) {
			var got = (n.textContent || '').trim() || (n.value || '').toString().trim();
			return contains ? got.toLowerCase().indexOf(want) !== -1 : got === want;
		});
	}
	var target = nodes[index];
	if (!target) return false;
	target.setAttribute(attr, ref);
	return true;
})(%s, %s, %t, %d, %s, %s)`,
		JSString(m.Selector), JSString(m.Text), m.Contains, m.Index, JSString(RefAttribute), JSString(ref))
}

// ExistsScript evaluates to true when selector matches at least one element.
func ExistsScript(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, JSString(selector))
}

// ScrollIntoViewScript centres the first element matching selector in the viewport.
func ScrollIntoViewScript(selector string) string {
	return fmt.Sprintf(`(function(sel) {
	var el = document.querySelector(sel);
	if (!el) return false;
	el.scrollIntoView({block: 'center', inline: 'center'});
	return true;
})(%s)`, JSString(selector))
}

// SelectScript sets the value of a <select> element and fires the input and
// change events frameworks listen for. It evaluates to false when the
// element or the option is missing.
func SelectScript(selector, value string) string {
	return fmt.Sprintf(`(function(sel, value) {
	var el = document.querySelector(sel);
	if (!el || !el.options) return false;
	var found = Array.prototype.some.call(el.options, function(o) { return o.value === value; });
	if (!found) return false;
	el.value = value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})(%s, %s)`, JSString(selector), JSString(value))
}

// ElementScript wraps a function body so it runs with the first element
// matching selector bound to el.
func ElementScript(selector, body string) string {
	return fmt.Sprintf(`(function(el) {
%s
})(document.querySelector(%s))`, body, JSString(selector))
}

// InputsScript evaluates to a JSON array of InputDescriptor values.
const InputsScript = `Array.prototype.map.call(document.querySelectorAll('input'), function(el) {
	return {
		type: el.type || '',
		name: el.name || '',
		id: el.id || '',
		placeholder: el.placeholder || '',
		className: (typeof el.className === 'string') ? el.className : ''
	};
})`
