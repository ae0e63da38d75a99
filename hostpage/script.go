package hostpage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/robertkrimen/otto"
)

// ScriptHost runs a hosting page's JavaScript in the otto interpreter, with
// just enough of a browser to receive widget messages:
//
//	window.addEventListener("message", function (e) { ... e.data ... });
//
// Post dispatches a message event to every registered listener.  Safe for
// concurrent use; calls into the VM are serialised.
type ScriptHost struct {
	vm *otto.Otto
	mu sync.Mutex
}

const bootstrap = `
var window = this;
var document = { cookie: "" };
var navigator = { userAgent: %q };
var __listeners = [];
window.addEventListener = function (type, fn) {
	if (type === "message") { __listeners.push(fn); }
};
window.removeEventListener = function (type, fn) {
	__listeners = __listeners.filter(function (l) { return l !== fn; });
};
function __dispatch(raw) {
	var ev = { type: "message", data: JSON.parse(raw) };
	for (var i = 0; i < __listeners.length; i++) { __listeners[i](ev); }
	return __listeners.length;
}
`

// DefaultScript stores the latest token in window.powcaptchaToken and
// clears it on failure or expiry.
const DefaultScript = `
window.powcaptchaToken = "";
window.powcaptchaEvents = [];
window.addEventListener("message", function (e) {
	if (!e.data || e.data.source !== "powcaptcha") { return; }
	window.powcaptchaEvents.push(e.data.type);
	window.powcaptchaToken = e.data.type === "success" ? e.data.token : "";
});
`

// NewScriptHost seeds the browser stub and runs script.  userAgent is
// exposed as navigator.userAgent; empty means a generic value.
func NewScriptHost(script, userAgent string) (*ScriptHost, error) {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; powcaptcha/1.0)"
	}
	vm := otto.New()
	if _, err := vm.Run(fmt.Sprintf(bootstrap, userAgent)); err != nil {
		return nil, fmt.Errorf("hostpage: bootstrap JS globals: %w", err)
	}
	if script != "" {
		if _, err := vm.Run(script); err != nil {
			return nil, fmt.Errorf("hostpage: run page script: %w", err)
		}
	}
	return &ScriptHost{vm: vm}, nil
}

// Post delivers m as a message event.
func (h *ScriptHost) Post(m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("hostpage: encode message: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.vm.Call("__dispatch", nil, string(raw)); err != nil {
		return fmt.Errorf("hostpage: dispatch message: %w", err)
	}
	return nil
}

// Eval runs script and returns the string form of its last value.
func (h *ScriptHost) Eval(script string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	val, err := h.vm.Run(script)
	if err != nil {
		return "", fmt.Errorf("hostpage: eval: %w", err)
	}
	s, err := val.ToString()
	if err != nil {
		return "", fmt.Errorf("hostpage: convert result to string: %w", err)
	}
	return s, nil
}

// Listeners returns how many message listeners the page registered.
func (h *ScriptHost) Listeners() (int, error) {
	out, err := h.Eval("__listeners.length")
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscan(out, &n); err != nil {
		return 0, fmt.Errorf("hostpage: parse listener count %q: %w", out, err)
	}
	return n, nil
}
