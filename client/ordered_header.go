package client

import (
	"net/http"
)

type headerEntry struct {
	key   string
	value string
}

// OrderedHeader keeps request headers in insertion order with their exact
// casing.  http.Header is a map and loses both, which is visible to services
// that profile the browser's fetch() requests.
//
// Not safe for concurrent use.  Build one per request.
type OrderedHeader struct {
	entries []headerEntry
}

// Add appends key/value, preserving the casing of key.
func (h *OrderedHeader) Add(key, value string) {
	h.entries = append(h.entries, headerEntry{key: key, value: value})
}

// Set replaces the first entry matching key (case-insensitively), keeps its
// position, and drops later duplicates.  The surviving entry takes the
// casing of key.  Without a match Set behaves like Add.
func (h *OrderedHeader) Set(key, value string) {
	canonKey := http.CanonicalHeaderKey(key)
	replaced := false
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canonKey {
			out = append(out, e)
			continue
		}
		if !replaced {
			out = append(out, headerEntry{key: key, value: value})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, headerEntry{key: key, value: value})
	}
	h.entries = out
}

// Del removes every entry matching key (case-insensitively).
func (h *OrderedHeader) Del(key string) {
	canonKey := http.CanonicalHeaderKey(key)
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canonKey {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the first value for key (case-insensitively) or "".
func (h *OrderedHeader) Get(key string) string {
	canonKey := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canonKey {
			return e.value
		}
	}
	return ""
}

// Keys returns the header names in order, duplicates included.
func (h *OrderedHeader) Keys() []string {
	keys := make([]string, len(h.entries))
	for i, e := range h.entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of entries including duplicates.
func (h *OrderedHeader) Len() int { return len(h.entries) }

// Clone returns an independent copy.
func (h *OrderedHeader) Clone() *OrderedHeader {
	c := &OrderedHeader{entries: make([]headerEntry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// ApplyToRequest replaces req.Header with the entries of h.  Keys are
// written into the map directly so their casing survives canonicalisation.
func (h *OrderedHeader) ApplyToRequest(req *http.Request) {
	req.Header = make(http.Header, len(h.entries))
	for _, e := range h.entries {
		req.Header[e.key] = append(req.Header[e.key], e.value)
	}
}

// FetchHeaders returns the headers a Chrome 120 page sends on a same-site
// fetch() of a JSON endpoint, in browser order.  Content-Type and similar
// per-request values are layered on top by the caller.
func FetchHeaders() *OrderedHeader {
	h := &OrderedHeader{}
	h.Add("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
	h.Add("sec-ch-ua-mobile", "?0")
	h.Add("sec-ch-ua-platform", `"Windows"`)
	h.Add("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.Add("Accept", "application/json")
	h.Add("sec-fetch-site", "same-site")
	h.Add("sec-fetch-mode", "cors")
	h.Add("sec-fetch-dest", "empty")
	h.Add("accept-language", "en-US,en;q=0.9")
	return h
}
