// Package client builds the HTTP clients the widget uses to talk to the
// remote verification service.
package client

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Fingerprint names accepted by Options.Fingerprint.
const (
	// FingerprintNone uses the standard library TLS stack.
	FingerprintNone = ""

	// FingerprintChrome120 presents a Chrome 120 TLS ClientHello and HTTP/2
	// SETTINGS.  It only works against https endpoints that speak HTTP/2.
	FingerprintChrome120 = "chrome120"
)

// Options configures NewHTTPClient.
type Options struct {
	// Timeout bounds each request end to end.  Zero means no client-side
	// timeout; callers should then rely on their context.
	Timeout time.Duration

	// Proxy is an optional proxy URL, e.g. "http://host:port".
	Proxy string

	// Fingerprint selects the TLS/HTTP2 fingerprint.  See the Fingerprint*
	// constants.
	Fingerprint string
}

// NewHTTPClient constructs an *http.Client for the challenge API.
//
// The widget makes at most two requests per attempt, so the pool is small.
// A cookie jar is attached because some verification services bind the
// issued puzzle to a cookie that must be presented again on verification.
func NewHTTPClient(opts Options) (*http.Client, error) {
	var rt http.RoundTripper
	switch opts.Fingerprint {
	case FingerprintNone:
		t, err := buildTransport(opts.Proxy)
		if err != nil {
			return nil, err
		}
		rt = t
	case FingerprintChrome120:
		if opts.Proxy != "" {
			return nil, fmt.Errorf("client: proxy is not supported with fingerprint %q", opts.Fingerprint)
		}
		rt = NewChromeTransport(ChromeTransportConfig{HelloID: utls.HelloChrome_120})
	default:
		return nil, fmt.Errorf("client: unknown fingerprint %q", opts.Fingerprint)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: create cookie jar: %w", err)
	}

	return &http.Client{
		Transport: rt,
		Jar:       jar,
		Timeout:   opts.Timeout,
	}, nil
}

// buildTransport creates the default *http.Transport, optionally routed
// through proxy.
func buildTransport(proxy string) (*http.Transport, error) {
	t := &http.Transport{
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("client: parse proxy URL %q: %w", proxy, err)
		}
		if proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("client: proxy URL %q must include scheme and host", proxy)
		}
		t.Proxy = http.ProxyURL(proxyURL)
	}

	return t, nil
}
