package client

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	utls "github.com/refraction-networking/utls"
)

// Chrome 120 HTTP/2 SETTINGS values.
const (
	chromeH2HeaderTableSize   uint32 = 65536
	chromeH2MaxHeaderListSize uint32 = 262144
)

// ChromeTransportConfig groups the knobs of NewChromeTransport.
type ChromeTransportConfig struct {
	// HelloID is the uTLS fingerprint.  Defaults to utls.HelloChrome_120.
	HelloID utls.ClientHelloID

	// IdleConnTimeout defaults to 90 s.
	IdleConnTimeout time.Duration

	// InsecureSkipVerify disables certificate checks.  Tests only.
	InsecureSkipVerify bool
}

// NewChromeTransport returns an HTTP/2 round tripper whose TLS handshake and
// SETTINGS frame look like the widget's host browser, and which sends the
// browser's fetch() headers in browser order on every request.
func NewChromeTransport(cfg ChromeTransportConfig) http.RoundTripper {
	if cfg.HelloID == (utls.ClientHelloID{}) {
		cfg.HelloID = utls.HelloChrome_120
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	dialer := &HelloDialer{
		ID:       cfg.HelloID,
		Insecure: cfg.InsecureSkipVerify,
		Dialer:   net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
	}
	h2 := &http2.Transport{
		DialTLSContext:            dialer.DialTLSContext,
		MaxDecoderHeaderTableSize: chromeH2HeaderTableSize,
		MaxEncoderHeaderTableSize: chromeH2HeaderTableSize,
		MaxHeaderListSize:         chromeH2MaxHeaderListSize,
		IdleConnTimeout:           cfg.IdleConnTimeout,
	}
	return &chromeRoundTripper{h2: h2}
}

// chromeRoundTripper layers the browser's fetch() headers under the
// caller's own headers before handing the request to http2.
type chromeRoundTripper struct {
	h2 *http2.Transport
}

func (t *chromeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	h := FetchHeaders()
	for key, vals := range req.Header {
		if len(vals) == 0 {
			continue
		}
		h.Set(key, vals[0])
		for _, v := range vals[1:] {
			h.Add(key, v)
		}
	}
	h.ApplyToRequest(r)
	return t.h2.RoundTrip(r)
}
