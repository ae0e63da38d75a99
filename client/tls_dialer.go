package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// HelloDialer opens TLS connections whose ClientHello is the one uTLS
// parrots for ID.  Its DialTLSContext method fits http2.Transport.
type HelloDialer struct {
	ID utls.ClientHelloID

	// Insecure disables certificate checks whatever the per-call config
	// says.  Tests only.
	Insecure bool

	// Dialer opens the underlying TCP connection.
	Dialer net.Dialer
}

// DialTLSContext dials addr and completes the uTLS handshake.  The SNI is
// tlsCfg.ServerName when set, otherwise the host part of addr.
func (d *HelloDialer) DialTLSContext(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
	cfg, err := d.config(addr, tlsCfg)
	if err != nil {
		return nil, err
	}
	raw, err := d.Dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("utls: dial %s: %w", addr, err)
	}
	conn, err := d.handshake(ctx, raw, cfg)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

// config keeps only the fields uTLS honours; suites and curves come from
// the parrot spec.
func (d *HelloDialer) config(addr string, tlsCfg *tls.Config) (*utls.Config, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("utls: bad address %q: %w", addr, err)
	}
	cfg := &utls.Config{ServerName: host, InsecureSkipVerify: d.Insecure} // #nosec G402 – opt-in
	if tlsCfg != nil {
		if tlsCfg.ServerName != "" {
			cfg.ServerName = tlsCfg.ServerName
		}
		cfg.InsecureSkipVerify = cfg.InsecureSkipVerify || tlsCfg.InsecureSkipVerify
	}
	return cfg, nil
}

func (d *HelloDialer) handshake(ctx context.Context, raw net.Conn, cfg *utls.Config) (*utls.UConn, error) {
	conn := utls.UClient(raw, cfg, d.ID)
	if spec, ok := clientHelloSpec(d.ID); ok {
		if err := conn.ApplyPreset(&spec); err != nil {
			return nil, fmt.Errorf("utls: apply %s preset: %w", d.ID.Str(), err)
		}
	}
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("utls: handshake with %s: %w", cfg.ServerName, err)
	}
	return conn, nil
}

// clientHelloSpec returns the parrot spec of the Chrome IDs we support.  For
// any other ID uTLS builds the spec during the handshake.
func clientHelloSpec(id utls.ClientHelloID) (utls.ClientHelloSpec, bool) {
	switch id {
	case utls.HelloChrome_120, utls.HelloChrome_131, utls.HelloChrome_Auto:
		if spec, err := utls.UTLSIdToSpec(id); err == nil {
			return spec, true
		}
	}
	return utls.ClientHelloSpec{}, false
}
