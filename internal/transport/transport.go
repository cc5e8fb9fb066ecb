// Package transport builds the HTTP round trippers used by the storefront gateway.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options selects how the gateway reaches the commerce backend.
type Options struct {
	// Timeout bounds dialing and the TLS handshake.
	Timeout time.Duration
	// Fingerprint presents a browser TLS fingerprint. Storefront APIs behind
	// bot-protecting CDNs throttle Go's default ClientHello much harder.
	Fingerprint bool
}

// New returns a RoundTripper for opts. Without Fingerprint it is a plain
// http.Transport with HTTP/2 enabled.
func New(opts Options) http.RoundTripper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Fingerprint {
		return NewBrowserTransport(opts.Timeout)
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: opts.Timeout}).DialContext,
		TLSHandshakeTimeout: opts.Timeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewBrowserTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. ALPN decides between HTTP/2 and HTTP/1.1. Plain http:// URLs
// go straight to HTTP/1.1.
func NewBrowserTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	return &browserTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialBrowserTLS(ctx, dialer, network, addr)
			},
		},
		h1: &http.Transport{
			DialContext: dialer.DialContext,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialBrowserTLS(ctx, dialer, network, addr)
			},
			ForceAttemptHTTP2: false,
		},
	}
}

type browserTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1.
func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	// The h2 attempt fails before writing the body when the server
	// did not negotiate h2, so the request is still replayable.
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}
	return t.h1.RoundTrip(req)
}

func dialBrowserTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
