// Package upstream implements the two ways an enclave reaches a remote API:
// proxy_fetch (TLS negotiated over vsock) and proxy_fetch_plain (raw
// HTTP/1.1 bytes over vsock). Both tunnel through the host's vsock-proxy,
// treated as an opaque byte pipe on {HostCID, proxy_port}.
package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/httpmicro"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/vsockaddr"
)

// RootCAs is the certificate pool TLS fetches verify servers against. No
// binary in this module assigns it, so it stays nil and verification uses
// the Go runtime's system pool, which in a real enclave image is the
// pinned, reproducible CA bundle baked in at build time.
var RootCAs *x509.CertPool

// Fetch performs one outbound request against an allowlisted host,
// choosing TLS or plain transport per entry.Transport. It never retries
// and never multiplexes: one vsock connection is dialed, used once, and
// closed.
func Fetch(
	ctx context.Context,
	entry allowlist.Entry,
	path, method string,
	headers model.Headers,
	body []byte,
) (*httpmicro.Response, error) {
	// vsock has no context-aware dialer; the deadline httpmicro.Fetch sets
	// on the connection after dialing bounds the rest of the exchange.
	dial := func(context.Context) (net.Conn, error) {
		return vsockaddr.Dial(vsockaddr.HostCID, entry.ProxyPort)
	}

	var tlsConfig *tls.Config
	if entry.Transport == allowlist.TLS {
		tlsConfig = &tls.Config{
			ServerName: entry.Hostname,
			RootCAs:    RootCAs,
			// Server-certificate verification is always on; this is
			// InsecureSkipVerify's absence, not a configurable knob.
		}
	}

	resp, err := httpmicro.Fetch(ctx, dial, entry.Hostname, path, method, headers, body, tlsConfig)
	if err != nil {
		return nil, errs.Add(err, "upstream fetch to %s failed", entry.Hostname)
	}
	return resp, nil
}
