// Package allowlist implements the compile-time-fixed set of hostnames an
// enclave may contact -- the primary isolation mechanism described in
// the allowlist data model.
package allowlist

import (
	"fmt"
	"net/url"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
)

// Transport names how a fetch to an allowlisted host is carried out.
type Transport string

const (
	// TLS negotiates TLS over the vsock byte stream before speaking
	// HTTP/1.1.
	TLS Transport = "tls"
	// Plain writes HTTP/1.1 bytes directly to the vsock stream. The bytes
	// pass through the host's vsock-proxy unencrypted, so an attestation
	// over a Plain fetch shows which code ran, not that the remote server
	// sent that response.
	Plain Transport = "plain"
)

// Entry is one allowlisted hostname, alongside how to reach it.
type Entry struct {
	Hostname   string    `json:"hostname"`
	ProxyPort  uint32    `json:"proxy_port"`
	Transport  Transport `json:"transport"`
}

// List is a compile-time-fixed set of allowlist entries for one enclave
// service.
type List []Entry

// Lookup returns the entry matching hostname, using an exact,
// case-sensitive comparison, and whether it was found.
func (l List) Lookup(hostname string) (Entry, bool) {
	for _, e := range l {
		if e.Hostname == hostname {
			return e, true
		}
	}
	return Entry{}, false
}

// Gate parses rawURL and checks its hostname against l. It returns the
// matched entry and the parsed URL, or an error wrapping errs.HostNotAllowed
// if the hostname isn't allowlisted.
func Gate(l List, rawURL string) (Entry, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("%w: invalid URL: %w", errs.BadRequest, err)
	}

	entry, ok := l.Lookup(u.Hostname())
	if !ok {
		return Entry{}, nil, fmt.Errorf("%w: %s", errs.HostNotAllowed, u.Hostname())
	}
	return entry, u, nil
}
