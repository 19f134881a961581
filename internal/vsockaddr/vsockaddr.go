// Package vsockaddr implements the enclave's and host router's AF_VSOCK
// endpoints on top of github.com/mdlayher/vsock. It exists as a thin,
// domain-named wrapper so the rest of the module never imports the
// third-party package directly.
package vsockaddr

import (
	"net"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/mdlayher/vsock"
)

// HostCID is the CID at which an enclave always reaches its parent host.
// https://docs.aws.amazon.com/enclaves/latest/user/nitro-enclave-concepts.html
const HostCID = 3

// Listen binds a vsock listener on the given port, accepting connections
// from any CID. Enclave accept loops use this to serve inbound requests
// from the host router.
func Listen(port uint32) (net.Listener, error) {
	l, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, errs.Add(err, "failed to bind vsock listener on port %d", port)
	}
	return l, nil
}

// Dial connects to the given CID/port pair. The host router uses this to
// reach an enclave; an enclave uses this (with cid=HostCID) to reach the
// host's proxy for an outbound fetch.
func Dial(cid, port uint32) (net.Conn, error) {
	conn, err := vsock.Dial(cid, port, nil)
	if err != nil {
		return nil, errs.Add(err, "failed to dial vsock CID %d port %d", cid, port)
	}
	return conn, nil
}
