// Package errs implements the sentinel errors and wrapping helpers shared
// across the enclave and router binaries.
package errs

import (
	"errors"
	"fmt"
)

var (
	InvalidFormat = errors.New("invalid format")
	InvalidLength = errors.New("invalid length")
	IsNil         = errors.New("argument must not be nil")

	// BadRequest indicates a malformed or incomplete caller-supplied request.
	BadRequest = errors.New("bad request")
	// HostNotAllowed indicates the requested hostname is not on the
	// enclave's allowlist.
	HostNotAllowed = errors.New("host not allowed")
	// NoRoute indicates the host router has no enclave for a hostname.
	NoRoute = errors.New("no route to enclave")
	// UpstreamTimeout indicates the 25-second wall-clock budget for an
	// outbound fetch was exceeded.
	UpstreamTimeout = errors.New("upstream timeout")
	// UpstreamStatus indicates the upstream API returned a status the
	// custom handler treats as failure.
	UpstreamStatus = errors.New("unexpected upstream status")
	// ParseError indicates a SOAP fault, malformed HTML/HTTP, or invalid
	// JSON in an upstream response.
	ParseError = errors.New("failed to parse upstream response")
	// EnclaveTransport indicates a host-to-enclave vsock failure.
	EnclaveTransport = errors.New("enclave transport error")
	// AttestationInternal indicates the NSM ioctl failed or returned a
	// malformed response.
	AttestationInternal = errors.New("attestation internal error")
)

// Wrap prepends str (formatted with args) to *err, if *err is non-nil.
func Wrap(err *error, str string, args ...any) {
	if *err != nil {
		*err = fmt.Errorf("%s: %w", fmt.Sprintf(str, args...), *err)
	}
}

// WrapErr wraps wrapped so that it also matches wrapper via errors.Is,
// prefixing wrapper's message.
func WrapErr(wrapped *error, wrapper error) {
	if *wrapped != nil {
		*wrapped = fmt.Errorf("%w: %w", wrapper, *wrapped)
	}
}

// Add returns err annotated with str, or nil if err is nil.
func Add(err error, str string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(str, args...), err)
}
