// Package config implements the enclave and router configuration types:
// one type per binary kind, each with a Validate method that returns a
// field-name-to-problem map instead of a single error.
package config

import (
	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
)

// DefaultVsockPort is the vsock port an enclave's accept loop listens on
// unless overridden.
const DefaultVsockPort = 5000

// EnclaveConfig configures one enclave binary.
type EnclaveConfig struct {
	// ServiceName identifies the enclave for logging, e.g. "vies", "sicae",
	// "stripe". It has no effect on behaviour.
	ServiceName string

	// Allowlist is the compile-time-fixed set of hosts this enclave may
	// contact. For custom handlers it usually comes from the handler's own
	// Allowlist method; for the generic handler it is deployment-specific.
	Allowlist allowlist.List

	// VsockPort is the port the accept loop listens on.
	VsockPort uint32

	// Debug enables verbose request logging.
	Debug bool

	// Testing disables the hardware NSM attester in favour of a noop
	// attester, for local development outside a real enclave.
	Testing bool
}

// Validate reports configuration problems keyed by field name.
func (c *EnclaveConfig) Validate() map[string]string {
	problems := make(map[string]string)

	if c.ServiceName == "" {
		problems["ServiceName"] = "must not be empty"
	}
	if c.VsockPort == 0 {
		problems["VsockPort"] = "port must not be 0"
	}
	if len(c.Allowlist) == 0 {
		problems["Allowlist"] = "must contain at least one entry"
	}

	return problems
}
