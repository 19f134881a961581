package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
)

// DefaultRouterPort is the router's HTTP listen port unless overridden by
// the PORT environment variable.
const DefaultRouterPort = 5001

// RouteEntry describes how the router reaches one enclave service.
type RouteEntry struct {
	Hostname string
	CID      uint32
	Port     uint32
}

// RouterConfig configures the host router binary.
type RouterConfig struct {
	// ListenPort is the HTTP port the router serves /attest/fetch, /health,
	// and /routes on.
	ListenPort int

	// Routes maps an allowlisted hostname to the enclave that serves it.
	// Built from <SERVICE>_CID environment variables plus a fixed table of
	// hostnames each service is known to own.
	Routes map[string]RouteEntry
}

// serviceHosts lists the hostnames each named service's enclave owns. It
// mirrors the Allowlist each corresponding cmd/enclave-* binary bakes in at
// build time: every host reachable through a route must also appear on the
// allowlist of the enclave the route points to.
var serviceHosts = map[string][]string{
	"VIES":   {"ec.europa.eu", "api.service.hmrc.gov.uk"},
	"SICAE":  {"www.sicae.es"},
	"STRIPE": {"api.stripe.com"},
}

// LoadRouterConfig builds a RouterConfig from the process environment.
// PORT sets ListenPort (default DefaultRouterPort); one <SERVICE>_CID
// variable per entry in serviceHosts sets that service's route, using
// DefaultVsockPort unless a <SERVICE>_PORT variable overrides it. A service
// whose *_CID variable is unset or empty is skipped entirely -- the router
// need not know about every service, only the ones deployed alongside it.
func LoadRouterConfig() (*RouterConfig, error) {
	cfg := &RouterConfig{
		ListenPort: DefaultRouterPort,
		Routes:     make(map[string]RouteEntry),
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT %q: %w", raw, err)
		}
		cfg.ListenPort = port
	}

	for service, hosts := range serviceHosts {
		raw := os.Getenv(service + "_CID")
		if raw == "" {
			continue
		}
		cid, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: invalid %s_CID %q: %w", service, raw, err)
		}

		port := uint32(DefaultVsockPort)
		if rawPort := os.Getenv(service + "_PORT"); rawPort != "" {
			p, err := strconv.ParseUint(rawPort, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("config: invalid %s_PORT %q: %w", service, rawPort, err)
			}
			port = uint32(p)
		}

		for _, host := range hosts {
			cfg.Routes[host] = RouteEntry{
				Hostname: host,
				CID:      uint32(cid),
				Port:     port,
			}
		}
	}

	return cfg, nil
}

// Validate reports configuration problems keyed by field name.
func (c *RouterConfig) Validate() map[string]string {
	problems := make(map[string]string)

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		problems["ListenPort"] = "must be a valid port number"
	}
	if len(c.Routes) == 0 {
		problems["Routes"] = "at least one <SERVICE>_CID environment variable must be set"
	}
	for host, entry := range c.Routes {
		if entry.CID == 0 {
			problems["Routes["+host+"]"] = "CID must not be 0"
		}
	}

	return problems
}

// Services returns the configured service names in sorted order, for
// diagnostics.
func Services() []string {
	names := make([]string, 0, len(serviceHosts))
	for name := range serviceHosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
