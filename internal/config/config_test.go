package config

import (
	"testing"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/stretchr/testify/require"
)

func TestEnclaveConfigValidate(t *testing.T) {
	valid := EnclaveConfig{
		ServiceName: "vies",
		Allowlist:   allowlist.List{{Hostname: "ec.europa.eu"}},
		VsockPort:   5000,
	}

	cases := []struct {
		name     string
		cfgFn    func() EnclaveConfig
		wantErrs int
	}{
		{
			name:     "valid config",
			cfgFn:    func() EnclaveConfig { return valid },
			wantErrs: 0,
		},
		{
			name: "missing service name and empty allowlist",
			cfgFn: func() EnclaveConfig {
				c := valid
				c.ServiceName = ""
				c.Allowlist = nil
				return c
			},
			wantErrs: 2,
		},
		{
			name: "zero vsock port",
			cfgFn: func() EnclaveConfig {
				c := valid
				c.VsockPort = 0
				return c
			},
			wantErrs: 1,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.cfgFn()
			problems := cfg.Validate()
			require.Equal(t, c.wantErrs, len(problems), problems)
		})
	}
}
