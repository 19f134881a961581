package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearServiceEnv(t *testing.T) {
	t.Helper()
	for service := range serviceHosts {
		require.NoError(t, os.Unsetenv(service+"_CID"))
		require.NoError(t, os.Unsetenv(service+"_PORT"))
	}
	require.NoError(t, os.Unsetenv("PORT"))
}

func TestLoadRouterConfigDefaultsAndOverrides(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("VIES_CID", "16")
	t.Setenv("PORT", "9001")

	cfg, err := LoadRouterConfig()
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.ListenPort)

	entry, ok := cfg.Routes["ec.europa.eu"]
	require.True(t, ok)
	assert.Equal(t, uint32(16), entry.CID)
	assert.Equal(t, uint32(DefaultVsockPort), entry.Port)

	_, ok = cfg.Routes["api.stripe.com"]
	assert.False(t, ok, "unset services must not appear in the route table")
}

func TestLoadRouterConfigCustomPort(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("STRIPE_CID", "42")
	t.Setenv("STRIPE_PORT", "6000")

	cfg, err := LoadRouterConfig()
	require.NoError(t, err)

	entry, ok := cfg.Routes["api.stripe.com"]
	require.True(t, ok)
	assert.Equal(t, uint32(42), entry.CID)
	assert.Equal(t, uint32(6000), entry.Port)
}

func TestLoadRouterConfigRejectsInvalidCID(t *testing.T) {
	clearServiceEnv(t)
	t.Setenv("SICAE_CID", "not-a-number")

	_, err := LoadRouterConfig()
	require.Error(t, err)
}

func TestRouterConfigValidate(t *testing.T) {
	clearServiceEnv(t)

	empty := &RouterConfig{ListenPort: 5001, Routes: map[string]RouteEntry{}}
	assert.Len(t, empty.Validate(), 1)

	zeroCID := &RouterConfig{
		ListenPort: 5001,
		Routes:     map[string]RouteEntry{"api.stripe.com": {Hostname: "api.stripe.com"}},
	}
	assert.Len(t, zeroCID.Validate(), 1)

	valid := &RouterConfig{
		ListenPort: 5001,
		Routes:     map[string]RouteEntry{"api.stripe.com": {Hostname: "api.stripe.com", CID: 16}},
	}
	assert.Empty(t, valid.Validate())
}
