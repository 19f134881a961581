package router

import (
	"context"
	"errors"
	"testing"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeMarksMatchingRunningCIDsHealthy(t *testing.T) {
	p := &nitroCLIProber{
		runCommand: func(ctx context.Context) ([]byte, error) {
			return []byte(`[{"EnclaveCID": 16, "State": "RUNNING"}, {"EnclaveCID": 17, "State": "TERMINATING"}]`), nil
		},
	}

	routes := map[string]config.RouteEntry{
		"api.stripe.com": {Hostname: "api.stripe.com", CID: 16},
		"www.sicae.es":   {Hostname: "www.sicae.es", CID: 17},
	}

	result := p.Probe(context.Background(), routes)
	require.Len(t, result.Services, 2)
	assert.False(t, result.Healthy)

	byHost := map[string]ServiceHealth{}
	for _, s := range result.Services {
		byHost[s.Hostname] = s
	}
	assert.True(t, byHost["api.stripe.com"].Healthy)
	assert.Equal(t, StateRunning, byHost["api.stripe.com"].State)
	assert.False(t, byHost["www.sicae.es"].Healthy)
	assert.Equal(t, StateNotFound, byHost["www.sicae.es"].State)
}

func TestProbeAllUnhealthyWhenCLIFails(t *testing.T) {
	p := &nitroCLIProber{
		runCommand: func(ctx context.Context) ([]byte, error) {
			return nil, errors.New("nitro-cli: command not found")
		},
	}

	routes := map[string]config.RouteEntry{
		"api.stripe.com": {Hostname: "api.stripe.com", CID: 16},
	}

	result := p.Probe(context.Background(), routes)
	assert.False(t, result.Healthy)
	require.Len(t, result.Services, 1)
	assert.False(t, result.Services[0].Healthy)
	assert.Equal(t, StateNotFound, result.Services[0].State)
}

func TestProbeNoRoutesIsUnhealthy(t *testing.T) {
	p := &nitroCLIProber{
		runCommand: func(ctx context.Context) ([]byte, error) {
			return []byte(`[]`), nil
		},
	}

	result := p.Probe(context.Background(), map[string]config.RouteEntry{})
	assert.False(t, result.Healthy)
	assert.Empty(t, result.Services)
}
