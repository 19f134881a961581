package router

import (
	"context"
	"encoding/json"
	"log"
	"os/exec"
	"time"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/config"
)

// probeTimeout bounds how long the router waits for the platform CLI to
// answer.
const probeTimeout = 5 * time.Second

// EnclaveState is one enclave's reported liveness state.
type EnclaveState string

const (
	StateRunning  EnclaveState = "RUNNING"
	StateNotFound EnclaveState = "NOT_FOUND"
)

// ServiceHealth is the health of one routed hostname.
type ServiceHealth struct {
	Hostname string       `json:"hostname"`
	CID      uint32       `json:"cid"`
	State    EnclaveState `json:"state"`
	Healthy  bool         `json:"healthy"`
}

// HealthResult is the aggregate health of every configured route.
type HealthResult struct {
	Healthy  bool            `json:"healthy"`
	Services []ServiceHealth `json:"services"`
}

// HealthProber checks whether the enclaves behind a route table are alive.
type HealthProber interface {
	Probe(ctx context.Context, routes map[string]config.RouteEntry) HealthResult
}

// nitroCLIProber shells out to nitro-cli describe-enclaves and cross-checks
// its output against the router's route table.
type nitroCLIProber struct {
	runCommand func(ctx context.Context) ([]byte, error)
}

// NewNitroCLIProber returns a HealthProber backed by the real nitro-cli
// binary on PATH.
func NewNitroCLIProber() HealthProber {
	return &nitroCLIProber{
		runCommand: func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, "nitro-cli", "describe-enclaves").Output()
		},
	}
}

// describeEnclavesEntry is one element of nitro-cli describe-enclaves'
// JSON array output.
type describeEnclavesEntry struct {
	EnclaveCID int    `json:"EnclaveCID"`
	State      string `json:"State"`
}

func (p *nitroCLIProber) Probe(ctx context.Context, routes map[string]config.RouteEntry) HealthResult {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	runningCIDs := map[uint32]bool{}
	out, err := p.runCommand(ctx)
	if err != nil {
		log.Printf("router: nitro-cli describe-enclaves failed: %v", err)
		// Fall through with an empty runningCIDs set: every configured
		// route is reported NOT_FOUND below, and overall health is false.
	} else {
		var entries []describeEnclavesEntry
		if err := json.Unmarshal(out, &entries); err != nil {
			log.Printf("router: failed to parse nitro-cli output: %v", err)
		} else {
			for _, e := range entries {
				if e.State == string(StateRunning) {
					runningCIDs[uint32(e.EnclaveCID)] = true
				}
			}
		}
	}

	result := HealthResult{Healthy: len(routes) > 0}
	for hostname, entry := range routes {
		healthy := runningCIDs[entry.CID]
		state := StateNotFound
		if healthy {
			state = StateRunning
		}
		result.Services = append(result.Services, ServiceHealth{
			Hostname: hostname,
			CID:      entry.CID,
			State:    state,
			Healthy:  healthy,
		})
		if !healthy {
			result.Healthy = false
		}
	}

	return result
}
