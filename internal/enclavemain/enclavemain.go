// Package enclavemain implements the process bootstrap shared by every
// cmd/enclave-* binary: open the NSM device (or a noop attester in testing
// mode), bind the vsock listener, and hand off to the accept loop. Each
// binary's main.go supplies only its own handler and service name; a single
// -insecure flag selects between the real NSM signer and a noop stand-in.
package enclavemain

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/attest"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/config"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/enclaveapp"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/handler"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/nonce"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/nsm"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/vsockaddr"
)

// Service bundles the one thing that differs between enclave binaries: the
// service's name and a constructor for its custom handler. NewHandler
// receives the attestor already selected for -insecure/testing mode, so
// each cmd/enclave-*/main.go only needs to name its handler type.
type Service struct {
	Name       string
	NewHandler func(a *attest.Attestor) handler.Handler
}

// noopSigner stands in for the NSM device in -insecure/testing mode.
type noopSigner struct{}

func (noopSigner) Attest(_ nonce.Nonce) (string, model.PCRs, error) {
	return "", model.PCRs{}, nil
}

// allowlistProvider is implemented by every custom handler; each owns a
// fixed set of hosts baked in at compile time for that enclave service.
type allowlistProvider interface {
	Allowlist() allowlist.List
}

func parseFlags(out io.Writer, args []string) (debug, testing bool, err error) {
	fs := flag.NewFlagSet("enclave", flag.ContinueOnError)
	fs.SetOutput(out)

	d := fs.Bool("debug", false, "enable debug logging")
	t := fs.Bool("insecure", false, "disable hardware attestation for local testing")
	if err := fs.Parse(args); err != nil {
		return false, false, err
	}
	return *d, *t, nil
}

// Run parses flags, validates configuration, and serves the handler built by
// svc.NewHandler over vsock until ctx is cancelled or an interrupt signal
// arrives.
func Run(ctx context.Context, out io.Writer, args []string, svc Service) (err error) {
	defer errs.Wrap(&err, "failed to run %s enclave", svc.Name)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	log.SetFlags(log.LstdFlags | log.Lshortfile | log.LUTC)
	log.SetOutput(out)

	debug, testing, err := parseFlags(out, args)
	if err != nil {
		return err
	}

	h := svc.NewHandler(NewAttestor(testing))

	cfg := &config.EnclaveConfig{
		ServiceName: svc.Name,
		VsockPort:   enclaveapp.Port,
		Debug:       debug,
		Testing:     testing,
	}
	if a, ok := h.(allowlistProvider); ok {
		cfg.Allowlist = a.Allowlist()
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		err := errors.New("invalid configuration")
		for field, problem := range problems {
			err = errors.Join(err, fmt.Errorf("field %q: %v", field, problem))
		}
		return err
	}

	listener, err := vsockaddr.Listen(cfg.VsockPort)
	if err != nil {
		return err
	}

	log.Printf("%s: listening on vsock port %d (testing=%v)", svc.Name, cfg.VsockPort, testing)
	enclaveapp.Run(ctx, listener, h)
	return nil
}

// NewAttestor returns a hardware-backed Attestor, or a noop one when
// testing is set.
func NewAttestor(testing bool) *attest.Attestor {
	if testing {
		return attest.New(noopSigner{})
	}
	return attest.New(nsm.New())
}
