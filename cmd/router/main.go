// Command router is the host-side process that discovers enclaves by
// vsock CID and forwards attested-fetch requests to them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/config"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/router"
)

func run(ctx context.Context, out io.Writer) (err error) {
	defer errs.Wrap(&err, "failed to run router")

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	log.SetFlags(log.LstdFlags | log.Lshortfile | log.LUTC)
	log.SetOutput(out)

	cfg, err := config.LoadRouterConfig()
	if err != nil {
		return err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		err := errors.New("invalid configuration")
		for field, problem := range problems {
			err = errors.Join(err, fmt.Errorf("field %q: %v", field, problem))
		}
		return err
	}

	rt := router.New(cfg)
	rt.Debug = os.Getenv("DEBUG") != ""

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		Handler: rt.Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Printf("router: listening on %s, routing %d host(s)", srv.Addr, len(cfg.Routes))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := run(context.Background(), os.Stdout); err != nil {
		log.Fatalf("Failed to run router: %v", err)
	}
}
