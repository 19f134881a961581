// Command enclave-stripe attests Stripe REST API listings (charges,
// payment intents, invoices, customers, balance).
package main

import (
	"context"
	"log"
	"os"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/attest"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/enclavemain"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/handler"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/upstream"
)

func main() {
	svc := enclavemain.Service{
		Name: "stripe",
		NewHandler: func(a *attest.Attestor) handler.Handler {
			return &handler.Stripe{Attestor: a, Fetch: upstream.Fetch}
		},
	}
	if err := enclavemain.Run(context.Background(), os.Stdout, os.Args[1:], svc); err != nil {
		log.Fatalf("Failed to run enclave-stripe: %v", err)
	}
}
