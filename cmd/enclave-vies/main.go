// Command enclave-vies is the VAT-check enclave: HMRC's REST API for GB
// VAT numbers, the EU VIES SOAP service for everyone else.
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
		Name: "vies",
		NewHandler: func(a *attest.Attestor) handler.Handler {
			return &handler.VIES{Attestor: a, Fetch: upstream.Fetch}
		},
	}
	if err := enclavemain.Run(context.Background(), os.Stdout, os.Args[1:], svc); err != nil {
		log.Fatalf("Failed to run enclave-vies: %v", err)
	}
}
