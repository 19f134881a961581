// Command enclave-sicae looks up a Spanish taxpayer's CNAE economic
// activity codes via the SICAE ASP.NET portal.
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
		Name: "sicae",
		NewHandler: func(a *attest.Attestor) handler.Handler {
			return &handler.SICAE{Attestor: a, Fetch: upstream.Fetch}
		},
	}
	if err := enclavemain.Run(context.Background(), os.Stdout, os.Args[1:], svc); err != nil {
		log.Fatalf("Failed to run enclave-sicae: %v", err)
	}
}
