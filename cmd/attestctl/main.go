// Command attestctl is the offline verifier for an attestation document
// produced by an enclave: it decodes the embedded COSE_Sign1 document,
// verifies its signature chain against the AWS Nitro root, and compares
// PCR0 against an expected value.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/nsm"
)

var errFailedToVerify = errors.New("failed to verify attestation document")

type cliConfig struct {
	docPath      string
	expectedPCR0 string
}

func parseFlags(out io.Writer, args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("attestctl", flag.ContinueOnError)
	fs.SetOutput(out)

	doc := fs.String("doc", "-", "path to an attestation document JSON file, or '-' for stdin")
	pcr0 := fs.String("pcr0", "", "expected PCR0 as lowercase hex")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *pcr0 == "" {
		return nil, errors.New("flag -pcr0 must be provided")
	}
	return &cliConfig{docPath: *doc, expectedPCR0: strings.ToLower(*pcr0)}, nil
}

func readDoc(cfg *cliConfig) (*model.AttestationDoc, error) {
	var (
		raw []byte
		err error
	)
	if cfg.docPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(cfg.docPath)
	}
	if err != nil {
		return nil, err
	}

	var doc model.AttestationDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse attestation document: %w", err)
	}
	return &doc, nil
}

func verify(_ context.Context, out io.Writer, cfg *cliConfig) (err error) {
	defer errs.WrapErr(&err, errFailedToVerify)

	doc, err := readDoc(cfg)
	if err != nil {
		return err
	}

	raw, err := base64.StdEncoding.DecodeString(doc.NSMDocument)
	if err != nil {
		return fmt.Errorf("nsm_document is not valid base64: %w", err)
	}

	result, err := nsm.Verify(raw, nsm.VerifyOptions{})
	if err != nil {
		return err
	}

	gotPCR0 := fmt.Sprintf("%x", result.PCRs[0])
	fmt.Fprintf(out, "attestation_id: %s\n", doc.AttestationID)
	fmt.Fprintf(out, "api_endpoint:   %s\n", doc.APIEndpoint)
	fmt.Fprintf(out, "response_hash:  %s\n", doc.ResponseHash)
	fmt.Fprintf(out, "pcr0 (attested):  %s\n", gotPCR0)
	fmt.Fprintf(out, "pcr0 (expected):  %s\n", cfg.expectedPCR0)

	if gotPCR0 != cfg.expectedPCR0 {
		fmt.Fprintln(out, color.RedString("PCR0 mismatch: enclave code does NOT match expected image"))
		return fmt.Errorf("pcr0 mismatch: got %s, want %s", gotPCR0, cfg.expectedPCR0)
	}
	fmt.Fprintln(out, color.GreenString("PCR0 matches: enclave code matches expected image"))
	return nil
}

func run(ctx context.Context, out io.Writer, args []string) error {
	cfg, err := parseFlags(out, args)
	if err != nil {
		return err
	}
	return verify(ctx, out, cfg)
}

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("attestctl: %v", err))
		os.Exit(1)
	}
}
