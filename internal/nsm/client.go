// Package nsm implements the enclave's client for the AWS Nitro Security
// Module. It issues one ioctl-backed attestation request per
// fetch, and separately exposes Verify for offline signature/chain
// checking (used by cmd/attestctl and by anyone auditing a stored
// attestation document).
package nsm

import (
	"encoding/base64"
	"errors"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/nonce"

	"github.com/hf/nsm"
	"github.com/hf/nsm/request"
	"github.com/hf/nsm/response"
)

// sender is the subset of *nsm.Session this package depends on, so tests
// can substitute a fake /dev/nsm without opening the real device.
type sender interface {
	Send(request.Request) (response.Response, error)
}

var _ sender = (*nsm.Session)(nil)

// Client talks to the Nitro Security Module over a single, lazily-opened
// session. It is not safe for concurrent use, which matches the enclave's
// sequential accept loop: only one attestation is ever in
// flight at a time.
type Client struct {
	open    func() (sender, error)
	session sender
}

// New returns a Client that opens the default /dev/nsm session on first
// use.
func New() *Client {
	return &Client{
		open: func() (sender, error) {
			return nsm.OpenDefaultSession()
		},
	}
}

// Attest requests one attestation document binding n, returning it
// base64-encoded alongside PCR0-PCR2 in lowercase hex. A failure to lift
// the PCRs out of the returned document does not fail the call: pcrs comes
// back zero-valued and docBase64 is still authoritative.
func (c *Client) Attest(n nonce.Nonce) (docBase64 string, pcrs model.PCRs, err error) {
	defer errs.WrapErr(&err, errs.AttestationInternal)

	if c.session == nil {
		s, err := c.open()
		if err != nil {
			return "", model.PCRs{}, err
		}
		c.session = s
	}

	nb := n // copy so the slice below can't alias the caller's array
	resp, err := c.session.Send(&request.Attestation{Nonce: nb[:]})
	if err != nil {
		return "", model.PCRs{}, err
	}
	if resp.Attestation == nil || resp.Attestation.Document == nil {
		return "", model.PCRs{}, errors.New("nsm: response missing attestation document")
	}

	doc := resp.Attestation.Document
	pcrs, _ = extractPCRs(doc)
	return base64.StdEncoding.EncodeToString(doc), pcrs, nil
}
