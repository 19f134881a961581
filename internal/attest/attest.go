// Package attest composes one fetch's outcome into a signed attestation
// document: one attestation per request/response pair, rather than one
// attestation per long-lived listener.
package attest

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/nonce"

	"github.com/google/uuid"
)

// Signer is the subset of *nsm.Client this package depends on.
type Signer interface {
	Attest(n nonce.Nonce) (docBase64 string, pcrs model.PCRs, err error)
}

// Clock returns the current time; overridden in tests for reproducible
// timestamps.
type Clock func() time.Time

// Attestor turns one fetch outcome into an AttestationDoc.
type Attestor struct {
	Signer Signer
	Now    Clock
}

// New returns an Attestor backed by signer, using time.Now for timestamps.
func New(signer Signer) *Attestor {
	return &Attestor{Signer: signer, Now: time.Now}
}

// Attest builds the attestation document for one successful fetch, per
// the attestation envelope:
//
//	response_hash = SHA-256(rawBody)
//	request_hash  = SHA-256(url | "|" | method | "|" | json(headers))
//	api_endpoint  = hostname + path (no query string, no scheme)
//	nonce         = SHA-256(response_hash | api_endpoint | decimal(timestamp))
func (a *Attestor) Attest(
	rawBody []byte,
	method string,
	apiEndpoint string,
	url string,
	requestHeaders model.Headers,
) (_ *model.AttestationDoc, err error) {
	defer errs.Wrap(&err, "attest: failed to build attestation document")

	responseHash := hashHex(rawBody)
	requestHash, err := hashRequest(url, method, requestHeaders)
	if err != nil {
		return nil, err
	}

	timestamp := a.Now().UTC().Unix()
	n := nonce.Compute(responseHash, apiEndpoint, timestamp)

	docB64, pcrs, err := a.Signer.Attest(n)
	if err != nil {
		return nil, err
	}

	return &model.AttestationDoc{
		AttestationID: "enc-" + uuid.NewString(),
		ResponseHash:  responseHash,
		RequestHash:   requestHash,
		APIEndpoint:   apiEndpoint,
		APIMethod:     method,
		Timestamp:     timestamp,
		NSMDocument:   docB64,
		PCRs:          pcrs,
		Nonce:         n.Hex(),
	}, nil
}

func hashHex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// hashRequest hashes the request's identity. headers is marshaled through
// model.Headers' order-preserving MarshalJSON so the digest is reproducible
// across implementations that received the same header order.
func hashRequest(url, method string, headers model.Headers) (string, error) {
	headerJSON, err := headers.MarshalJSON()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(method))
	h.Write([]byte("|"))
	h.Write(headerJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}
