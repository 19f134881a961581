package nsm

// This file was taken from Stojan Dimitrovski's excellent nitrite package:
// https://github.com/hf/nitrite
// This copy carries local adjustments to the sanity checks so they line up
// with the Nitro Enclave attestation document specification:
// https://docs.aws.amazon.com/pdfs/enclaves/latest/user/enclaves-user.pdf
//
// The file was originally licensed as follows:
// -----------------------------------------------------------------------------
// Copyright 2020 Stojan Dimitrovski
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

import (
	"crypto/x509"

	"github.com/fxamacker/cbor/v2"
)

// pcrMap maps a PCR index to its measured value, as it appears inside a
// COSE_Sign1 attestation payload.
type pcrMap map[uint][]byte

// document is the AWS Nitro Enclave attestation document as specified on
// page 70 of the Nitro Enclaves user guide.
type document struct {
	ModuleID    string   `cbor:"module_id"`
	Timestamp   uint64   `cbor:"timestamp"`
	Digest      string   `cbor:"digest"`
	PCRs        pcrMap   `cbor:"pcrs"`
	Certificate []byte   `cbor:"certificate"`
	CABundle    [][]byte `cbor:"cabundle"`

	PublicKey []byte `cbor:"public_key"`
	UserData  []byte `cbor:"user_data"`
	Nonce     []byte `cbor:"nonce"`
}

// VerifyResult is a successful chain-and-signature verification of an
// attestation document, returned by Verify.
type VerifyResult struct {
	PCRs         map[uint][]byte
	Nonce        []byte
	UserData     []byte
	PublicKey    []byte
	Certificates []*x509.Certificate
	Timestamp    uint64
}

type coseHeader struct {
	Alg interface{} `cbor:"1,keyasint,omitempty"`
}

func (h *coseHeader) algorithmString() (string, bool) {
	s, ok := h.Alg.(string)
	return s, ok
}

func (h *coseHeader) algorithmInt() (int64, bool) {
	i, ok := h.Alg.(int64)
	return i, ok
}

type cosePayload struct {
	_ struct{} `cbor:",toarray"`

	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

type coseSignature struct {
	_ struct{} `cbor:",toarray"`

	Context     string
	Protected   []byte
	ExternalAAD []byte
	Payload     []byte
}
