// Package nonce implements the attestation-binding nonce described in
// a deterministic SHA-256 digest over the response hash, the
// API endpoint, and the timestamp, not a random freshness token. It exists
// as its own package because it crosses two boundaries: computed in
// internal/attest, then decoded to raw bytes and handed to internal/nsm's
// NSM request.
package nonce

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
)

// Len is the length of a nonce in bytes.
const Len = sha256.Size

// Nonce binds an attestation document to one specific response.
type Nonce [Len]byte

// Compute derives the deterministic nonce for one attestation:
// SHA-256(responseHash || apiEndpoint || decimal(timestamp)).
func Compute(responseHash, apiEndpoint string, timestamp int64) Nonce {
	h := sha256.New()
	h.Write([]byte(responseHash))
	h.Write([]byte(apiEndpoint))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	var n Nonce
	copy(n[:], h.Sum(nil))
	return n
}

// FromSlice turns a byte slice into a nonce. A slice shorter than Len is
// rejected; bytes beyond the first Len are ignored.
func FromSlice(s []byte) (*Nonce, error) {
	if len(s) < Len {
		return nil, errs.InvalidLength
	}
	var n Nonce
	copy(n[:], s[:Len])
	return &n, nil
}

// FromHex decodes a lowercase-hex-encoded nonce, as it appears in an
// attestation document's nonce field.
func FromHex(s string) (*Nonce, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errs.Add(err, "nonce: invalid hex")
	}
	return FromSlice(b)
}

// Hex returns the nonce as lowercase hex, matching the attestation
// document's nonce field encoding.
func (n Nonce) Hex() string {
	return hex.EncodeToString(n[:])
}
