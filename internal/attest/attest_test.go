package attest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/nonce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	doc  string
	pcrs model.PCRs
	err  error

	lastNonce nonce.Nonce
}

func (f *fakeSigner) Attest(n nonce.Nonce) (string, model.PCRs, error) {
	f.lastNonce = n
	return f.doc, f.pcrs, f.err
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestAttestComputesInvariants(t *testing.T) {
	signer := &fakeSigner{doc: "ZG9j", pcrs: model.PCRs{PCR0: "aa", PCR1: "bb", PCR2: "cc"}}
	a := &Attestor{Signer: signer, Now: fixedClock(time.Unix(1700000000, 0))}

	body := []byte(`{"ok":true}`)
	headers := model.Headers{{Name: "Accept", Value: "application/json"}}

	doc, err := a.Attest(body, "GET", "api.example.com/v1/vat", "https://api.example.com/v1/vat?x=1", headers)
	require.NoError(t, err)

	wantResponseHash := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(wantResponseHash[:]), doc.ResponseHash)

	headerJSON, err := headers.MarshalJSON()
	require.NoError(t, err)
	h := sha256.New()
	h.Write([]byte("https://api.example.com/v1/vat?x=1"))
	h.Write([]byte("|"))
	h.Write([]byte("GET"))
	h.Write([]byte("|"))
	h.Write(headerJSON)
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), doc.RequestHash)

	wantNonce := nonce.Compute(doc.ResponseHash, "api.example.com/v1/vat", 1700000000)
	assert.Equal(t, wantNonce.Hex(), doc.Nonce)
	assert.Equal(t, wantNonce, signer.lastNonce)

	assert.Equal(t, "api.example.com/v1/vat", doc.APIEndpoint)
	assert.Equal(t, "GET", doc.APIMethod)
	assert.Equal(t, int64(1700000000), doc.Timestamp)
	assert.Equal(t, "ZG9j", doc.NSMDocument)
	assert.Equal(t, model.PCRs{PCR0: "aa", PCR1: "bb", PCR2: "cc"}, doc.PCRs)
	assert.True(t, strings.HasPrefix(doc.AttestationID, "enc-"))
}

func TestAttestRequestHashIsStableForSameHeaderOrder(t *testing.T) {
	signer := &fakeSigner{}
	clock := fixedClock(time.Unix(1, 0))

	a1 := &Attestor{Signer: signer, Now: clock}
	a2 := &Attestor{Signer: signer, Now: clock}

	h1 := model.Headers{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}
	h2 := model.Headers{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}

	d1, err := a1.Attest([]byte("x"), "GET", "ep", "url", h1)
	require.NoError(t, err)
	d2, err := a2.Attest([]byte("x"), "GET", "ep", "url", h2)
	require.NoError(t, err)
	assert.Equal(t, d1.RequestHash, d2.RequestHash)
}

func TestAttestPropagatesSignerError(t *testing.T) {
	signer := &fakeSigner{err: errors.New("nsm down")}
	a := New(signer)
	_, err := a.Attest([]byte("x"), "GET", "ep", "url", nil)
	require.Error(t, err)
}
