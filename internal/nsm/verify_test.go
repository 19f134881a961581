package nsm

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

// buildTestCOSEDocument returns a syntactically well-formed but unsigned
// COSE_Sign1 byte string carrying three PCR values. It is good enough for
// exercising extraction/decoding paths that never check the signature; it
// is not accepted by Verify.
func buildTestCOSEDocument(t *testing.T) ([]byte, error) {
	t.Helper()

	doc := document{
		ModuleID:    "i-test.enc",
		Timestamp:   1700000000,
		Digest:      "SHA384",
		PCRs:        pcrMap{0: fill(0xaa), 1: fill(0xbb), 2: fill(0xcc)},
		Certificate: []byte{0x01},
		CABundle:    [][]byte{{0x02}},
	}
	payload, err := cbor.Marshal(&doc)
	require.NoError(t, err)

	protected, err := cbor.Marshal(&coseHeader{Alg: int64(-35)})
	require.NoError(t, err)

	return cbor.Marshal(&cosePayload{
		Protected:   protected,
		Unprotected: nil,
		Payload:     payload,
		Signature:   make([]byte, 96),
	})
}

func fill(b byte) []byte {
	out := make([]byte, 48)
	for i := range out {
		out[i] = b
	}
	return out
}

// buildSignedCOSEDocument produces a fully valid COSE_Sign1 attestation
// document signed by a freshly generated, self-signed P-384 root, along
// with a cert pool containing that root, so Verify can be exercised
// end to end without any embedded fixtures.
func buildSignedCOSEDocument(t *testing.T) ([]byte, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.nitro-enclaves"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SignatureAlgorithm:    x509.ECDSAWithSHA384,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	doc := document{
		ModuleID:    "i-test.enc",
		Timestamp:   1700000000,
		Digest:      "SHA384",
		PCRs:        pcrMap{0: fill(0xaa), 1: fill(0xbb), 2: fill(0xcc)},
		Certificate: certDER,
		CABundle:    [][]byte{certDER},
	}
	payload, err := cbor.Marshal(&doc)
	require.NoError(t, err)

	protected, err := cbor.Marshal(&coseHeader{Alg: int64(-35)})
	require.NoError(t, err)

	sigStruct, err := cbor.Marshal(&coseSignature{
		Context:     "Signature1",
		Protected:   protected,
		ExternalAAD: []byte{},
		Payload:     payload,
	})
	require.NoError(t, err)

	digest := sha512.Sum384(sigStruct)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	require.NoError(t, err)

	sig := make([]byte, 96)
	r.FillBytes(sig[:48])
	s.FillBytes(sig[48:])

	raw, err := cbor.Marshal(&cosePayload{
		Protected:   protected,
		Unprotected: nil,
		Payload:     payload,
		Signature:   sig,
	})
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(mustParseCert(t, certDER))
	return raw, pool
}

func mustParseCert(t *testing.T, der []byte) *x509.Certificate {
	t.Helper()
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestVerifyAcceptsValidDocument(t *testing.T) {
	raw, roots := buildSignedCOSEDocument(t)
	res, err := Verify(raw, VerifyOptions{Roots: roots, CurrentTime: time.Now()})
	require.NoError(t, err)
	require.Len(t, res.PCRs, 3)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := Verify([]byte("not cbor"), VerifyOptions{})
	require.Error(t, err)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	raw, roots := buildSignedCOSEDocument(t)

	var cose cosePayload
	require.NoError(t, cbor.Unmarshal(raw, &cose))
	var doc document
	require.NoError(t, cbor.Unmarshal(cose.Payload, &doc))
	doc.PCRs[0][0] ^= 0xff
	tampered, err := cbor.Marshal(&doc)
	require.NoError(t, err)
	cose.Payload = tampered
	raw, err = cbor.Marshal(&cose)
	require.NoError(t, err)

	_, err = Verify(raw, VerifyOptions{Roots: roots, CurrentTime: time.Now()})
	require.Error(t, err)
}

func TestVerifyRejectsExpiredCertificate(t *testing.T) {
	raw, roots := buildSignedCOSEDocument(t)
	_, err := Verify(raw, VerifyOptions{Roots: roots, CurrentTime: time.Now().Add(24 * time.Hour)})
	require.Error(t, err)
}
