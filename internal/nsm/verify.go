package nsm

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/fxamacker/cbor/v2"
)

// auxFieldLen bounds the nonce/user_data/public_key fields a Nitro
// attestation document may carry. This system only ever populates nonce,
// but a document from a real NSM can carry all three.
const auxFieldLen = 1024

// VerifyOptions configures Verify. A nil Roots pool falls back to the
// hard-coded AWS Nitro Enclaves root. A zero CurrentTime falls back to
// time.Now(), but callers verifying archived documents should always set
// this explicitly.
type VerifyOptions struct {
	Roots       *x509.CertPool
	CurrentTime time.Time
}

var awsNitroRoot = mustParseAWSNitroRoot()

func mustParseAWSNitroRoot() *x509.CertPool {
	// https://docs.aws.amazon.com/enclaves/latest/user/verify-root.html
	const pem = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUbMtOTn+FYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(pem)) {
		panic("nsm: failed to parse embedded AWS Nitro root certificate")
	}
	return pool
}

// Verify checks a COSE_Sign1 attestation document end to end: structural
// sanity, certificate chain to the AWS Nitro root (or opts.Roots), and the
// ECDSA signature over the COSE Sig_structure. It never trusts the document
// contents until the signature checks out.
func Verify(raw []byte, opts VerifyOptions) (_ *VerifyResult, err error) {
	defer errs.Wrap(&err, "nsm: attestation document verification failed")

	cose := cosePayload{}
	if err := cbor.Unmarshal(raw, &cose); err != nil {
		return nil, fmt.Errorf("%w: not a COSE_Sign1 array", errs.InvalidFormat)
	}
	if len(cose.Protected) == 0 || len(cose.Payload) == 0 || len(cose.Signature) == 0 {
		return nil, fmt.Errorf("%w: COSE_Sign1 section missing", errs.InvalidFormat)
	}

	header := coseHeader{}
	if err := cbor.Unmarshal(cose.Protected, &header); err != nil {
		return nil, fmt.Errorf("%w: COSE_Sign1 protected header", errs.InvalidFormat)
	}
	if !usesECDSA384(&header) {
		return nil, errors.New("nsm: COSE_Sign1 algorithm is not ECDSA384")
	}

	doc := document{}
	if err := cbor.Unmarshal(cose.Payload, &doc); err != nil {
		return nil, err
	}
	if err := sanityCheck(&doc); err != nil {
		return nil, err
	}

	cert, intermediates, certificates, err := parseChain(&doc)
	if err != nil {
		return nil, err
	}

	roots := opts.Roots
	if roots == nil {
		roots = awsNitroRoot
	}
	currentTime := opts.CurrentTime
	if currentTime.IsZero() {
		currentTime = time.Now()
	}
	if _, err := cert.Verify(x509.VerifyOptions{
		Intermediates: intermediates,
		Roots:         roots,
		CurrentTime:   currentTime,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, err
	}

	sigStruct, err := cbor.Marshal(&coseSignature{
		Context:     "Signature1",
		Protected:   cose.Protected,
		ExternalAAD: []byte{},
		Payload:     cose.Payload,
	})
	if err != nil {
		return nil, err
	}
	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("nsm: leaf certificate key is not ECDSA")
	}
	ok, err = verifyECDSASignature(ecdsaKey, sigStruct, cose.Signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("nsm: signature does not match certificate")
	}

	return &VerifyResult{
		PCRs:         doc.PCRs,
		Nonce:        doc.Nonce,
		UserData:     doc.UserData,
		PublicKey:    doc.PublicKey,
		Certificates: certificates,
		Timestamp:    doc.Timestamp,
	}, nil
}

func usesECDSA384(h *coseHeader) bool {
	if i, ok := h.algorithmInt(); ok {
		return i == -35 // https://datatracker.ietf.org/doc/html/rfc8152#section-8.1
	}
	if s, ok := h.algorithmString(); ok {
		return s == "ES384"
	}
	return false
}

func sanityCheck(doc *document) error {
	if doc.ModuleID == "" || doc.Digest == "" || doc.Timestamp == 0 ||
		doc.PCRs == nil || doc.Certificate == nil || doc.CABundle == nil {
		return fmt.Errorf("%w: mandatory attestation field missing", errs.InvalidFormat)
	}
	if doc.Digest != "SHA384" {
		return errors.New("nsm: digest algorithm is not SHA384")
	}
	if len(doc.PCRs) < 1 || len(doc.PCRs) > 32 {
		return errors.New("nsm: pcrs count out of range [1, 32]")
	}
	for idx, v := range doc.PCRs {
		if idx > 31 {
			return errors.New("nsm: pcr index exceeds 31")
		}
		if !slices.Contains([]int{32, 48, 64}, len(v)) {
			return errors.New("nsm: pcr value has unexpected length")
		}
	}
	if len(doc.CABundle) < 1 {
		return errors.New("nsm: cabundle is empty")
	}
	for _, item := range doc.CABundle {
		if len(item) < 1 || len(item) > 1024 {
			return errors.New("nsm: cabundle entry has invalid length")
		}
	}
	if len(doc.PublicKey) > auxFieldLen || len(doc.UserData) > auxFieldLen || len(doc.Nonce) > auxFieldLen {
		return errors.New("nsm: auxiliary field exceeds maximum length")
	}
	return nil
}

func parseChain(doc *document) (leaf *x509.Certificate, intermediates *x509.CertPool, all []*x509.Certificate, err error) {
	leaf, err = x509.ParseCertificate(doc.Certificate)
	if err != nil {
		return nil, nil, nil, err
	}
	if leaf.PublicKeyAlgorithm != x509.ECDSA {
		return nil, nil, nil, errors.New("nsm: leaf certificate is not ECDSA")
	}
	if leaf.SignatureAlgorithm != x509.ECDSAWithSHA384 {
		return nil, nil, nil, errors.New("nsm: leaf certificate signature is not ECDSAWithSHA384")
	}

	all = append(all, leaf)
	intermediates = x509.NewCertPool()
	for _, raw := range doc.CABundle {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, nil, nil, err
		}
		intermediates.AddCert(cert)
		all = append(all, cert)
	}
	return leaf, intermediates, all, nil
}

func verifyECDSASignature(pub *ecdsa.PublicKey, sigStruct, signature []byte) (bool, error) {
	var digest []byte
	switch pub.Curve.Params().Name {
	case "P-224":
		h := sha256.Sum224(sigStruct)
		digest = h[:]
	case "P-256":
		h := sha256.Sum256(sigStruct)
		digest = h[:]
	case "P-384":
		h := sha512.Sum384(sigStruct)
		digest = h[:]
	case "P-512":
		h := sha512.Sum512(sigStruct)
		digest = h[:]
	default:
		return false, fmt.Errorf("nsm: unsupported curve %s", pub.Curve.Params().Name)
	}
	if len(signature) != 2*len(digest) {
		return false, nil
	}
	r := new(big.Int).SetBytes(signature[:len(digest)])
	s := new(big.Int).SetBytes(signature[len(digest):])
	return ecdsa.Verify(pub, digest, r, s), nil
}
