package nsm

import (
	"encoding/hex"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/fxamacker/cbor/v2"
)

// extractPCRs pulls PCR0-PCR2 out of a COSE_Sign1 attestation document's
// CBOR payload as lowercase hex, without verifying the document's
// signature or certificate chain. The generation side calls this against
// its own freshly-issued document, so re-verifying the signature would
// only reject a document because of a bug in this same process.
//
// PCR extraction is best-effort: a parse failure still
// lets the caller return the canonical base64 document with empty PCR
// fields rather than fail the whole attestation.
func extractPCRs(raw []byte) (model.PCRs, error) {
	cose := cosePayload{}
	if err := cbor.Unmarshal(raw, &cose); err != nil {
		return model.PCRs{}, err
	}

	doc := document{}
	if err := cbor.Unmarshal(cose.Payload, &doc); err != nil {
		return model.PCRs{}, err
	}

	return model.PCRs{
		PCR0: hexOf(doc.PCRs[0]),
		PCR1: hexOf(doc.PCRs[1]),
		PCR2: hexOf(doc.PCRs[2]),
	}, nil
}

func hexOf(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}
