package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, doc *model.AttestationDoc) string {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestRunRequiresPCR0Flag(t *testing.T) {
	err := run(context.Background(), io.Discard, []string{"-doc", "somefile"})
	require.Error(t, err)
}

func TestRunRejectsMissingDocFile(t *testing.T) {
	err := run(context.Background(), io.Discard, []string{
		"-doc", filepath.Join(t.TempDir(), "does-not-exist.json"),
		"-pcr0", "aa",
	})
	require.Error(t, err)
}

func TestRunRejectsInvalidBase64Document(t *testing.T) {
	path := writeDoc(t, &model.AttestationDoc{NSMDocument: "not-valid-base64!!"})
	err := run(context.Background(), io.Discard, []string{"-doc", path, "-pcr0", "aa"})
	require.Error(t, err)
}

func TestRunRejectsMalformedCOSEDocument(t *testing.T) {
	// Valid base64, but not a COSE_Sign1 CBOR array underneath.
	path := writeDoc(t, &model.AttestationDoc{NSMDocument: "aGVsbG8="})
	err := run(context.Background(), io.Discard, []string{"-doc", path, "-pcr0", "aa"})
	require.Error(t, err)
}
