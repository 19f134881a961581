package handler

import (
	"context"
	"testing"
	"time"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/allowlist"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/attest"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/httpmicro"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/nonce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSigner struct{}

func (stubSigner) Attest(nonce.Nonce) (string, model.PCRs, error) {
	return "ZG9j", model.PCRs{PCR0: "aa"}, nil
}

func TestGenericRejectsHostNotAllowed(t *testing.T) {
	g := &Generic{
		Allowlist: allowlist.List{{Hostname: "api.example.com", Transport: allowlist.TLS}},
		Attestor:  attest.New(stubSigner{}),
	}
	resp := g.Handle(context.Background(), &model.Request{
		URL:    "https://not-allowed.example.com/v1/thing",
		Method: "GET",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, uint16(403), resp.Status)
	assert.Nil(t, resp.Attestation)
}

func TestGenericRejectsBadURL(t *testing.T) {
	g := &Generic{Allowlist: allowlist.List{}, Attestor: attest.New(stubSigner{})}
	resp := g.Handle(context.Background(), &model.Request{URL: "://bad", Method: "GET"})
	assert.False(t, resp.Success)
	assert.Equal(t, uint16(400), resp.Status)
}

func TestGenericRejectsUnlistedHostWithQueryString(t *testing.T) {
	a := attest.New(stubSigner{})
	a.Now = func() time.Time { return time.Unix(1, 0) }

	// Not allowlisted, so Handle short-circuits before any network call --
	// this exercises Gate's URL parsing path only.
	g := &Generic{Allowlist: nil, Attestor: a}
	resp := g.Handle(context.Background(), &model.Request{
		URL:    "https://api.example.com/v1/thing?secret=1",
		Method: "GET",
	})
	require.False(t, resp.Success)
	assert.Equal(t, uint16(403), resp.Status)
}

func TestGenericHandleForwardsToStubFetchAndAttests(t *testing.T) {
	fetch := func(_ context.Context, entry allowlist.Entry, path, method string, headers model.Headers, body []byte) (*httpmicro.Response, error) {
		assert.Equal(t, "/v1/thing", path)
		return &httpmicro.Response{Status: 200, Headers: model.Headers{{Name: "Content-Type", Value: "application/json"}}, Body: []byte(`{"ok":true}`)}, nil
	}
	g := &Generic{
		Allowlist: allowlist.List{{Hostname: "api.example.com", Transport: allowlist.TLS}},
		Attestor:  attest.New(stubSigner{}),
		Fetch:     fetch,
	}

	resp := g.Handle(context.Background(), &model.Request{URL: "https://api.example.com/v1/thing", Method: "GET"})

	require.True(t, resp.Success)
	assert.Equal(t, uint16(200), resp.Status)
	assert.Equal(t, []byte(`{"ok":true}`), resp.RawBody)
	require.NotNil(t, resp.Attestation)
}
