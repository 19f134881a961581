package allowlist

import (
	"errors"
	"testing"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/stretchr/testify/require"
)

func testList() List {
	return List{
		{Hostname: "api.stripe.com", ProxyPort: 8446, Transport: TLS},
		{Hostname: "www.sicae.es", ProxyPort: 8445, Transport: TLS},
	}
}

func TestLookup(t *testing.T) {
	l := testList()

	entry, ok := l.Lookup("api.stripe.com")
	require.True(t, ok)
	require.Equal(t, uint32(8446), entry.ProxyPort)

	_, ok = l.Lookup("API.STRIPE.COM")
	require.False(t, ok, "lookup must be case-sensitive")

	_, ok = l.Lookup("evil.example.com")
	require.False(t, ok)
}

func TestGateAllowsListedHost(t *testing.T) {
	entry, u, err := Gate(testList(), "https://api.stripe.com/v1/charges")
	require.NoError(t, err)
	require.Equal(t, "api.stripe.com", entry.Hostname)
	require.Equal(t, "/v1/charges", u.Path)
}

func TestGateRejectsUnlistedHost(t *testing.T) {
	_, _, err := Gate(testList(), "https://evil.example.com/steal")
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.HostNotAllowed))
}

func TestGateRejectsMalformedURL(t *testing.T) {
	_, _, err := Gate(testList(), "://not-a-url")
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.BadRequest))
}
