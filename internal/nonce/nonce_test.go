package nonce

import (
	"testing"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	validSlice := make([]byte, Len)
	validSlice[0] = 1

	cases := []struct {
		name    string
		in      []byte
		want    Nonce
		wantErr error
	}{
		{
			name:    "too short",
			in:      []byte{},
			wantErr: errs.InvalidLength,
		},
		{
			name: "too long",
			in:   append(validSlice, 0),
			want: Nonce{1},
		},
		{
			name: "valid",
			in:   validSlice,
			want: Nonce{1},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := FromSlice(c.in)
			if c.wantErr != nil {
				assert.ErrorIs(t, err, c.wantErr)
				return
			}
			assert.Equal(t, c.want, *got)
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute("abc123", "api.example.com/v1/vat", 1700000000)
	b := Compute("abc123", "api.example.com/v1/vat", 1700000000)
	assert.Equal(t, a, b)
}

func TestComputeDiffersOnAnyInput(t *testing.T) {
	base := Compute("abc123", "api.example.com/v1/vat", 1700000000)

	assert.NotEqual(t, base, Compute("xyz789", "api.example.com/v1/vat", 1700000000))
	assert.NotEqual(t, base, Compute("abc123", "api.example.com/v1/other", 1700000000))
	assert.NotEqual(t, base, Compute("abc123", "api.example.com/v1/vat", 1700000001))
}

func TestHexRoundTrip(t *testing.T) {
	n := Compute("abc123", "api.example.com/v1/vat", 1700000000)
	decoded, err := FromHex(n.Hex())
	require.NoError(t, err)
	assert.Equal(t, n, *decoded)
}

func TestFromHexInvalid(t *testing.T) {
	_, err := FromHex("not-hex")
	assert.Error(t, err)
}
