package field

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testSchema = Schema{
	{Name: "countryCode", Encoding: ShortString},
	{Name: "vatNumber", Encoding: ShortString},
	{Name: "valid", Encoding: UInt},
	{Name: "name", Encoding: SHA256},
	{Name: "address", Encoding: SHA256},
}

func TestEncodeByteLen(t *testing.T) {
	b, err := Encode(testSchema, map[string]Value{
		"countryCode": "PT",
		"vatNumber":   "507172230",
		"valid":       1,
		"name":        "TYTLE LDA",
		"address":     "RUA DO EXEMPLO 123",
	})
	require.NoError(t, err)
	require.Len(t, b, testSchema.ByteLen())
	require.Equal(t, SlotSize*len(testSchema), len(b))
}

func TestEncodeShortStringRoundTrip(t *testing.T) {
	slot, err := EncodeSlot(ShortString, "PT")
	require.NoError(t, err)
	require.Equal(t, "PT", DecodeShortString(slot))
}

func TestEncodeShortStringTooLong(t *testing.T) {
	_, err := EncodeSlot(ShortString, strings.Repeat("a", 32))
	require.ErrorIs(t, err, ErrStringTooLong)
}

func TestEncodeShortStringMaxLength(t *testing.T) {
	s := strings.Repeat("a", 31)
	slot, err := EncodeSlot(ShortString, s)
	require.NoError(t, err)
	require.Equal(t, s, DecodeShortString(slot))
}

func TestEncodeSHA256Verify(t *testing.T) {
	slot, err := EncodeSlot(SHA256, "TYTLE LDA")
	require.NoError(t, err)
	require.True(t, Verify("TYTLE LDA", slot))
	require.False(t, Verify("SOMEONE ELSE", slot))
}

func TestEncodeUIntZeroAndAbsentCollide(t *testing.T) {
	zero, err := EncodeSlot(UInt, 0)
	require.NoError(t, err)

	absent, err := EncodeSlot(UInt, nil)
	require.NoError(t, err)

	require.Equal(t, zero, absent, "uint(0) and absent must be byte-identical")
	require.Equal(t, [SlotSize]byte{}, zero)
}

func TestEncodeUIntOutOfRange(t *testing.T) {
	_, err := EncodeSlot(UInt, new(big.Int).Set(Modulus))
	require.ErrorIs(t, err, ErrUIntOutOfRange)

	_, err = EncodeSlot(UInt, big.NewInt(-1))
	require.ErrorIs(t, err, ErrUIntOutOfRange)
}

func TestSlotValuesAreBelowModulus(t *testing.T) {
	inputs := []struct {
		enc Encoding
		v   Value
	}{
		{ShortString, "hello world"},
		{SHA256, "arbitrary input string"},
		{UInt, 12345},
	}
	for _, in := range inputs {
		slot, err := EncodeSlot(in.enc, in.v)
		require.NoError(t, err)
		n := new(big.Int).SetBytes(slot[:])
		require.Equal(t, -1, n.Cmp(Modulus), "slot value must be < modulus")
	}
}

func TestGBVAT404Sentinel(t *testing.T) {
	// Mirrors the "GB VAT 404" scenario: valid=false, name/address absent.
	b, err := Encode(testSchema, map[string]Value{
		"countryCode": "GB",
		"vatNumber":   "000000000",
		"valid":       0,
	})
	require.NoError(t, err)

	var zero [SlotSize]byte
	require.Equal(t, zero[:], b[64:96])
	require.Equal(t, zero[:], b[96:128])
	require.Equal(t, zero[:], b[128:160])
}
