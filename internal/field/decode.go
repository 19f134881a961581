package field

import (
	"bytes"
	"math/big"
)

// DecodeShortString reverses EncodeSlot for a shortString slot: it strips
// the left zero-padding and returns the remaining bytes as a string. It is
// only meaningful for slots produced from short strings -- sha256 and uint
// slots are not generally recoverable, by design (see Verify).
func DecodeShortString(slot [SlotSize]byte) string {
	i := 0
	for i < SlotSize && slot[i] == 0 {
		i++
	}
	return string(slot[i:])
}

// DecodeUInt reverses EncodeSlot for a uint slot, returning the big-endian
// integer the slot represents.
func DecodeUInt(slot [SlotSize]byte) *big.Int {
	return new(big.Int).SetBytes(slot[:])
}

// Verify reports whether slot is the sha256 encoding of s. Because sha256
// slots are irreversible (they carry a reduced hash, not the input), this
// is the only way to check a claimed value against a slot.
func Verify(s string, slot [SlotSize]byte) bool {
	got := encodeSHA256(s)
	return bytes.Equal(got[:], slot[:])
}
