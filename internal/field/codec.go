package field

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// SlotSize is the number of bytes each field occupies in an encoded block.
const SlotSize = 32

var (
	// ErrStringTooLong is returned when a shortString input exceeds 31
	// bytes once UTF-8 encoded.
	ErrStringTooLong = errors.New("field: string too long for a single slot")
	// ErrUIntOutOfRange is returned when a uint input is negative or is
	// not strictly less than the field modulus.
	ErrUIntOutOfRange = errors.New("field: uint out of range")
	// ErrUnknownEncoding is returned for any Encoding not recognised by
	// this package.
	ErrUnknownEncoding = errors.New("field: unknown encoding")
)

// Modulus is the prime of the BN254 scalar field, sourced from
// consensys/gnark-crypto's generated field package so that this codec's
// notion of "the field" can never drift from the elliptic-curve library the
// rest of the ecosystem uses for BN254 arithmetic.
var Modulus = fr.Modulus()

// Value is the input associated with one schema field. A nil, missing, or
// empty-string value encodes to the all-zero sentinel slot regardless of
// the field's declared Encoding.
type Value = any

// Encode concatenates the per-field encodings of values, in schema order.
// values is keyed by field name; a schema field with no entry in values is
// treated as absent (the zero sentinel), and entries whose names are not in
// schema are ignored.
func Encode(schema Schema, values map[string]Value) ([]byte, error) {
	out := make([]byte, schema.ByteLen())
	for i, f := range schema {
		slot, err := encodeOne(f.Encoding, values[f.Name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		copy(out[i*SlotSize:(i+1)*SlotSize], slot[:])
	}
	return out, nil
}

// EncodeSlot encodes a single field into a 32-byte slot, applying the same
// sentinel and range rules as Encode.
func EncodeSlot(enc Encoding, v Value) ([SlotSize]byte, error) {
	return encodeOne(enc, v)
}

func encodeOne(enc Encoding, v Value) (slot [SlotSize]byte, err error) {
	if isAbsent(v) {
		return slot, nil // all-zero sentinel
	}

	switch enc {
	case ShortString:
		s, ok := v.(string)
		if !ok {
			return slot, fmt.Errorf("%w: expected string, got %T", ErrUnknownEncoding, v)
		}
		return encodeShortString(s)
	case SHA256:
		s, ok := v.(string)
		if !ok {
			return slot, fmt.Errorf("%w: expected string, got %T", ErrUnknownEncoding, v)
		}
		return encodeSHA256(s), nil
	case UInt:
		n, err := toBigInt(v)
		if err != nil {
			return slot, err
		}
		return encodeUInt(n)
	default:
		return slot, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}

// isAbsent reports whether v is nil, a missing map entry, or an empty
// string -- the three inputs that collapse to the all-zero sentinel slot.
// This is the source of the documented uint(0)/absent collision: both
// produce the same 32 zero bytes.
func isAbsent(v Value) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}

func encodeShortString(s string) ([SlotSize]byte, error) {
	var slot [SlotSize]byte
	if s == "" {
		return slot, nil
	}
	b := []byte(s)
	if len(b) > SlotSize-1 {
		return slot, ErrStringTooLong
	}
	// Interpret the UTF-8 bytes as a big-endian integer, left-padded to 32
	// bytes -- i.e. right-align the bytes within the slot.
	copy(slot[SlotSize-len(b):], b)
	return slot, nil
}

func encodeSHA256(s string) [SlotSize]byte {
	var slot [SlotSize]byte
	if s == "" {
		return slot
	}
	h := sha256.Sum256([]byte(s))
	n := new(big.Int).SetBytes(h[:])
	n.Mod(n, Modulus)
	b := n.Bytes()
	copy(slot[SlotSize-len(b):], b)
	return slot
}

func encodeUInt(n *big.Int) ([SlotSize]byte, error) {
	var slot [SlotSize]byte
	if n.Sign() < 0 || n.Cmp(Modulus) >= 0 {
		return slot, ErrUIntOutOfRange
	}
	if n.Sign() == 0 {
		return slot, nil
	}
	b := n.Bytes()
	if len(b) > SlotSize {
		return slot, ErrUIntOutOfRange
	}
	copy(slot[SlotSize-len(b):], b)
	return slot, nil
}

// toBigInt normalizes the handful of Go numeric types custom handlers pass
// in (int, int64, uint64, *big.Int) into a *big.Int.
func toBigInt(v Value) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case bool:
		if n {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	default:
		return nil, fmt.Errorf("%w: unsupported uint input type %T", ErrUIntOutOfRange, v)
	}
}
