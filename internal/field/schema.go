// Package field implements the fixed-length, field-element encoding that
// custom handlers use to project an upstream API response into a
// deterministic byte string over the BN254 scalar field.
package field

// Encoding names the interpretation applied to a field's input value before
// it is packed into a 32-byte slot.
type Encoding string

const (
	// ShortString packs the UTF-8 bytes of a string (at most 31 of them)
	// as a big-endian integer.
	ShortString Encoding = "shortString"
	// SHA256 packs SHA-256(input) reduced modulo the field's prime.
	SHA256 Encoding = "sha256"
	// UInt packs a non-negative integer strictly less than the field's
	// prime.
	UInt Encoding = "uint"
)

// Field describes one column of a schema.
type Field struct {
	Name     string   `json:"name"`
	Encoding Encoding `json:"encoding"`
	// JSType is an optional typing hint for the decoder side; the encoder
	// never inspects it.
	JSType string `json:"js_type,omitempty"`
}

// Schema is an ordered sequence of fields. Field i occupies bytes
// [32*i, 32*i+32) of an encoded block.
type Schema []Field

// ByteLen returns the length in bytes of a block encoded from s.
func (s Schema) ByteLen() int {
	return SlotSize * len(s)
}

// IndexOf returns the index of name's slot (its byte offset divided by
// SlotSize), and whether name is in s.
func (s Schema) IndexOf(name string) (int, bool) {
	for i, f := range s {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}
