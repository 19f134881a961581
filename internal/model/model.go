// Package model implements the wire-level data model shared by the enclave
// accept loop, the host router, and every request handler: the enclave
// request/response envelope, ordered headers, and the attestation document.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Header is a single name/value pair, kept in the order the caller sent it.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered mapping of header-name to value. Unlike a Go map,
// its iteration order is exactly the order headers were added, which
// matters because request hashing feeds json(headers) into the JSON
// serialization of headers must preserve caller order to be reproducible
// across implementations.
type Headers []Header

// Get returns the first value for name (case-insensitive), and whether it
// was found.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if equalFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Set overwrites the first existing entry for name (case-insensitive) or
// appends a new one, and returns the resulting Headers.
func (h Headers) Set(name, value string) Headers {
	for i, kv := range h {
		if equalFold(kv.Name, name) {
			h[i].Value = value
			return h
		}
	}
	return append(h, Header{Name: name, Value: value})
}

// MarshalJSON serializes h as a JSON object with keys in insertion order
// and no inserted whitespace, matching the "stable serialiser" contract
// needed for request_hash to stay reproducible across implementations.
func (h Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON preserves the key order found in the raw JSON object by
// walking the token stream instead of decoding into a map.
func (h *Headers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("model: expected JSON object for headers, got %v", tok)
	}

	var out Headers
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("model: expected string header name, got %v", keyTok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, Header{Name: key, Value: value})
	}
	*h = out
	return nil
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Request is the caller-supplied enclave request (see "Enclave
// request").
type Request struct {
	ID      string  `json:"id,omitempty"`
	URL     string  `json:"url"`
	Method  string  `json:"method"`
	Headers Headers `json:"headers,omitempty"`
	Body    []byte  `json:"body,omitempty"`
}

// Response is the enclave's reply ("Enclave response" below). When
// Success is false, Attestation must be nil and Error must be set.
type Response struct {
	Success     bool             `json:"success"`
	Status      uint16           `json:"status,omitempty"`
	Headers     Headers          `json:"headers,omitempty"`
	RawBody     []byte           `json:"raw_body,omitempty"`
	Error       string           `json:"error,omitempty"`
	Attestation *AttestationDoc  `json:"attestation,omitempty"`
}

// Failure builds a Response with success=false and the given status/error.
func Failure(status uint16, err error) *Response {
	return &Response{Success: false, Status: status, Error: err.Error()}
}

// PCRs holds the three platform configuration registers this system
// attests over.
type PCRs struct {
	PCR0 string `json:"pcr0"`
	PCR1 string `json:"pcr1"`
	PCR2 string `json:"pcr2"`
}

// AttestationDoc is the attestation envelope handed back to callers.
type AttestationDoc struct {
	AttestationID string `json:"attestation_id"`
	ResponseHash  string `json:"response_hash"`
	RequestHash   string `json:"request_hash"`
	APIEndpoint   string `json:"api_endpoint"`
	APIMethod     string `json:"api_method"`
	Timestamp     int64  `json:"timestamp"`
	NSMDocument   string `json:"nsm_document"`
	PCRs          PCRs   `json:"pcrs"`
	Nonce         string `json:"nonce"`
}
