// Package wire implements the length-prefixed JSON framing used between the
// host router and an enclave, and between an enclave and its own accept
// loop's caller.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
)

// MaxMessageLen is the maximum number of JSON body bytes a frame may carry.
const MaxMessageLen = 16 * 1024 * 1024 // 16 MiB

const lenPrefixSize = 4

var (
	// ErrMessageTooLarge is returned when a message's JSON body exceeds
	// MaxMessageLen, on either the read or the write side.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrEmptyMessage is returned when a frame declares a zero-length body.
	ErrEmptyMessage = errors.New("empty message")
	// ErrTruncated is returned when the stream ends before a declared
	// number of body bytes has been read.
	ErrTruncated = errors.New("truncated message")
)

// WriteMessage marshals v to JSON and writes it to w as one length-prefixed
// frame. It loops over short writes until the entire frame has been sent.
func WriteMessage(w io.Writer, v any) (err error) {
	defer errs.Wrap(&err, "failed to write framed message")

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return ErrEmptyMessage
	}
	if len(body) > MaxMessageLen {
		return ErrMessageTooLarge
	}

	header := make([]byte, lenPrefixSize)
	binary.BigEndian.PutUint32(header, uint32(len(body)))

	if err := writeFull(w, header); err != nil {
		return err
	}
	return writeFull(w, body)
}

// ReadMessage reads one length-prefixed frame from r and unmarshals its JSON
// body into v.
func ReadMessage(r io.Reader, v any) (err error) {
	defer errs.Wrap(&err, "failed to read framed message")

	header := make([]byte, lenPrefixSize)
	if err := readFull(r, header); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(header)

	if length == 0 {
		return ErrEmptyMessage
	}
	if length > MaxMessageLen {
		return ErrMessageTooLarge
	}

	body := make([]byte, length)
	if err := readFull(r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// writeFull loops over short writes until buf has been written in full.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// readFull loops until buf has been filled or the stream ends, in which case
// it returns ErrTruncated instead of io.EOF/io.ErrUnexpectedEOF.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
