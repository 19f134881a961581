// Package httpmicro implements the enclave's HTTP/1.1 micro-client: request
// serialization, response parsing, and chunked transfer decoding, all done
// at the byte level so it can run directly on top of a vsock connection
// (with or without TLS) instead of net/http's own transport.
package httpmicro

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/errs"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
)

// Timeout is the wall-clock budget for one outbound fetch, including TLS
// negotiation.
const Timeout = 25 * time.Second

var statusLineRE = regexp.MustCompile(`^HTTP/\d\.\d\s+(\d+)`)

// Response is the parsed result of an upstream HTTP/1.1 response.
type Response struct {
	Status  int
	Headers model.Headers
	Body    []byte
}

// Dialer opens the byte-duplex a request is sent over. TLS and plain
// fetches use different concrete dialers (see internal/upstream) but both
// satisfy this signature.
type Dialer func(ctx context.Context) (net.Conn, error)

// Fetch builds the HTTP/1.1 request for req, sends it over the connection
// returned by dial, and parses the response. hostname is used both for the
// mandatory Host header and, when tlsConfig is non-nil, as the TLS
// ServerName.
func Fetch(
	ctx context.Context,
	dial Dialer,
	hostname, path, method string,
	headers model.Headers,
	body []byte,
	tlsConfig *tls.Config,
) (_ *Response, err error) {
	defer errs.Wrap(&err, "httpmicro: fetch failed")

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	conn, err := dial(ctx)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer conn.Close()

	if tlsConfig != nil {
		cfg := tlsConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = hostname
		}
		tlsConn := tls.Client(conn, cfg)
		if deadline, ok := ctx.Deadline(); ok {
			_ = tlsConn.SetDeadline(deadline)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, classifyErr(fmt.Errorf("TLS handshake: %w", err))
		}
		conn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	raw := BuildRequest(hostname, path, method, headers, body)
	if err := writeFull(conn, raw); err != nil {
		return nil, classifyErr(err)
	}

	resp, err := ParseResponse(conn)
	if err != nil {
		return nil, classifyErr(err)
	}
	return resp, nil
}

func classifyErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", errs.UpstreamTimeout, err)
	}
	return err
}

// BuildRequest serializes an HTTP/1.1 request line, headers, and body.
// headers is overlaid with a mandatory Host header (set to hostname) and
// Connection: close; both overlay entries win regardless of what the
// caller supplied. A Content-Length header reflecting the UTF-8 byte
// length of body is appended when body is non-empty.
func BuildRequest(
	hostname, path, method string,
	headers model.Headers,
	body []byte,
) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, path)

	out := make(model.Headers, len(headers))
	copy(out, headers)
	out = out.Set("Host", hostname)
	out = out.Set("Connection", "close")
	if len(body) > 0 {
		out = out.Set("Content-Length", strconv.Itoa(len(body)))
	}

	for _, h := range out {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, h.Value)
	}
	buf.WriteString("\r\n")
	buf.Write(body)

	return buf.Bytes()
}

// ParseResponse reads and parses one HTTP/1.1 response from r, de-chunking
// the body if the response is chunked, and decoding it as UTF-8 with
// replacement characters for invalid sequences.
func ParseResponse(r io.Reader) (*Response, error) {
	raw, headerEnd, err := readUntilHeadersEnd(r)
	if err != nil {
		return nil, err
	}

	headerBlock := raw[:headerEnd]
	lines := strings.Split(string(headerBlock), "\r\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty response", errs.ParseError)
	}

	m := statusLineRE.FindStringSubmatch(lines[0])
	if m == nil {
		return nil, fmt.Errorf("%w: malformed status line %q", errs.ParseError, lines[0])
	}
	status, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed status code %q", errs.ParseError, m[1])
	}

	var headers model.Headers
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers = append(headers, model.Header{Name: name, Value: value})
	}

	bodyStart := raw[headerEnd+4:]
	var bodyBytes []byte
	if isChunked(headers) {
		bodyBytes, err = dechunk(bodyStart, r)
		if err != nil {
			return nil, err
		}
	} else {
		bodyBytes, err = readRemainder(bodyStart, r)
		if err != nil {
			return nil, err
		}
	}

	return &Response{
		Status:  status,
		Headers: headers,
		Body:    toValidUTF8(bodyBytes),
	}, nil
}

func isChunked(headers model.Headers) bool {
	v, ok := headers.Get("transfer-encoding")
	return ok && strings.Contains(strings.ToLower(v), "chunked")
}

// readUntilHeadersEnd reads from r, growing a buffer, until it finds
// "\r\n\r\n" at the byte level -- deliberately not decoding to text first,
// since the body may contain multi-byte UTF-8 that straddles a read
// boundary.
func readUntilHeadersEnd(r io.Reader) (buf []byte, headerEnd int, err error) {
	const sep = "\r\n\r\n"
	chunk := make([]byte, 4096)

	for {
		if idx := bytes.Index(buf, []byte(sep)); idx >= 0 {
			return buf, idx, nil
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if idx := bytes.Index(buf, []byte(sep)); idx >= 0 {
				return buf, idx, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil, 0, fmt.Errorf("%w: connection closed before headers completed", errs.ParseError)
			}
			return nil, 0, err
		}
	}
}

func readRemainder(alreadyRead []byte, r io.Reader) ([]byte, error) {
	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return append(alreadyRead, rest...), nil
}

// dechunk decodes an HTTP chunked-transfer body at the byte level: hex
// chunk size, CRLF, that many bytes, CRLF, repeat until a zero-size chunk.
func dechunk(already []byte, r io.Reader) ([]byte, error) {
	src := &prependReader{prefix: already, r: r}
	var out bytes.Buffer

	for {
		sizeLine, err := readLine(src)
		if err != nil {
			return nil, fmt.Errorf("%w: chunked encoding: %w", errs.ParseError, err)
		}
		sizeLine = strings.TrimSpace(strings.SplitN(sizeLine, ";", 2)[0])
		size, err := strconv.ParseInt(sizeLine, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid chunk size %q", errs.ParseError, sizeLine)
		}
		if size == 0 {
			// Consume the trailer and the final CRLF.
			for {
				line, err := readLine(src)
				if err != nil || line == "" {
					break
				}
			}
			return out.Bytes(), nil
		}

		chunkData := make([]byte, size)
		if _, err := io.ReadFull(src, chunkData); err != nil {
			return nil, fmt.Errorf("%w: truncated chunk", errs.ParseError)
		}
		out.Write(chunkData)

		if _, err := readLine(src); err != nil { // trailing CRLF after chunk data
			return nil, fmt.Errorf("%w: missing chunk terminator", errs.ParseError)
		}
	}
}

func readLine(r io.Reader) (string, error) {
	var line []byte
	one := make([]byte, 1)
	for {
		n, err := r.Read(one)
		if n == 1 {
			if one[0] == '\n' {
				return strings.TrimSuffix(string(line), "\r"), nil
			}
			line = append(line, one[0])
		}
		if err != nil {
			return "", err
		}
	}
}

// prependReader replays prefix before falling through to r.
type prependReader struct {
	prefix []byte
	r      io.Reader
}

func (p *prependReader) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.r.Read(b)
}

func toValidUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	return []byte(strings.ToValidUTF8(string(b), string(utf8.RuneError)))
}

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
