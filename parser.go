package tinyhttp

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

var (
	// ErrMalformedRequestLine is returned when the request line doesn't
	// consist of a known method, a target and a supported protocol.
	ErrMalformedRequestLine = errors.New("malformed request line")

	// ErrIncompleteHead is returned when the connection ends or times out
	// before the blank line terminating the request head.
	ErrIncompleteHead = errors.New("incomplete request head")

	// ErrHeadTooLarge is returned when no blank line is found within
	// Server.MaxHeaderSize bytes.
	ErrHeadTooLarge = errors.New("request head too large")

	// ErrBodyTooLarge is returned when Content-Length exceeds
	// Server.MaxRequestBodySize.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrIncompleteBody is returned when the connection ends or times out
	// before Content-Length body bytes are read.
	ErrIncompleteBody = errors.New("incomplete request body")

	// ErrBadRequest is returned for requests with invalid framing headers.
	ErrBadRequest = errors.New("bad request")

	// ErrNotImplemented is returned for requests the server can't frame,
	// e.g. chunked bodies.
	ErrNotImplemented = errors.New("not implemented")

	// errNothingRead is returned when the peer closes an idle connection.
	errNothingRead = errors.New("nothing read")
)

const (
	// DefaultMaxHeaderSize is the default limit for the request head,
	// request line and blank line included.
	DefaultMaxHeaderSize = 8000

	// DefaultMaxRequestBodySize is the default limit for request bodies.
	DefaultMaxRequestBodySize = 4 * 1024 * 1024

	readChunkSize = 4096
)

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// messageReader reads request heads and bodies from a connection.
//
// Bytes read past the end of a request are kept for the next one.
type messageReader struct {
	r           io.Reader
	rd          readDeadliner
	readTimeout time.Duration
	buf         []byte
}

func (mr *messageReader) reset(r io.Reader, readTimeout time.Duration) {
	mr.r = r
	mr.rd = nil
	if readTimeout > 0 {
		mr.rd, _ = r.(readDeadliner)
	}
	mr.readTimeout = readTimeout
	mr.buf = mr.buf[:0]
}

// buffered returns the number of bytes read ahead.
func (mr *messageReader) buffered() int {
	return len(mr.buf)
}

func (mr *messageReader) setDeadline() error {
	if mr.rd == nil {
		return nil
	}
	return mr.rd.SetReadDeadline(time.Now().Add(mr.readTimeout))
}

// readHead returns the request head without the terminating blank line.
func (mr *messageReader) readHead(maxSize int) (string, error) {
	if err := mr.setDeadline(); err != nil {
		return "", err
	}
	scanned := 0
	for {
		if n := bytes.Index(mr.buf[scanned:], strCRLFCRLF); n >= 0 {
			n += scanned
			if n+len(strCRLFCRLF) > maxSize {
				return "", ErrHeadTooLarge
			}
			head := string(mr.buf[:n])
			mr.consume(n + len(strCRLFCRLF))
			return head, nil
		}
		if len(mr.buf) >= maxSize {
			return "", ErrHeadTooLarge
		}
		if len(mr.buf) > 3 {
			scanned = len(mr.buf) - 3
		}
		if err := mr.fill(maxSize - len(mr.buf)); err != nil {
			if len(mr.buf) == 0 && err == io.EOF {
				return "", errNothingRead
			}
			return "", errors.Wrapf(ErrIncompleteHead, "after %d bytes: %s", len(mr.buf), err)
		}
	}
}

// readBody appends n body bytes to dst.
func (mr *messageReader) readBody(dst []byte, n int) ([]byte, error) {
	k := n
	if k > len(mr.buf) {
		k = len(mr.buf)
	}
	dst = append(dst, mr.buf[:k]...)
	mr.consume(k)
	n -= k
	if n == 0 {
		return dst, nil
	}

	if err := mr.setDeadline(); err != nil {
		return dst, err
	}
	pos := len(dst)
	dst = append(dst, make([]byte, n)...)
	m, err := io.ReadFull(mr.r, dst[pos:])
	if err != nil {
		return dst[:pos+m], errors.Wrapf(ErrIncompleteBody, "read %d of %d bytes: %s", m, n, err)
	}
	return dst, nil
}

func (mr *messageReader) fill(max int) error {
	if max > readChunkSize {
		max = readChunkSize
	}
	pos := len(mr.buf)
	if cap(mr.buf)-pos < max {
		b := make([]byte, pos, pos+max+readChunkSize)
		copy(b, mr.buf)
		mr.buf = b
	}
	n, err := mr.r.Read(mr.buf[pos : pos+max])
	mr.buf = mr.buf[:pos+n]
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

func (mr *messageReader) consume(n int) {
	mr.buf = mr.buf[:copy(mr.buf, mr.buf[n:])]
}

// readRequest reads and parses the next request into ctx.
//
// A response status is set on ctx.Response when the request is rejected
// in a way the client should hear about. No status is set when the
// connection ended early.
func (s *Server) readRequest(ctx *RequestCtx, mr *messageReader) error {
	head, err := mr.readHead(s.maxHeaderSize())
	if err != nil {
		if errors.Is(err, ErrHeadTooLarge) {
			s.writeDefaultHeaders(ctx.Response)
			ctx.Response.SetStatus(StatusBadRequest)
		}
		return err
	}
	ctx.Time = time.Now()
	s.writeDefaultHeaders(ctx.Response)

	line, rawHeader, _ := strings.Cut(head, "\n")
	if err := ctx.parseRequestLine(strings.TrimSuffix(line, "\r")); err != nil {
		ctx.Response.SetStatus(StatusBadRequest)
		return err
	}
	ctx.Response.SetProtocol(ctx.Protocol)
	ctx.logger = ctx.logger.With().
		Str("method", ctx.Method.String()).
		Str("path", ctx.Path).
		Logger()

	ctx.Header.ParseString(rawHeader, &ctx.logger)

	contentLength, err := ctx.analyzeHeaders()
	if err != nil {
		return err
	}
	if contentLength > s.maxRequestBodySize() {
		ctx.Response.SetStatus(StatusRequestEntityTooLarge)
		return errors.Wrapf(ErrBodyTooLarge, "Content-Length %d exceeds %d", contentLength, s.maxRequestBodySize())
	}
	if contentLength > 0 {
		if ctx.PostBody, err = mr.readBody(ctx.PostBody[:0], contentLength); err != nil {
			return err
		}
		if ctx.Flags.Has(FlagURLEncoded) {
			ctx.PostArgs.ParseForm(ctx.PostBody)
		}
	}
	return nil
}

// parseRequestLine parses "<method> <target> <protocol>".
func (ctx *RequestCtx) parseRequestLine(line string) error {
	f := strings.Fields(line)
	if len(f) != 3 {
		return errors.Wrapf(ErrMalformedRequestLine, "%d tokens in %q", len(f), line)
	}
	m := ParseMethod(f[0])
	if m == MethodUnknown {
		return errors.Wrapf(ErrMalformedRequestLine, "unknown method %q", f[0])
	}
	if !isSupportedProtocol(f[2]) {
		return errors.Wrapf(ErrMalformedRequestLine, "unsupported protocol %q", f[2])
	}
	ctx.Method = m
	ctx.RequestURI = f[1]
	ctx.Protocol = f[2]
	ctx.keepAlive = ctx.Protocol == ProtocolHTTP11

	path, query := splitRequestURI(ctx.RequestURI)
	ctx.Path = Unescape(path)
	ctx.QueryArgs.Parse(query)
	return nil
}

// splitRequestURI splits the request target at its first '?' after
// dropping the fragment.
func splitRequestURI(uri string) (path, query string) {
	if n := strings.IndexByte(uri, '#'); n >= 0 {
		uri = uri[:n]
	}
	path, query, _ = strings.Cut(uri, "?")
	return path, query
}

// analyzeHeaders applies the request headers to ctx and returns the body
// length.
func (ctx *RequestCtx) analyzeHeaders() (int, error) {
	contentLength := 0
	resp := ctx.Response
	for i := range ctx.Header.lines {
		l := &ctx.Header.lines[i]
		switch l.key {
		case HeaderHost:
			ctx.Host = stripPort(l.Value())
		case HeaderContentLength:
			n, err := ParseUint([]byte(l.Value()))
			if err != nil {
				resp.SetStatus(StatusBadRequest)
				return 0, errors.Wrapf(ErrBadRequest, "invalid Content-Length %q", l.Value())
			}
			contentLength = n
		case HeaderConnection:
			if httpguts.HeaderValuesContainsToken(l.values, strClose) {
				ctx.keepAlive = false
			} else if httpguts.HeaderValuesContainsToken(l.values, strKeepAlive) {
				ctx.keepAlive = true
				resp.Header.Set(HeaderConnection, strKeepAlive)
			}
		case HeaderCookie:
			parseRequestCookies(&ctx.Cookies, l.values)
		case HeaderContentType:
			if len(l.values) > 0 && caseInsensitiveEqual(l.values[0], strURLEncoded) {
				ctx.Flags |= FlagURLEncoded
			}
		case HeaderRange:
			if start, end, ok := parseByteRange(l.Value()); ok {
				ctx.rangeStart, ctx.rangeEnd = start, end
				ctx.Flags |= FlagPartial
			} else {
				debugf(&ctx.logger, "ignoring unsupported range %q", l.Value())
			}
		case HeaderTransferEncoding:
			if !caseInsensitiveEqual(l.Value(), "identity") {
				resp.SetStatus(StatusNotImplemented)
				return 0, errors.Wrapf(ErrNotImplemented, "Transfer-Encoding %q", l.Value())
			}
		}
	}
	return contentLength, nil
}

func stripPort(host string) string {
	if len(host) > 0 && host[0] == '[' {
		if n := strings.IndexByte(host, ']'); n > 0 {
			return host[1:n]
		}
		return host
	}
	if n := strings.LastIndexByte(host, ':'); n >= 0 {
		return host[:n]
	}
	return host
}

// parseByteRange parses a single range "bytes=start-end".
//
// end is -1 if omitted. Suffix ranges "bytes=-N" are returned with
// start == -1 and end == N.
func parseByteRange(s string) (start, end int64, ok bool) {
	if !strings.HasPrefix(s, "bytes=") {
		return 0, 0, false
	}
	s = strings.TrimSpace(s[len("bytes="):])
	if strings.IndexByte(s, ',') >= 0 {
		return 0, 0, false
	}
	first, last, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, false
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if len(first) == 0 {
		n, err := ParseUint([]byte(last))
		if err != nil || n == 0 {
			return 0, 0, false
		}
		return -1, int64(n), true
	}
	n, err := ParseUint([]byte(first))
	if err != nil {
		return 0, 0, false
	}
	start, end = int64(n), -1
	if len(last) > 0 {
		n, err = ParseUint([]byte(last))
		if err != nil || int64(n) < start {
			return 0, 0, false
		}
		end = int64(n)
	}
	return start, end, true
}

// requestFrameLength returns the length of the first complete request in
// b: the head plus Content-Length body bytes.
//
// false is returned if more bytes are needed. Oversized heads and bodies
// are reported as complete frames so the parser rejects them.
func requestFrameLength(b []byte, maxHeaderSize, maxBodySize int) (int, bool) {
	n := bytes.Index(b, strCRLFCRLF)
	if n < 0 || n+len(strCRLFCRLF) > maxHeaderSize {
		if len(b) >= maxHeaderSize {
			return len(b), true
		}
		return 0, false
	}
	headLen := n + len(strCRLFCRLF)
	cl := frameContentLength(b[:n])
	if cl <= 0 || cl > maxBodySize {
		return headLen, true
	}
	if len(b) < headLen+cl {
		return 0, false
	}
	return headLen + cl, true
}

// frameContentLength returns the Content-Length found in head, 0 if there
// is none or -1 if it is malformed.
func frameContentLength(head []byte) int {
	for len(head) > 0 {
		var line []byte
		if n := bytes.IndexByte(head, '\n'); n >= 0 {
			line, head = head[:n], head[n+1:]
		} else {
			line, head = head, nil
		}
		k, v, ok := bytes.Cut(line, strColon)
		if !ok || CanonicalHeaderKey(b2s(k)) != HeaderContentLength {
			continue
		}
		n, err := ParseUint(bytes.TrimSpace(v))
		if err != nil {
			return -1
		}
		return n
	}
	return 0
}
