package tinyhttp

import (
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestParseRequestLine(t *testing.T) {
	t.Parallel()

	ctx := newTestCtx()
	if err := ctx.parseRequestLine("GET /hello%20world?name=Bob&x=%C3%A9#frag HTTP/1.1"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if ctx.Method != MethodGet {
		t.Fatalf("Unexpected method %s", ctx.Method)
	}
	if ctx.Path != "/hello world" {
		t.Fatalf("Unexpected path %q", ctx.Path)
	}
	if ctx.RequestURI != "/hello%20world?name=Bob&x=%C3%A9#frag" {
		t.Fatalf("Unexpected request uri %q", ctx.RequestURI)
	}
	if v := ctx.QueryArgs.Get("name"); v != "Bob" {
		t.Fatalf("Unexpected name %q", v)
	}
	if v := ctx.QueryArgs.Get("x"); v != "é" {
		t.Fatalf("Unexpected x %q", v)
	}
	if !ctx.KeepAlive() {
		t.Fatalf("HTTP/1.1 must default to keep-alive")
	}

	ctx = newTestCtx()
	if err := ctx.parseRequestLine("POST /form HTTP/1.0"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if ctx.KeepAlive() {
		t.Fatalf("HTTP/1.0 mustn't default to keep-alive")
	}
}

func TestParseRequestLineError(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"GET",
		"GET /",
		"GET / HTTP/1.1 extra",
		"get / HTTP/1.1",
		"FOO / HTTP/1.1",
		"GET / HTTP/2.0",
		"GET / http/1.1",
	} {
		ctx := newTestCtx()
		err := ctx.parseRequestLine(line)
		if !errors.Is(err, ErrMalformedRequestLine) {
			t.Fatalf("Unexpected error %v for %q. Expecting %v", err, line, ErrMalformedRequestLine)
		}
	}
}

func TestSplitRequestURI(t *testing.T) {
	t.Parallel()

	testSplitRequestURI(t, "/", "/", "")
	testSplitRequestURI(t, "/a?b=c", "/a", "b=c")
	testSplitRequestURI(t, "/a?b=c?d", "/a", "b=c?d")
	testSplitRequestURI(t, "/a?next=/b/c", "/a", "next=/b/c")
	testSplitRequestURI(t, "/a#x?y", "/a", "")
	testSplitRequestURI(t, "/a?b#c", "/a", "b")
	testSplitRequestURI(t, "?q", "", "q")
}

func testSplitRequestURI(t *testing.T, uri, expectedPath, expectedQuery string) {
	t.Helper()

	path, query := splitRequestURI(uri)
	if path != expectedPath || query != expectedQuery {
		t.Fatalf("Unexpected split %q, %q of %q. Expecting %q, %q", path, query, uri, expectedPath, expectedQuery)
	}
}

func TestParseByteRange(t *testing.T) {
	t.Parallel()

	testParseByteRange(t, "bytes=0-99", 0, 99, true)
	testParseByteRange(t, "bytes=100-", 100, -1, true)
	testParseByteRange(t, "bytes=-500", -1, 500, true)
	testParseByteRange(t, "bytes= 5 - 10 ", 5, 10, true)
	testParseByteRange(t, "bytes=7-7", 7, 7, true)

	testParseByteRange(t, "", 0, 0, false)
	testParseByteRange(t, "bytes=", 0, 0, false)
	testParseByteRange(t, "bytes=-", 0, 0, false)
	testParseByteRange(t, "bytes=-0", 0, 0, false)
	testParseByteRange(t, "bytes=10-5", 0, 0, false)
	testParseByteRange(t, "bytes=a-b", 0, 0, false)
	testParseByteRange(t, "bytes=0-1,5-6", 0, 0, false)
	testParseByteRange(t, "items=0-1", 0, 0, false)
	testParseByteRange(t, "bytes=5", 0, 0, false)
}

func testParseByteRange(t *testing.T, s string, expectedStart, expectedEnd int64, expectedOK bool) {
	t.Helper()

	start, end, ok := parseByteRange(s)
	if ok != expectedOK {
		t.Fatalf("Unexpected ok=%v for %q. Expecting %v", ok, s, expectedOK)
	}
	if ok && (start != expectedStart || end != expectedEnd) {
		t.Fatalf("Unexpected range %d-%d for %q. Expecting %d-%d", start, end, s, expectedStart, expectedEnd)
	}
}

func TestStripPort(t *testing.T) {
	t.Parallel()

	for _, tc := range [][2]string{
		{"example.com", "example.com"},
		{"example.com:8080", "example.com"},
		{"127.0.0.1:80", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"[::1]", "::1"},
		{"", ""},
	} {
		if h := stripPort(tc[0]); h != tc[1] {
			t.Fatalf("Unexpected host %q for %q. Expecting %q", h, tc[0], tc[1])
		}
	}
}

func TestAnalyzeHeaders(t *testing.T) {
	t.Parallel()

	ctx := newTestCtx()
	if err := ctx.parseRequestLine("POST /form HTTP/1.0"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	ctx.Header.ParseString(strings.Join([]string{
		"Host: example.com:8080",
		"Content-Length: 11",
		"Connection: keep-alive",
		"Cookie: session=abc; theme=dark",
		"Content-Type: application/x-www-form-urlencoded",
		"Range: bytes=0-99",
	}, "\r\n"), nil)

	n, err := ctx.analyzeHeaders()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if n != 11 {
		t.Fatalf("Unexpected content length %d. Expecting 11", n)
	}
	if ctx.Host != "example.com" {
		t.Fatalf("Unexpected host %q", ctx.Host)
	}
	if !ctx.KeepAlive() {
		t.Fatalf("expecting keep-alive")
	}
	if v := ctx.Response.Header.Value(HeaderConnection); v != "keep-alive" {
		t.Fatalf("Unexpected Connection header %q", v)
	}
	if v := ctx.Cookies.Get("theme"); v != "dark" {
		t.Fatalf("Unexpected cookie %q", v)
	}
	if !ctx.Flags.Has(FlagURLEncoded | FlagPartial) {
		t.Fatalf("Unexpected flags %b", ctx.Flags)
	}
	if start, end, ok := ctx.Range(); !ok || start != 0 || end != 99 {
		t.Fatalf("Unexpected range %d-%d %v", start, end, ok)
	}
}

func TestAnalyzeHeadersClose(t *testing.T) {
	t.Parallel()

	ctx := newTestCtx()
	if err := ctx.parseRequestLine("GET / HTTP/1.1"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	ctx.Header.ParseString("Connection: Close", nil)
	if _, err := ctx.analyzeHeaders(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if ctx.KeepAlive() {
		t.Fatalf("Connection: close must disable keep-alive")
	}
}

func TestAnalyzeHeadersError(t *testing.T) {
	t.Parallel()

	testAnalyzeHeadersError(t, "Content-Length: abc", ErrBadRequest, StatusBadRequest)
	testAnalyzeHeadersError(t, "Content-Length: -1", ErrBadRequest, StatusBadRequest)
	testAnalyzeHeadersError(t, "Transfer-Encoding: chunked", ErrNotImplemented, StatusNotImplemented)
}

func testAnalyzeHeadersError(t *testing.T, header string, expectedErr error, expectedStatus StatusCode) {
	t.Helper()

	ctx := newTestCtx()
	ctx.Header.ParseString(header, nil)
	_, err := ctx.analyzeHeaders()
	if !errors.Is(err, expectedErr) {
		t.Fatalf("Unexpected error %v for %q. Expecting %v", err, header, expectedErr)
	}
	if ctx.Response.StatusCode() != expectedStatus {
		t.Fatalf("Unexpected status %d for %q. Expecting %d", ctx.Response.StatusCode(), header, expectedStatus)
	}
}

// chunkedReader returns at most n bytes per Read call.
type chunkedReader struct {
	r io.Reader
	n int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > r.n {
		p = p[:r.n]
	}
	return r.r.Read(p)
}

func TestMessageReader(t *testing.T) {
	t.Parallel()

	raw := "GET /a HTTP/1.1\r\nHost: x\r\n\r\n" +
		"POST /b HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello" +
		"GET /c HTTP/1.1\r\n\r\n"
	for _, n := range []int{1, 3, 7, 4096} {
		var mr messageReader
		mr.reset(&chunkedReader{r: strings.NewReader(raw), n: n}, 0)

		head, err := mr.readHead(DefaultMaxHeaderSize)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if head != "GET /a HTTP/1.1\r\nHost: x" {
			t.Fatalf("Unexpected head %q", head)
		}

		head, err = mr.readHead(DefaultMaxHeaderSize)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if head != "POST /b HTTP/1.1\r\nContent-Length: 5" {
			t.Fatalf("Unexpected head %q", head)
		}
		body, err := mr.readBody(nil, 5)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if string(body) != "hello" {
			t.Fatalf("Unexpected body %q", body)
		}

		head, err = mr.readHead(DefaultMaxHeaderSize)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if head != "GET /c HTTP/1.1" {
			t.Fatalf("Unexpected head %q", head)
		}

		if _, err = mr.readHead(DefaultMaxHeaderSize); err != errNothingRead {
			t.Fatalf("Unexpected error %v. Expecting %v", err, errNothingRead)
		}
	}
}

func TestMessageReaderErrors(t *testing.T) {
	t.Parallel()

	var mr messageReader
	mr.reset(strings.NewReader("GET / HTTP/1.1\r\nHost: x\r\n"), 0)
	if _, err := mr.readHead(DefaultMaxHeaderSize); !errors.Is(err, ErrIncompleteHead) {
		t.Fatalf("Unexpected error %v. Expecting %v", err, ErrIncompleteHead)
	}

	mr.reset(strings.NewReader("GET / HTTP/1.1\r\nX: "+strings.Repeat("a", 100)+"\r\n\r\n"), 0)
	if _, err := mr.readHead(64); !errors.Is(err, ErrHeadTooLarge) {
		t.Fatalf("Unexpected error %v. Expecting %v", err, ErrHeadTooLarge)
	}

	mr.reset(strings.NewReader("GET / HTTP/1.1\r\n\r\nabc"), 0)
	if _, err := mr.readHead(DefaultMaxHeaderSize); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := mr.readBody(nil, 10); !errors.Is(err, ErrIncompleteBody) {
		t.Fatalf("Unexpected error %v. Expecting %v", err, ErrIncompleteBody)
	}
}

func TestRequestFrameLength(t *testing.T) {
	t.Parallel()

	get := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	post := "POST / HTTP/1.1\r\ncontent-length: 5\r\n\r\nhello"

	testRequestFrameLength(t, "", 0, false)
	testRequestFrameLength(t, "GET / HTTP/1.1\r\n", 0, false)
	testRequestFrameLength(t, get, len(get), true)
	testRequestFrameLength(t, get+"GET /next", len(get), true)
	testRequestFrameLength(t, post, len(post), true)
	testRequestFrameLength(t, post[:len(post)-1], 0, false)
	testRequestFrameLength(t, post+get, len(post), true)

	// Malformed and oversized bodies are left to the parser.
	bad := "POST / HTTP/1.1\r\nContent-Length: x\r\n\r\n"
	testRequestFrameLength(t, bad+"abc", len(bad), true)
	huge := "POST / HTTP/1.1\r\nContent-Length: 999999999\r\n\r\n"
	testRequestFrameLength(t, huge, len(huge), true)

	// A head without terminator beyond the limit is a complete frame.
	long := "GET / HTTP/1.1\r\nX: " + strings.Repeat("a", DefaultMaxHeaderSize)
	testRequestFrameLength(t, long, len(long), true)
}

func testRequestFrameLength(t *testing.T, s string, expectedN int, expectedOK bool) {
	t.Helper()

	n, ok := requestFrameLength([]byte(s), DefaultMaxHeaderSize, DefaultMaxRequestBodySize)
	if ok != expectedOK || (ok && n != expectedN) {
		t.Fatalf("Unexpected frame length %d, %v for %q. Expecting %d, %v", n, ok, s, expectedN, expectedOK)
	}
}

func TestFrameContentLength(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		head string
		n    int
	}{
		{"GET / HTTP/1.1", 0},
		{"POST / HTTP/1.1\r\nContent-Length: 12", 12},
		{"POST / HTTP/1.1\r\nCONTENT_LENGTH:3\r\nHost: x", 3},
		{"POST / HTTP/1.1\r\nContent-Length: 1x", -1},
	} {
		if n := frameContentLength([]byte(tc.head)); n != tc.n {
			t.Fatalf("Unexpected content length %d for %q. Expecting %d", n, tc.head, tc.n)
		}
	}
}
