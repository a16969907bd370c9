package tinyhttp

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// parseResponse splits the wire form of a response into the status line,
// the header lines and the body.
func parseResponse(t *testing.T, b []byte) (statusLine string, header map[string]string, body []byte) {
	t.Helper()

	n := bytes.Index(b, strCRLFCRLF)
	if n < 0 {
		t.Fatalf("cannot find the end of the response head in %q", b)
	}
	lines := strings.Split(string(b[:n]), "\r\n")
	statusLine = lines[0]
	header = make(map[string]string)
	for _, l := range lines[1:] {
		k, v, ok := strings.Cut(l, ": ")
		if !ok {
			t.Fatalf("malformed header line %q", l)
		}
		header[k] = v
	}
	return statusLine, header, b[n+len(strCRLFCRLF):]
}

func TestResponseContentLength(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"a", "Hi Bob", strings.Repeat("x", 4097), "é€😀"} {
		resp := NewResponse(ProtocolHTTP11, nil)
		resp.AppendBodyString(body[:len(body)/2])
		resp.AppendBody([]byte(body[len(body)/2:]))
		resp.SetStatus(StatusOK)

		statusLine, h, b := parseResponse(t, resp.Bin())
		if statusLine != "HTTP/1.1 200 OK" {
			t.Fatalf("Unexpected status line %q", statusLine)
		}
		if h["Content-Length"] != strconv.Itoa(len(body)) {
			t.Fatalf("Unexpected Content-Length %q. Expecting %d", h["Content-Length"], len(body))
		}
		if string(b) != body {
			t.Fatalf("Unexpected body %q. Expecting %q", b, body)
		}
	}
}

func TestResponseEmptyBody(t *testing.T) {
	t.Parallel()

	resp := NewResponse(ProtocolHTTP10, nil)
	resp.SetStatus(StatusNoContent)
	s := resp.String()
	if s != "HTTP/1.0 204 No Content\r\n\r\n" {
		t.Fatalf("Unexpected response %q", s)
	}
}

func TestResponseUnsetStatus(t *testing.T) {
	t.Parallel()

	resp := NewResponse(ProtocolHTTP11, nil)
	if resp.IsStatusSet() {
		t.Fatalf("status mustn't be set")
	}
	if resp.StatusCode() != StatusBadRequest {
		t.Fatalf("Unexpected status %d. Expecting %d", resp.StatusCode(), StatusBadRequest)
	}

	statusLine, h, body := parseResponse(t, resp.Bin())
	if statusLine != "HTTP/1.1 400 Bad Request" {
		t.Fatalf("Unexpected status line %q", statusLine)
	}
	if string(body) != "400 Bad Request" {
		t.Fatalf("Unexpected body %q. Expecting %q", body, "400 Bad Request")
	}
	if h["Content-Type"] != "text/plain; charset=utf-8" {
		t.Fatalf("Unexpected Content-Type %q", h["Content-Type"])
	}
	if h["Content-Length"] != "15" {
		t.Fatalf("Unexpected Content-Length %q", h["Content-Length"])
	}
}

func TestResponseErrorBody(t *testing.T) {
	t.Parallel()

	// No body is synthesized below 300.
	resp := NewResponse(ProtocolHTTP11, nil)
	resp.SetStatus(StatusOK)
	if resp.BodyLen() != 0 {
		t.Fatalf("Unexpected body %q", resp.Body())
	}

	// Existing content is kept.
	resp = NewResponse(ProtocolHTTP11, nil)
	resp.SetBodyString("custom")
	resp.SetStatus(StatusNotFound)
	if string(resp.Body()) != "custom" {
		t.Fatalf("Unexpected body %q. Expecting %q", resp.Body(), "custom")
	}

	resp = NewResponse(ProtocolHTTP11, nil)
	resp.SetStatus(StatusNotFound)
	if string(resp.Body()) != "404 Not Found" {
		t.Fatalf("Unexpected body %q. Expecting %q", resp.Body(), "404 Not Found")
	}
}

func TestResponseErrorHandlers(t *testing.T) {
	t.Parallel()

	var eh ErrorHandlers
	eh.Set(StatusNotFound, func() (Result, error) {
		return Text("<h1>missing</h1>"), nil
	}, "text/html")
	eh.Set(StatusForbidden, func() (Result, error) {
		return Bytes{1, 2, 3}, nil
	}, "")
	eh.Set(StatusConflict, func() (Result, error) {
		return nil, NewStatusError(StatusInternalServerError, "")
	}, "")
	if eh.Len() != 3 {
		t.Fatalf("Unexpected number of handlers %d", eh.Len())
	}

	resp := NewResponse(ProtocolHTTP11, &eh)
	resp.SetStatus(StatusNotFound)
	if string(resp.Body()) != "<h1>missing</h1>" {
		t.Fatalf("Unexpected body %q", resp.Body())
	}
	if v := resp.Header.Value(HeaderContentType); v != "text/html; charset=utf-8" {
		t.Fatalf("Unexpected Content-Type %q", v)
	}

	resp = NewResponse(ProtocolHTTP11, &eh)
	resp.SetStatus(StatusForbidden)
	if !bytes.Equal(resp.Body(), []byte{1, 2, 3}) {
		t.Fatalf("Unexpected body %q", resp.Body())
	}
	if v := resp.Header.Value(HeaderContentType); v != "application/octet-stream" {
		t.Fatalf("Unexpected Content-Type %q", v)
	}

	// A failing handler falls back to the default body.
	resp = NewResponse(ProtocolHTTP11, &eh)
	resp.SetStatus(StatusConflict)
	if string(resp.Body()) != "409 Conflict" {
		t.Fatalf("Unexpected body %q", resp.Body())
	}

	// Codes without handlers use the default body.
	resp = NewResponse(ProtocolHTTP11, &eh)
	resp.SetStatus(StatusMethodNotAllowed)
	if string(resp.Body()) != "405 Method Not Allowed" {
		t.Fatalf("Unexpected body %q", resp.Body())
	}
}

func TestResponseErrorHandlerPanic(t *testing.T) {
	t.Parallel()

	var eh ErrorHandlers
	eh.Set(StatusNotFound, func() (Result, error) {
		panic("boom")
	}, "text/html")
	eh.Set(StatusBadRequest, func() (Result, error) {
		panic("boom")
	}, "")

	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)

	resp := NewResponse(ProtocolHTTP11, &eh)
	resp.SetLogger(&logger)
	resp.SetStatus(StatusNotFound)
	if string(resp.Body()) != "404 Not Found" {
		t.Fatalf("Unexpected body %q. Expecting %q", resp.Body(), "404 Not Found")
	}
	if v := resp.Header.Value(HeaderContentType); v != "text/plain; charset=utf-8" {
		t.Fatalf("Unexpected Content-Type %q", v)
	}
	if !strings.Contains(logs.String(), "panic in error handler: boom") {
		t.Fatalf("Unexpected log output %q", logs.String())
	}

	// Bin sets the unset status, running the handler for 400.
	resp = NewResponse(ProtocolHTTP11, &eh)
	statusLine, _, body := parseResponse(t, resp.Bin())
	if statusLine != "HTTP/1.1 400 Bad Request" {
		t.Fatalf("Unexpected status line %q", statusLine)
	}
	if string(body) != "400 Bad Request" {
		t.Fatalf("Unexpected body %q", body)
	}
}

func TestResponseHeaderOrder(t *testing.T) {
	t.Parallel()

	resp := NewResponse(ProtocolHTTP11, nil)
	resp.Header.Add(HeaderCacheControl, "no-store")
	resp.Header.Add(HeaderServer, "test")
	resp.SetBodyString("ok")
	resp.SetStatus(StatusOK)

	expected := "HTTP/1.1 200 OK\r\nCache-Control: no-store\r\nServer: test\r\nContent-Length: 2\r\n\r\nok"
	if s := resp.String(); s != expected {
		t.Fatalf("Unexpected response %q. Expecting %q", s, expected)
	}

	// Serializing again gives the same bytes.
	if s := resp.String(); s != expected {
		t.Fatalf("Unexpected response %q. Expecting %q", s, expected)
	}
}

func TestResponseModifiedAfterSerialization(t *testing.T) {
	t.Parallel()

	resp := NewResponse(ProtocolHTTP11, nil)
	resp.SetStatus(StatusOK)
	resp.Bin()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expecting panic")
		}
	}()
	resp.AppendBodyString("late")
}

func TestResponseWriteTo(t *testing.T) {
	t.Parallel()

	resp := AcquireResponse()
	defer ReleaseResponse(resp)

	resp.SetProtocol(ProtocolHTTP10)
	if _, err := resp.BodyWriter().Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	resp.SetStatus(StatusOK)

	var w bytes.Buffer
	n, err := resp.WriteTo(&w)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if int(n) != w.Len() {
		t.Fatalf("Unexpected number of bytes written %d. Expecting %d", n, w.Len())
	}
	expected := "HTTP/1.0 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	if w.String() != expected {
		t.Fatalf("Unexpected response %q. Expecting %q", w.String(), expected)
	}
}
