package tinyhttp

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"
)

// Response represents an outgoing HTTP response.
//
// A Response is created for each incoming request, populated while the
// request is parsed and dispatched, then serialized exactly once via Bin
// or WriteTo. Modifying the status or the body after serialization panics.
//
// It is unsafe modifying/reading Response instance from concurrently
// running goroutines.
type Response struct {
	// Header holds response header lines in the order they are sent.
	Header Header

	protocol      string
	statusCode    StatusCode
	body          *bytebufferpool.ByteBuffer
	errorHandlers *ErrorHandlers
	logger        *zerolog.Logger
	serialized    bool
}

var responsePool sync.Pool

// AcquireResponse returns an empty Response instance from the pool.
//
// The returned Response may be returned to the pool with ReleaseResponse
// when no longer needed.
func AcquireResponse() *Response {
	v := responsePool.Get()
	if v == nil {
		return &Response{protocol: ProtocolHTTP11}
	}
	return v.(*Response)
}

// ReleaseResponse returns resp acquired via AcquireResponse to the pool.
//
// resp and its body mustn't be touched after returning it to the pool.
func ReleaseResponse(resp *Response) {
	resp.Reset()
	responsePool.Put(resp)
}

// NewResponse returns a response for the given protocol version.
//
// errorHandlers may be nil.
func NewResponse(protocol string, errorHandlers *ErrorHandlers) *Response {
	return &Response{
		protocol:      protocol,
		errorHandlers: errorHandlers,
	}
}

// Reset clears the response so it may be reused.
func (resp *Response) Reset() {
	resp.Header.Reset()
	resp.protocol = ProtocolHTTP11
	resp.statusCode = statusUnset
	if resp.body != nil {
		bytebufferpool.Put(resp.body)
		resp.body = nil
	}
	resp.errorHandlers = nil
	resp.logger = nil
	resp.serialized = false
}

// SetErrorHandlers sets the handlers used for synthesizing error bodies.
func (resp *Response) SetErrorHandlers(eh *ErrorHandlers) {
	resp.errorHandlers = eh
}

// SetLogger sets the logger for error handler failures. It may be nil.
func (resp *Response) SetLogger(logger *zerolog.Logger) {
	resp.logger = logger
}

// Protocol returns the response protocol version.
func (resp *Response) Protocol() string {
	if len(resp.protocol) == 0 {
		return ProtocolHTTP11
	}
	return resp.protocol
}

// SetProtocol sets the response protocol version.
func (resp *Response) SetProtocol(protocol string) {
	resp.protocol = protocol
}

// StatusCode returns the response status code.
//
// StatusBadRequest is returned if the status was never set.
func (resp *Response) StatusCode() StatusCode {
	if resp.statusCode == statusUnset {
		return StatusBadRequest
	}
	return resp.statusCode
}

// IsStatusSet returns true if SetStatus was called.
func (resp *Response) IsStatusSet() bool {
	return resp.statusCode != statusUnset
}

// SetStatus sets the response status code.
//
// If statusCode >= 300 and the body is still empty, an error body is
// synthesized: the output of the error handler registered for the code,
// or "<code> <reason>" as plain text if there is none.
func (resp *Response) SetStatus(statusCode StatusCode) {
	resp.mustNotBeSerialized()
	resp.statusCode = statusCode
	if statusCode < 300 || resp.BodyLen() > 0 {
		return
	}
	if resp.writeErrorHandlerBody(statusCode) {
		return
	}
	resp.Header.Replace(HeaderContentType, defaultTextContentType, charsetUTF8)
	resp.bodyBuffer().B = statusCode.appendTo(resp.bodyBuffer().B)
}

func (resp *Response) writeErrorHandlerBody(statusCode StatusCode) bool {
	eh, ok := resp.errorHandlers.lookup(statusCode)
	if !ok {
		return false
	}
	r, err := callErrorHandler(eh.handler)
	if err != nil {
		debugf(resp.logger, "error handler for %d failed: %s", int(statusCode), err)
		return false
	}
	switch x := r.(type) {
	case Text:
		resp.Header.Replace(HeaderContentType, contentTypeOr(eh.contentType, defaultTextContentType), charsetUTF8)
		resp.AppendBodyString(string(x))
	case Bytes:
		resp.Header.Replace(HeaderContentType, contentTypeOr(eh.contentType, defaultBytesContentType))
		resp.AppendBody(x)
	default:
		return false
	}
	return true
}

func callErrorHandler(h ErrorHandlerFunc) (r Result, err error) {
	defer func() {
		if x := recover(); x != nil {
			r = nil
			err = errors.Errorf("panic in error handler: %v", x)
		}
	}()
	return h()
}

func contentTypeOr(contentType, def string) string {
	if len(contentType) == 0 {
		return def
	}
	return contentType
}

// Body returns response body.
//
// The returned value is valid until the response is released or reset.
func (resp *Response) Body() []byte {
	if resp.body == nil {
		return nil
	}
	return resp.body.B
}

// BodyLen returns the body length in bytes.
func (resp *Response) BodyLen() int {
	if resp.body == nil {
		return 0
	}
	return resp.body.Len()
}

// AppendBody appends p to response body.
func (resp *Response) AppendBody(p []byte) {
	resp.mustNotBeSerialized()
	resp.bodyBuffer().Write(p)
}

// AppendBodyString appends s to response body.
func (resp *Response) AppendBodyString(s string) {
	resp.mustNotBeSerialized()
	resp.bodyBuffer().WriteString(s)
}

// SetBody sets response body.
func (resp *Response) SetBody(body []byte) {
	resp.mustNotBeSerialized()
	resp.bodyBuffer().Set(body)
}

// SetBodyString sets response body.
func (resp *Response) SetBodyString(body string) {
	resp.mustNotBeSerialized()
	resp.bodyBuffer().SetString(body)
}

// ResetBody clears response body.
func (resp *Response) ResetBody() {
	resp.mustNotBeSerialized()
	if resp.body != nil {
		resp.body.Reset()
	}
}

// BodyWriter returns writer for appending to the response body.
func (resp *Response) BodyWriter() io.Writer {
	resp.mustNotBeSerialized()
	return resp.bodyBuffer()
}

func (resp *Response) bodyBuffer() *bytebufferpool.ByteBuffer {
	if resp.body == nil {
		resp.body = bytebufferpool.Get()
	}
	return resp.body
}

func (resp *Response) mustNotBeSerialized() {
	if resp.serialized {
		panic("BUG: response modified after serialization")
	}
}

// Bin returns the wire representation of the response: status line,
// header lines and body.
//
// If the status was never set, it is set to StatusBadRequest first.
// Content-Length is set to the exact body length when the body is
// non-empty.
func (resp *Response) Bin() []byte {
	return resp.AppendBytes(nil)
}

// AppendBytes appends the wire representation of the response to dst and
// returns the extended dst. See Bin.
func (resp *Response) AppendBytes(dst []byte) []byte {
	return resp.appendBytes(dst, false)
}

// WriteTo writes the wire representation of the response to w.
//
// WriteTo implements io.WriterTo interface.
func (resp *Response) WriteTo(w io.Writer) (int64, error) {
	b := bytebufferpool.Get()
	b.B = resp.AppendBytes(b.B)
	n, err := w.Write(b.B)
	bytebufferpool.Put(b)
	return int64(n), err
}

func (resp *Response) appendBytes(dst []byte, skipBody bool) []byte {
	resp.finalize()

	dst = formatStatusLine(dst, resp.Protocol(), resp.statusCode)
	dst = resp.Header.AppendBytes(dst)
	dst = append(dst, strCRLF...)
	if !skipBody {
		dst = append(dst, resp.Body()...)
	}
	return dst
}

func (resp *Response) finalize() {
	if resp.serialized {
		return
	}
	if resp.statusCode == statusUnset {
		resp.SetStatus(StatusBadRequest)
	}
	if n := resp.BodyLen(); n > 0 {
		resp.Header.Replace(HeaderContentLength, string(AppendUint(nil, n)))
	}
	resp.serialized = true
}

// String returns the wire representation of the response.
func (resp *Response) String() string {
	return string(resp.Bin())
}
