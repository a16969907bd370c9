package tinyhttp

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// DefaultChunkSize is the number of bytes served for a Range request
// without an explicit end, e.g. "Range: bytes=100-".
const DefaultChunkSize = 1 << 20

// Result is the value returned by a RequestHandler.
//
// Result is one of Bytes, Text, *PartialContent or *Redirect.
// A nil Result produces an empty 204 No Content response.
type Result interface {
	writeResult(ctx *RequestCtx, contentType string) error
}

// Bytes is a binary response body.
//
// Content-Type defaults to application/octet-stream.
type Bytes []byte

func (b Bytes) writeResult(ctx *RequestCtx, contentType string) error {
	resp := ctx.Response
	resp.Header.Replace(HeaderContentType, contentTypeOr(contentType, defaultBytesContentType))
	resp.AppendBody(b)
	resp.SetStatus(StatusOK)
	return nil
}

// Text is a textual response body, sent as UTF-8.
//
// Content-Type defaults to text/plain and is always tagged with
// charset=utf-8.
type Text string

func (s Text) writeResult(ctx *RequestCtx, contentType string) error {
	resp := ctx.Response
	resp.Header.Replace(HeaderContentType, contentTypeOr(contentType, defaultTextContentType), charsetUTF8)
	resp.AppendBodyString(string(s))
	resp.SetStatus(StatusOK)
	return nil
}

// PartialContent serves a byte range of a resource according to the
// request Range header.
//
// Requests without a Range header receive the whole resource.
type PartialContent struct {
	// Reader gives access to the resource bytes.
	Reader io.ReaderAt

	// Size is the total resource size in bytes.
	Size int64

	// ChunkSize limits ranges without an end.
	//
	// DefaultChunkSize is used if 0.
	ChunkSize int
}

// NewPartialContent returns a PartialContent for a resource of the given size.
func NewPartialContent(r io.ReaderAt, size int64) *PartialContent {
	return &PartialContent{
		Reader: r,
		Size:   size,
	}
}

// PartialBytes returns a PartialContent serving b.
func PartialBytes(b []byte) *PartialContent {
	return NewPartialContent(bytes.NewReader(b), int64(len(b)))
}

func (p *PartialContent) chunkSize() int64 {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return int64(p.ChunkSize)
}

// span resolves the requested range against the resource size.
//
// start < 0 means a suffix range, where end holds the suffix length.
// end < 0 means the end was omitted.
func (p *PartialContent) span(start, end int64) (int64, int64, bool) {
	size := p.Size
	if start < 0 {
		if end <= 0 || size == 0 {
			return 0, 0, false
		}
		start = size - end
		if start < 0 {
			start = 0
		}
		return start, size - 1, true
	}
	if start >= size {
		return 0, 0, false
	}
	if end < 0 {
		end = start + p.chunkSize() - 1
	}
	if end >= size {
		end = size - 1
	}
	if end < start {
		return 0, 0, false
	}
	return start, end, true
}

func (p *PartialContent) writeResult(ctx *RequestCtx, contentType string) error {
	resp := ctx.Response
	resp.Header.Replace(HeaderAcceptRanges, strBytes)

	if !ctx.Flags.Has(FlagPartial) {
		if err := p.appendSection(resp, 0, p.Size); err != nil {
			return err
		}
		resp.Header.Replace(HeaderContentType, contentTypeOr(contentType, defaultBytesContentType))
		resp.SetStatus(StatusOK)
		return nil
	}

	start, end, ok := p.span(ctx.rangeStart, ctx.rangeEnd)
	if !ok {
		resp.Header.Replace(HeaderContentRange, fmt.Sprintf("bytes */%d", p.Size))
		resp.SetStatus(StatusRequestedRangeNotSatisfiable)
		return nil
	}
	if err := p.appendSection(resp, start, end-start+1); err != nil {
		return err
	}
	resp.Header.Replace(HeaderContentType, contentTypeOr(contentType, defaultBytesContentType))
	resp.Header.Replace(HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", start, end, p.Size))
	resp.SetStatus(StatusPartialContent)
	return nil
}

func (p *PartialContent) appendSection(resp *Response, off, n int64) error {
	if n <= 0 {
		return nil
	}
	if p.Reader == nil {
		return errors.New("partial content without reader")
	}
	resp.mustNotBeSerialized()
	b := resp.bodyBuffer()
	pos := len(b.B)
	b.B = append(b.B, make([]byte, n)...)
	m, err := p.Reader.ReadAt(b.B[pos:], off)
	b.B = b.B[:pos+m]
	if int64(m) == n {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return errors.Wrapf(err, "cannot read %d bytes at offset %d", n, off)
}

// Redirect points the client to another location.
type Redirect struct {
	Location string

	// Status is the redirect status code.
	//
	// StatusSeeOther is used if 0.
	Status StatusCode
}

// NewRedirect returns a 303 See Other redirect to location.
func NewRedirect(location string) *Redirect {
	return &Redirect{Location: location}
}

func (r *Redirect) writeResult(ctx *RequestCtx, contentType string) error {
	status := r.Status
	if status == statusUnset {
		status = StatusSeeOther
	}
	ctx.Response.Header.Replace(HeaderLocation, r.Location)
	ctx.Response.SetStatus(status)
	return nil
}

// StatusError may be returned by a RequestHandler to respond with
// an explicit status code.
//
// Msg, if not empty, is sent as a plain text body. Otherwise the
// body is synthesized by the error handlers.
type StatusError struct {
	Code StatusCode
	Msg  string
}

// NewStatusError returns a StatusError with the given code and message.
func NewStatusError(code StatusCode, msg string) *StatusError {
	return &StatusError{
		Code: code,
		Msg:  msg,
	}
}

func (e *StatusError) Error() string {
	if len(e.Msg) == 0 {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}
