package tinyhttp

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// RequestFlags are protocol hints collected while parsing a request.
type RequestFlags uint8

const (
	// FlagURLEncoded is set for application/x-www-form-urlencoded bodies.
	FlagURLEncoded RequestFlags = 1 << iota

	// FlagPartial is set when the request carries a valid Range header.
	FlagPartial
)

// Has returns true if all the bits of x are set in f.
func (f RequestFlags) Has(x RequestFlags) bool {
	return f&x == x
}

// RequestCtx holds the parsed request and the response being built for it.
//
// A RequestCtx is passed to RequestHandler. It is reused for subsequent
// requests on the same connection, so handlers mustn't keep references to
// it after returning.
//
// It is forbidden copying RequestCtx instances.
type RequestCtx struct {
	// Method is the request method.
	Method Method

	// Path is the percent-decoded request path without query string.
	Path string

	// RequestURI is the raw request target from the request line.
	RequestURI string

	// Protocol is either ProtocolHTTP10 or ProtocolHTTP11.
	Protocol string

	// Host is the Host header value with the port stripped.
	Host string

	// QueryArgs holds the decoded query string arguments.
	QueryArgs Args

	// PostArgs holds the decoded body arguments if FlagURLEncoded is set.
	PostArgs Args

	// Cookies holds the request cookies.
	Cookies Args

	// PostBody is the raw request body.
	PostBody []byte

	// Flags holds protocol hints, see FlagURLEncoded and FlagPartial.
	Flags RequestFlags

	// TemplateArgs holds the values extracted by the matched URL template.
	TemplateArgs TemplateArgs

	// Header holds the recognized request headers.
	Header Header

	// Response is the response being built.
	Response *Response

	// Time is the time the request head was read.
	Time time.Time

	id         uint64
	remoteAddr net.Addr
	keepAlive  bool

	rangeStart int64
	rangeEnd   int64

	logger zerolog.Logger
	ctx    context.Context
	s      *Server
}

var zeroTCPAddr = &net.TCPAddr{
	IP: net.IPv4zero,
}

var globalCtxID uint64

func (ctx *RequestCtx) init(s *Server, remoteAddr net.Addr) {
	ctx.s = s
	ctx.id = atomic.AddUint64(&globalCtxID, 1)
	if remoteAddr == nil {
		remoteAddr = zeroTCPAddr
	}
	ctx.remoteAddr = remoteAddr
	ctx.rangeStart = -1
	ctx.rangeEnd = -1
	ctx.ctx = context.Background()
	ctx.Time = time.Now()
	ctx.logger = s.logger().With().
		Uint64("id", ctx.id).
		Str("remote", remoteAddr.String()).
		Logger()
}

func (ctx *RequestCtx) reset() {
	ctx.Method = MethodUnknown
	ctx.Path = ""
	ctx.RequestURI = ""
	ctx.Protocol = ""
	ctx.Host = ""
	ctx.QueryArgs.Reset()
	ctx.PostArgs.Reset()
	ctx.Cookies.Reset()
	ctx.PostBody = ctx.PostBody[:0]
	ctx.Flags = 0
	ctx.TemplateArgs = nil
	ctx.Header.Reset()
	ctx.Response = nil
	ctx.Time = time.Time{}
	ctx.id = 0
	ctx.remoteAddr = nil
	ctx.keepAlive = false
	ctx.rangeStart = -1
	ctx.rangeEnd = -1
	ctx.logger = zerolog.Nop()
	ctx.ctx = nil
	ctx.s = nil
}

// ID returns the unique request id.
func (ctx *RequestCtx) ID() uint64 {
	return ctx.id
}

// RemoteAddr returns the client address.
func (ctx *RequestCtx) RemoteAddr() net.Addr {
	if ctx.remoteAddr == nil {
		return zeroTCPAddr
	}
	return ctx.remoteAddr
}

// RemoteIP returns the client ip.
func (ctx *RequestCtx) RemoteIP() net.IP {
	x, ok := ctx.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return net.IPv4zero
	}
	return x.IP
}

// KeepAlive returns true if the connection stays open after the response.
func (ctx *RequestCtx) KeepAlive() bool {
	return ctx.keepAlive
}

// SetConnectionClose closes the connection after the response is sent.
func (ctx *RequestCtx) SetConnectionClose() {
	ctx.keepAlive = false
}

// Range returns the requested byte range.
//
// start is negative for suffix ranges ("bytes=-500"), end holds the suffix
// length then. end is negative if omitted. ok is false if the request
// has no valid Range header.
func (ctx *RequestCtx) Range() (start, end int64, ok bool) {
	if !ctx.Flags.Has(FlagPartial) {
		return 0, 0, false
	}
	return ctx.rangeStart, ctx.rangeEnd, true
}

// Logger returns the request-scoped logger.
//
// Each message contains the request id, remote address, method and path.
func (ctx *RequestCtx) Logger() *zerolog.Logger {
	return &ctx.logger
}

// Context returns the request context. It carries the server span if
// Server.Tracer is set.
func (ctx *RequestCtx) Context() context.Context {
	if ctx.ctx == nil {
		return context.Background()
	}
	return ctx.ctx
}

// SetContext replaces the request context.
func (ctx *RequestCtx) SetContext(c context.Context) {
	ctx.ctx = c
}

func (ctx *RequestCtx) String() string {
	return fmt.Sprintf("#%016X - %s - %s %s", ctx.id, ctx.RemoteAddr(), ctx.Method, ctx.RequestURI)
}
