package tinyhttp

import "net"

// ServerTrace is a set of hooks to run at various stages of an incoming HTTP
// request. Any particular hook may be nil. Functions may be called
// concurrently from different goroutines.
type ServerTrace struct {
	// GotConn is called whenever a new connection has been handed to a
	// worker by the Serve function. The passed in conn is owned by the
	// server and should not be read, written, or closed by users of
	// ServerTrace.
	GotConn func(conn net.Conn)

	// ClosedConn is called after a connection to a remote peer has been
	// closed.
	ClosedConn func(conn net.Conn)

	// IdledConn is called when a request of a connection has been processed
	// and the response has been sent.
	IdledConn func(conn net.Conn)

	// GotRequest is called when a request has been parsed, before the
	// route is resolved.
	GotRequest func(ctx *RequestCtx)

	// WroteResponse is called after the response for a given request has been
	// sent. n is the number of bytes that have been transferred and err is
	// any error that may have been occurred while writing the response.
	WroteResponse func(ctx *RequestCtx, n int64, err error)
}
