package tinyhttp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinyhttp/tinyhttp/tcplisten"
)

// ServeHandler must serve the incoming connection c.
//
// ServeHandler must leave c unclosed.
type ServeHandler func(c net.Conn) error

// Server implements HTTP/1.0 and HTTP/1.1 server.
//
// It is forbidden copying Server instances. Create new Server instances
// instead.
type Server struct {
	// Router resolves requests to handlers.
	//
	// Every request is answered with 501 Not Implemented if nil.
	Router *Router

	// ErrorHandlers synthesize bodies for error responses.
	//
	// "<code> <reason>" plain text bodies are used if nil.
	ErrorHandlers *ErrorHandlers

	// Server name for sending in response headers.
	//
	// Default server name is used if left blank.
	Name string

	// Maximum request head size, request line and blank line included.
	//
	// DefaultMaxHeaderSize is used if 0.
	MaxHeaderSize int

	// Maximum request body size.
	//
	// DefaultMaxRequestBodySize is used if 0.
	MaxRequestBodySize int

	// Maximum duration for reading the request head, and again for reading
	// the request body. Keep-alive connections wait at most this long for
	// the next request.
	//
	// By default request read timeout is unlimited.
	ReadTimeout time.Duration

	// Maximum duration for writing the response.
	//
	// By default response write timeout is unlimited.
	WriteTimeout time.Duration

	// Maximum number of concurrent client connections allowed per IP.
	//
	// By default unlimited number of concurrent connections
	// may be established to the server from a single IP address.
	MaxConnsPerIP int

	// The maximum number of concurrent connections the server may serve.
	//
	// DefaultConcurrency is used if not set.
	Concurrency int

	// Compress enables response body compression negotiated via
	// Accept-Encoding.
	Compress bool

	// ReusePort enables SO_REUSEPORT for listeners created by
	// ListenAndServe.
	ReusePort bool

	// Logs all errors, including the most frequent
	// 'connection reset by peer', 'broken pipe' and 'connection timeout'
	// errors. Such errors are common in production serving real-world
	// clients.
	LogAllErrors bool

	// Logger is used for server and request-scoped logging.
	//
	// JSON logger writing to stderr at info level is used if nil.
	Logger *zerolog.Logger

	// Tracer starts a server span for each request if set.
	Tracer trace.Tracer

	// Trace holds connection and request hooks. It may be nil.
	Trace *ServerTrace

	perIPConns ipConnCounter
	serverName atomic.Value

	ctxPool    sync.Pool
	readerPool sync.Pool

	mu    sync.Mutex
	ln    []net.Listener
	conns connList
	open  int32
	stop  int32
}

// Default concurrency used by Server.Serve().
const DefaultConcurrency = 256 * 1024

// ErrPerIPConnLimit may be returned from ServeConn if the number of connections
// per ip exceeds Server.MaxConnsPerIP.
var ErrPerIPConnLimit = errors.New("too many connections per ip")

// ListenAndServe serves HTTP requests from the given TCP4 addr.
//
// The listener enables SO_REUSEPORT if Server.ReusePort is set.
func (s *Server) ListenAndServe(addr string) error {
	var ln net.Listener
	var err error
	if s.ReusePort {
		cfg := &tcplisten.Config{
			ReusePort:   true,
			DeferAccept: true,
			FastOpen:    true,
		}
		ln, err = cfg.NewListener("tcp4", addr)
	} else {
		ln, err = net.Listen("tcp4", addr)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %q", addr)
	}
	return s.Serve(ln)
}

// Serve serves incoming connections from the given listener.
//
// Serve blocks until the given listener returns permanent error or
// Shutdown is called. The router is frozen when Serve starts.
func (s *Server) Serve(ln net.Listener) error {
	var lastOverflowErrorTime time.Time
	var lastPerIPErrorTime time.Time

	maxWorkersCount := s.getConcurrency()
	s.Router.freeze()

	s.mu.Lock()
	if s.isShuttingDown() {
		s.mu.Unlock()
		return ln.Close()
	}
	s.ln = append(s.ln, ln)
	s.mu.Unlock()

	startServerDateUpdater()
	defer stopServerDateUpdater()

	wp := &workerPool{
		WorkerFunc:      s.serveConn,
		MaxWorkersCount: maxWorkersCount,
		LogAllErrors:    s.LogAllErrors,
		Logger:          s.logger(),
		Trace:           s.Trace,
	}
	wp.Start()

	s.logger().Info().Str("addr", ln.Addr().String()).Msg("serving")
	for {
		c, err := acceptConn(s, ln, &lastPerIPErrorTime)
		if err != nil {
			wp.Stop()
			if s.isShuttingDown() {
				return nil
			}
			return err
		}
		atomic.AddInt32(&s.open, 1)
		if !wp.Serve(c) {
			atomic.AddInt32(&s.open, -1)
			c.Close()
			if time.Since(lastOverflowErrorTime) > time.Minute {
				s.logger().Warn().Msgf("The incoming connection cannot be served, because %d concurrent connections are served. "+
					"Try increasing Server.Concurrency", maxWorkersCount)
				lastOverflowErrorTime = time.Now()
			}
		}
	}
}

// Shutdown gracefully shuts down the server without interrupting any active
// connections.
//
// Shutdown works by first closing all open listeners and then waiting for
// all connections to finish their current request. Idle keep-alive
// connections are closed. Shutdown returns ctx.Err() if ctx is done before
// all the connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	atomic.StoreInt32(&s.stop, 1)
	var err error
	for _, ln := range s.ln {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.ln = nil
	s.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.conns.closeIdle()
		if atomic.LoadInt32(&s.open) == 0 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) isShuttingDown() bool {
	return atomic.LoadInt32(&s.stop) != 0
}

func acceptConn(s *Server, ln net.Listener, lastPerIPErrorTime *time.Time) (net.Conn, error) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.logger().Error().Err(netErr).Msg("Timeout error when accepting new connections")
				time.Sleep(time.Second)
				continue
			}
			if !s.isShuttingDown() && !errors.Is(err, net.ErrClosed) {
				s.logger().Error().Err(err).Msg("Permanent error when accepting new connections")
			}
			return nil, err
		}
		if s.MaxConnsPerIP > 0 {
			pic := limitConnsPerIP(s, c)
			if pic == nil {
				c.Close()
				if time.Since(*lastPerIPErrorTime) > time.Minute {
					s.logger().Warn().Msgf("The number of connections from %s exceeds MaxConnsPerIP=%d",
						remoteIP(c), s.MaxConnsPerIP)
					*lastPerIPErrorTime = time.Now()
				}
				continue
			}
			return pic, nil
		}
		return c, nil
	}
}

// ServeConn serves HTTP requests from the given connection.
//
// ServeConn returns nil if all requests from the c are successfully served.
// It returns non-nil error otherwise.
//
// ServeConn closes c before returning.
func (s *Server) ServeConn(c net.Conn) error {
	s.Router.freeze()
	if s.MaxConnsPerIP > 0 {
		pic := limitConnsPerIP(s, c)
		if pic == nil {
			c.Close()
			return ErrPerIPConnLimit
		}
		c = pic
	}
	atomic.AddInt32(&s.open, 1)
	err := s.serveConn(c)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Server) serveConn(c net.Conn) error {
	defer atomic.AddInt32(&s.open, -1)
	item := s.conns.insert(c)
	defer s.conns.remove(item)

	_, err := s.serveRequests(c, item)
	return err
}

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

// serveRequests runs the keep-alive loop on c.
//
// keepAlive reports whether the last response left the connection open.
// c is left unclosed.
func (s *Server) serveRequests(c net.Conn, item *connListItem) (keepAlive bool, err error) {
	mr := s.acquireReader(c)
	defer s.releaseReader(mr)

	for {
		if item != nil && mr.buffered() == 0 {
			item.setIdle(true)
		}
		ctx := s.acquireCtx(c)
		err = s.readRequest(ctx, mr)
		if item != nil {
			item.setIdle(false)
		}
		if err != nil {
			if errors.Is(err, errNothingRead) {
				s.releaseCtx(ctx)
				return keepAlive, nil
			}
			debugf(&ctx.logger, "cannot read request: %s", err)
			if !ctx.Response.IsStatusSet() {
				s.releaseCtx(ctx)
				return false, err
			}
			ctx.SetConnectionClose()
			s.finalizeResponse(ctx)
			if werr := s.writeResponse(c, ctx); werr != nil {
				err = werr
			}
			s.releaseCtx(ctx)
			return false, err
		}

		s.serveRequest(ctx)
		err = s.writeResponse(c, ctx)
		keepAlive = ctx.keepAlive && err == nil && !s.isShuttingDown()
		s.releaseCtx(ctx)
		if err != nil {
			return false, err
		}
		if s.Trace != nil && s.Trace.IdledConn != nil {
			s.Trace.IdledConn(c)
		}
		if !keepAlive {
			return false, nil
		}
	}
}

// serveRequest dispatches ctx and finalizes the response.
func (s *Server) serveRequest(ctx *RequestCtx) {
	if s.Trace != nil && s.Trace.GotRequest != nil {
		s.Trace.GotRequest(ctx)
	}
	var span trace.Span
	if s.Tracer != nil {
		var spanCtx context.Context
		spanCtx, span = s.Tracer.Start(ctx.Context(), "HTTP "+ctx.Method.String(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", ctx.Method.String()),
				attribute.String("http.target", ctx.RequestURI),
				attribute.String("http.host", ctx.Host),
				attribute.String("net.peer.addr", ctx.RemoteAddr().String()),
			))
		ctx.ctx = spanCtx
	}

	s.dispatch(ctx)
	s.finalizeResponse(ctx)

	if span != nil {
		code := ctx.Response.StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", int(code)))
		if code >= StatusInternalServerError {
			span.SetStatus(codes.Error, code.String())
		}
		span.End()
	}
}

// dispatch resolves the route and writes the handler result.
func (s *Server) dispatch(ctx *RequestCtx) {
	resp := ctx.Response
	r := s.Router

	method := ctx.Method
	if method == MethodHead && !r.hasRoutes(MethodHead) {
		method = MethodGet
	}
	if !r.hasRoutes(method) {
		resp.SetStatus(StatusNotImplemented)
		return
	}
	m, ok := r.lookup(method, ctx.Host, ctx.Path)
	if !ok {
		if allowed := r.allowed(ctx.Host, ctx.Path); len(allowed) > 0 {
			resp.Header.Replace(HeaderAllow, joinMethods(allowed))
			resp.SetStatus(StatusMethodNotAllowed)
			return
		}
		resp.SetStatus(StatusNotFound)
		return
	}
	ctx.TemplateArgs = m.templateArgs

	res, err := callHandler(ctx, m.handler)
	if err != nil {
		s.handlerError(ctx, err)
		return
	}
	if isNilResult(res) {
		resp.SetStatus(StatusNoContent)
		return
	}
	if err := callWriteResult(ctx, res, m.contentType); err != nil {
		ctx.logger.Error().Err(err).Msg("cannot write handler result")
		resp.ResetBody()
		resp.Header.Remove(HeaderContentRange)
		resp.SetStatus(StatusInternalServerError)
	}
}

func callHandler(ctx *RequestCtx, h RequestHandler) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = errors.Errorf("panic in handler: %v", r)
		}
	}()
	return h(ctx)
}

// callWriteResult runs res.writeResult, turning a panic into an error.
func callWriteResult(ctx *RequestCtx, res Result, contentType string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic when writing %T: %v", res, r)
		}
	}()
	return res.writeResult(ctx, contentType)
}

// isNilResult returns true for nil and for nil pointers wrapped in Result.
func isNilResult(res Result) bool {
	switch x := res.(type) {
	case nil:
		return true
	case *PartialContent:
		return x == nil
	case *Redirect:
		return x == nil
	}
	return false
}

func (s *Server) handlerError(ctx *RequestCtx, err error) {
	resp := ctx.Response
	resp.ResetBody()

	var se *StatusError
	if errors.As(err, &se) {
		if len(se.Msg) > 0 {
			resp.Header.Replace(HeaderContentType, defaultTextContentType, charsetUTF8)
			resp.AppendBodyString(se.Msg)
		}
		resp.SetStatus(se.Code)
		return
	}
	ctx.logger.Debug().Err(err).Msgf("handler for %q failed", ctx.Path)
	resp.SetStatus(StatusNotFound)
}

// finalizeResponse applies compression and connection headers.
func (s *Server) finalizeResponse(ctx *RequestCtx) {
	resp := ctx.Response
	if !resp.IsStatusSet() {
		resp.SetStatus(StatusBadRequest)
	}
	if s.Compress {
		if err := compressResponse(ctx); err != nil {
			debugf(&ctx.logger, "cannot compress response: %s", err)
		}
	}
	code := resp.StatusCode()
	if resp.BodyLen() == 0 && code != StatusNoContent && code != StatusNotModified && code >= 200 {
		resp.Header.Replace(HeaderContentLength, "0")
	}
	if !ctx.keepAlive {
		resp.Header.Replace(HeaderConnection, strClose)
	}
}

func (s *Server) writeResponse(c net.Conn, ctx *RequestCtx) error {
	if s.WriteTimeout > 0 {
		if wd, ok := c.(writeDeadliner); ok {
			if err := wd.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
				return err
			}
		}
	}
	b := bytebufferpool.Get()
	b.B = ctx.Response.appendBytes(b.B, ctx.Method == MethodHead)
	n, err := c.Write(b.B)
	bytebufferpool.Put(b)
	if s.Trace != nil && s.Trace.WroteResponse != nil {
		s.Trace.WroteResponse(ctx, int64(n), err)
	}
	return err
}

func (s *Server) writeDefaultHeaders(resp *Response) {
	resp.Header.Replace(HeaderCacheControl, strNoStore)
	resp.Header.Replace(HeaderDate, string(getServerDate()))
	resp.Header.Replace(HeaderServer, s.getServerName())
}

func (s *Server) acquireReader(c net.Conn) *messageReader {
	v := s.readerPool.Get()
	var mr *messageReader
	if v == nil {
		mr = &messageReader{}
	} else {
		mr = v.(*messageReader)
	}
	mr.reset(c, s.ReadTimeout)
	return mr
}

const bigBufferLimit = 16 * 1024

func (s *Server) releaseReader(mr *messageReader) {
	mr.reset(nil, 0)
	if cap(mr.buf) > bigBufferLimit {
		mr.buf = nil
	}
	s.readerPool.Put(mr)
}

func (s *Server) acquireCtx(c net.Conn) *RequestCtx {
	v := s.ctxPool.Get()
	var ctx *RequestCtx
	if v == nil {
		ctx = &RequestCtx{}
	} else {
		ctx = v.(*RequestCtx)
	}
	ctx.init(s, c.RemoteAddr())
	ctx.Response = AcquireResponse()
	ctx.Response.SetErrorHandlers(s.ErrorHandlers)
	ctx.Response.SetLogger(&ctx.logger)
	return ctx
}

func (s *Server) releaseCtx(ctx *RequestCtx) {
	ReleaseResponse(ctx.Response)
	if cap(ctx.PostBody) > bigBufferLimit {
		ctx.PostBody = nil
	}
	ctx.reset()
	s.ctxPool.Put(ctx)
}

func (s *Server) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &defaultLogger
}

func (s *Server) getServerName() string {
	v := s.serverName.Load()
	if v == nil {
		serverName := s.Name
		if len(serverName) == 0 {
			serverName = defaultServerName
		}
		s.serverName.Store(serverName)
		return serverName
	}
	return v.(string)
}

func (s *Server) getConcurrency() int {
	n := s.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	return n
}

func (s *Server) maxHeaderSize() int {
	if s.MaxHeaderSize <= 0 {
		return DefaultMaxHeaderSize
	}
	return s.MaxHeaderSize
}

func (s *Server) maxRequestBodySize() int {
	if s.MaxRequestBodySize <= 0 {
		return DefaultMaxRequestBodySize
	}
	return s.MaxRequestBodySize
}
